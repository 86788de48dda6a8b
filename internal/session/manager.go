// Package session owns the credential lifecycle: login, hydration from the
// durable store, single-flight token reissue, and logout. It is the only
// writer of the storage keys and the single source of truth for whether the
// client is authenticated.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/medihub/medihub-go/internal/api"
	"github.com/medihub/medihub-go/internal/domain"
	"github.com/medihub/medihub-go/internal/observability"
	"github.com/medihub/medihub-go/internal/security"
	"github.com/medihub/medihub-go/internal/storage"
)

var (
	// ErrSessionExpired means the stored refresh token is past its recorded
	// expiry; a reissue would be doomed, so the session is cleared instead.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionSuperseded means a reissue settled after the session it was
	// started for had been logged out or replaced. Its result is discarded.
	ErrSessionSuperseded = errors.New("session superseded during reissue")
)

type Manager struct {
	raw    *api.Client // unauthenticated: reissue, logout
	authed *api.Client // token-augmented: profile and room calls
	store  storage.Store
	logger *slog.Logger

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	refreshExpiry time.Time
	identity      *security.Identity
	profile       *domain.Profile
	isLogined     bool
	// generation increments on every login and clear so a reissue that
	// settles for a superseded session can be detected and discarded.
	generation uint64

	reissueGroup singleflight.Group
	now          func() time.Time
}

// NewManager wires a manager against baseURL. httpClient is the base client
// for unauthenticated calls; the manager derives its own token-augmented
// client from it for profile fetches.
func NewManager(baseURL string, httpClient *http.Client, store storage.Store, logger *slog.Logger) *Manager {
	m := &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	m.raw = api.New(baseURL, httpClient)
	authed := *httpClient
	authed.Transport = m.Transport(httpClient.Transport)
	m.authed = api.New(baseURL, &authed)
	return m
}

// APIClient is the token-augmented REST client. Every request through it
// passes the refresh-then-retry hook in Transport.
func (m *Manager) APIClient() *api.Client { return m.authed }

// Hydrate restores the session from durable storage at startup. An empty
// store yields a clean anonymous state with no error. A refresh token past
// its recorded expiry clears everything and returns ErrSessionExpired.
func (m *Manager) Hydrate(ctx context.Context) error {
	access := m.storedValue(ctx, storage.KeyAccessToken)
	refresh := m.storedValue(ctx, storage.KeyRefreshToken)
	expiryRaw := m.storedValue(ctx, storage.KeyRefreshTokenExpiration)

	if refresh != "" && expiryRaw != "" {
		if millis, err := strconv.ParseInt(expiryRaw, 10, 64); err == nil {
			if m.now().After(time.UnixMilli(millis)) {
				m.logger.Warn("refresh token past expiry, clearing session")
				m.clear(ctx)
				return ErrSessionExpired
			}
		}
	}
	if access == "" && refresh == "" {
		return nil
	}

	m.mu.Lock()
	m.accessToken = access
	m.refreshToken = refresh
	if millis, err := strconv.ParseInt(expiryRaw, 10, 64); err == nil {
		m.refreshExpiry = time.UnixMilli(millis)
	}
	if id, err := security.DecodeIdentity(access); err == nil {
		m.identity = &id
	}
	m.isLogined = access != ""
	m.mu.Unlock()

	if access != "" && security.TokenExpired(access, m.now()) {
		if err := m.Reissue(ctx); err != nil {
			return err
		}
	}
	m.loadOrFetchProfile(ctx)
	return nil
}

// Login installs a fresh token pair, persists it together with the decoded
// identity, and fetches the profile projection. A failed profile fetch is
// logged but does not fail the login.
func (m *Manager) Login(ctx context.Context, accessToken, refreshToken string, refreshExpiry time.Time) error {
	if err := m.applyTokens(ctx, accessToken, refreshToken, refreshExpiry, true, 0); err != nil {
		return err
	}
	m.fetchProfile(ctx)
	return nil
}

// Logout calls the backend best-effort and unconditionally clears all state.
// Safe to call with no active session.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	token := m.accessToken
	m.mu.Unlock()
	if token != "" {
		if err := m.raw.Logout(ctx, token); err != nil {
			m.logger.Warn("logout call failed, clearing local state anyway", "error", err)
		}
	}
	m.clear(ctx)
}

// Reissue exchanges the refresh token for a new pair. Concurrent callers
// collapse onto a single network call and all observe its outcome. Failure
// clears the session.
func (m *Manager) Reissue(ctx context.Context) error {
	_, err := m.refreshAccessToken(ctx)
	return err
}

// IsAuthorized reports whether the decoded role matches. Anonymous sessions
// are unauthorized, not an error.
func (m *Manager) IsAuthorized(requiredRole string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity != nil && m.identity.Role == requiredRole
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLogined && m.accessToken != ""
}

// AccessToken returns the currently held token. Realtime connect uses this as
// its connect-time credential.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

func (m *Manager) Identity() (security.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return security.Identity{}, false
	}
	return *m.identity, true
}

func (m *Manager) Profile() (domain.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return domain.Profile{}, false
	}
	return *m.profile, true
}

// refreshAccessToken is the single choke point for token renewal. The
// singleflight group guarantees at most one reissue call in flight; every
// caller that arrives while it runs resumes with the same result.
func (m *Manager) refreshAccessToken(ctx context.Context) (string, error) {
	v, err, _ := m.reissueGroup.Do("reissue", func() (any, error) {
		return m.reissueOnce(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) reissueOnce(ctx context.Context) (string, error) {
	m.mu.Lock()
	gen := m.generation
	refresh := m.refreshToken
	access := m.accessToken
	m.mu.Unlock()

	// A caller that observed the old token may arrive here after another
	// reissue already settled. The token it wanted is already installed.
	if access != "" && !security.TokenExpired(access, m.now()) {
		return access, nil
	}
	if refresh == "" {
		return "", fmt.Errorf("%w: no refresh token held", api.ErrReissueFailed)
	}
	triple, err := m.raw.Reissue(ctx, refresh)
	if err != nil {
		observability.RecordReissue(ctx, "failure")
		m.logger.Warn("token reissue failed, clearing session", "error", err)
		m.clearIfGeneration(ctx, gen)
		return "", err
	}
	observability.RecordReissue(ctx, "success")

	if err := m.applyTokens(ctx, triple.AccessToken, triple.RefreshToken, triple.RefreshExpiry, false, gen); err != nil {
		return "", err
	}
	return triple.AccessToken, nil
}

// applyTokens installs and persists a token pair. bumpGeneration is true for
// an explicit login (which starts a new session) and false for reissue, in
// which case gen must still be the current generation: the check runs under
// the same lock as the install, and the generation is re-verified after the
// store writes so a logout that completed while they were in flight cannot be
// overwritten with stale credentials.
func (m *Manager) applyTokens(ctx context.Context, accessToken, refreshToken string, refreshExpiry time.Time, bumpGeneration bool, gen uint64) error {
	var id *security.Identity
	if decoded, err := security.DecodeIdentity(accessToken); err == nil {
		id = &decoded
	} else {
		m.logger.Warn("access token payload not decodable", "error", err)
	}

	m.mu.Lock()
	if !bumpGeneration && m.generation != gen {
		m.mu.Unlock()
		m.logger.Info("discarding reissue result for superseded session")
		return ErrSessionSuperseded
	}
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.refreshExpiry = refreshExpiry
	m.identity = id
	m.isLogined = true
	if bumpGeneration {
		m.generation++
		m.profile = nil
	}
	installed := m.generation
	m.mu.Unlock()

	values := map[string]string{
		storage.KeyAccessToken:            accessToken,
		storage.KeyRefreshToken:           refreshToken,
		storage.KeyRefreshTokenExpiration: strconv.FormatInt(refreshExpiry.UnixMilli(), 10),
		storage.KeyIsLogined:              "true",
	}
	if id != nil {
		values[storage.KeyUserRole] = id.Role
		values[storage.KeyUserSeq] = id.UserSeq
	}
	for key, value := range values {
		if err := m.store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}

	// A logout or later login that ran during the writes above has already
	// cleared or replaced the session; its generation bump is visible here.
	// The writes resurrected credentials that clear removed, so clear again.
	m.mu.Lock()
	superseded := m.generation != installed
	m.mu.Unlock()
	if superseded {
		m.logger.Info("discarding reissue result for superseded session")
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warn("clearing credential store failed", "error", err)
		}
		return ErrSessionSuperseded
	}
	return nil
}

func (m *Manager) fetchProfile(ctx context.Context) {
	profile, err := m.authed.FetchProfile(ctx)
	if err != nil {
		m.logger.Warn("profile fetch failed", "error", err)
		return
	}
	m.mu.Lock()
	m.profile = profile
	m.mu.Unlock()
	if raw, err := json.Marshal(profile); err == nil {
		if err := m.store.Set(ctx, storage.KeyUserInfo, string(raw)); err != nil {
			m.logger.Warn("persist profile failed", "error", err)
		}
	}
}

// loadOrFetchProfile prefers the backend but falls back to the cached
// projection so hydration works offline.
func (m *Manager) loadOrFetchProfile(ctx context.Context) {
	m.fetchProfile(ctx)
	m.mu.Lock()
	missing := m.profile == nil
	m.mu.Unlock()
	if !missing {
		return
	}
	raw := m.storedValue(ctx, storage.KeyUserInfo)
	if raw == "" {
		return
	}
	var profile domain.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		m.logger.Warn("cached profile unreadable", "error", err)
		return
	}
	m.mu.Lock()
	m.profile = &profile
	m.mu.Unlock()
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.refreshExpiry = time.Time{}
	m.identity = nil
	m.profile = nil
	m.isLogined = false
	m.generation++
	m.mu.Unlock()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("clearing credential store failed", "error", err)
	}
}

// clearIfGeneration clears only when the session that triggered the failed
// reissue is still current, so a concurrent fresh login is not clobbered.
func (m *Manager) clearIfGeneration(ctx context.Context, gen uint64) {
	m.mu.Lock()
	current := m.generation == gen
	m.mu.Unlock()
	if current {
		m.clear(ctx)
	}
}

func (m *Manager) storedValue(ctx context.Context, key string) string {
	v, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("credential store read failed", "key", key, "error", err)
		}
		return ""
	}
	return v
}
