// Package api is the thin REST client for the staff portal backend. It owns
// the wire envelope and the token reissue protocol; session policy (when to
// refresh, when to clear) lives in the session package.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/medihub/medihub-go/internal/domain"
)

// ErrReissueFailed covers every way a reissue can go wrong: transport error,
// non-2xx status, or a response missing any of the three token headers.
var ErrReissueFailed = errors.New("token reissue failed")

const (
	headerRefreshToken       = "Refresh-Token"
	headerAccessToken        = "access-token"
	headerNewRefreshToken    = "refresh-token"
	headerRefreshTokenExpiry = "refresh-token-expiration"
)

// TokenTriple is the credential set returned by a successful reissue.
type TokenTriple struct {
	AccessToken   string
	RefreshToken  string
	RefreshExpiry time.Time
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client against baseURL. The supplied http.Client decides
// whether calls are token-augmented; see session.Manager.Transport.
func New(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, http: httpClient}
}

// NewHTTPClient is the standard base client: otel-instrumented transport and
// a request timeout.
func NewHTTPClient(timeout time.Duration, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(base),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Reissue exchanges the refresh token for a new credential set. The backend
// answers through response headers, not the body.
func (c *Client) Reissue(ctx context.Context, refreshToken string) (TokenTriple, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token/reissue", nil)
	if err != nil {
		return TokenTriple{}, fmt.Errorf("%w: %v", ErrReissueFailed, err)
	}
	req.Header.Set(headerRefreshToken, refreshToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return TokenTriple{}, fmt.Errorf("%w: %v", ErrReissueFailed, err)
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenTriple{}, fmt.Errorf("%w: status %s", ErrReissueFailed, resp.Status)
	}
	access := resp.Header.Get(headerAccessToken)
	refresh := resp.Header.Get(headerNewRefreshToken)
	expiry := resp.Header.Get(headerRefreshTokenExpiry)
	if access == "" || refresh == "" || expiry == "" {
		return TokenTriple{}, fmt.Errorf("%w: response missing token headers", ErrReissueFailed)
	}
	millis, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return TokenTriple{}, fmt.Errorf("%w: bad expiration header %q", ErrReissueFailed, expiry)
	}
	return TokenTriple{
		AccessToken:   access,
		RefreshToken:  refresh,
		RefreshExpiry: time.UnixMilli(millis),
	}, nil
}

// Logout notifies the backend with an explicit bearer token. The session
// manager treats failures as non-fatal; this method just reports them.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout: status %s", resp.Status)
	}
	return nil
}

func (c *Client) FetchProfile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.get(ctx, "/users", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	var rooms []domain.ChatRoom
	if err := c.get(ctx, "/chatroom", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) GetRoom(ctx context.Context, roomSeq uint64) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	if err := c.get(ctx, fmt.Sprintf("/chatroom/%d", roomSeq), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Visit records the last-visited timestamp for a room. Callers treat this as
// best-effort.
func (c *Client) Visit(ctx context.Context, roomSeq uint64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/chatroom/%d/visit", c.baseURL, roomSeq), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("visit room %d: status %s", roomSeq, resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: status %s", path, resp.Status)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("GET %s: decode envelope: %w", path, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("GET %s: %s: %s", path, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("GET %s: backend reported failure", path)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("GET %s: decode data: %w", path, err)
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
