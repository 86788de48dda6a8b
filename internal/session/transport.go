package session

import (
	"net/http"

	"github.com/medihub/medihub-go/internal/security"
)

// Transport returns the pre-send hook applied to every outbound request:
// no token passes the request through untouched; an expired token triggers a
// refresh-then-retry with concurrent callers serialized behind one reissue;
// otherwise the current token is attached as a bearer credential.
func (m *Manager) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &augmentingTransport{manager: m, base: base}
}

type augmentingTransport struct {
	manager *Manager
	base    http.RoundTripper
}

func (t *augmentingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.manager.AccessToken()
	if token == "" {
		return t.base.RoundTrip(req)
	}
	if security.TokenExpired(token, t.manager.now()) {
		renewed, err := t.manager.refreshAccessToken(req.Context())
		if err != nil {
			return nil, err
		}
		token = renewed
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}
