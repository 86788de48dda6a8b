package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the display/authorization hint decoded from the access token
// payload. The client holds no signing key, so nothing here is verified; the
// server re-checks every protected call and stays authoritative.
type Identity struct {
	UserSeq string
	Role    string
}

var ErrUndecodableToken = errors.New("undecodable access token")

type accessClaims struct {
	Auth    string `json:"auth"`
	UserSeq string `json:"userSeq"`
	jwt.RegisteredClaims
}

var unverifiedParser = jwt.NewParser()

// DecodeIdentity extracts the auth role and user sequence from an access
// token without verifying its signature.
func DecodeIdentity(raw string) (Identity, error) {
	claims := &accessClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(raw, claims); err != nil {
		return Identity{}, ErrUndecodableToken
	}
	if claims.UserSeq == "" && claims.Subject != "" {
		claims.UserSeq = claims.Subject
	}
	return Identity{UserSeq: claims.UserSeq, Role: claims.Auth}, nil
}

// TokenExpired reports whether the token's embedded exp claim is in the past.
// Tokens that cannot be decoded or carry no expiry count as expired, which
// forces a reissue attempt instead of sending a doomed request.
func TokenExpired(raw string, now time.Time) bool {
	claims := &accessClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(raw, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Before(now)
}
