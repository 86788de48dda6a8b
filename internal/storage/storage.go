// Package storage is the durable local store for session credentials and
// cached user projections. All implementations are plain string key-value
// stores; the session manager owns every key and clears them together on
// logout.
package storage

import (
	"context"
	"errors"
)

// Keys persisted by the session manager.
const (
	KeyAccessToken            = "accessToken"
	KeyRefreshToken           = "refreshToken"
	KeyRefreshTokenExpiration = "refreshTokenExpiration"
	KeyUserRole               = "userRole"
	KeyUserSeq                = "userSeq"
	KeyIsLogined              = "isLogined"
	KeyUserInfo               = "userInfo"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("storage: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key owned by the store in one operation.
	Clear(ctx context.Context) error
	Close() error
}
