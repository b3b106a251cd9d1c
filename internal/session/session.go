// Package session tracks revoked session tokens so that logout takes effect
// before a token's natural expiry.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyTokenID is returned when a revocation names no token.
var ErrEmptyTokenID = errors.New("token id is required")

// Revoker records and checks revoked token ids. Entries only need to live
// until the token would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
	Close() error
}

// Config selects the backing store. An empty RedisURL keeps revocations in
// process, which is only correct for a single instance.
type Config struct {
	RedisURL   string
	MaxEntries int
	// TokenTTL bounds how long an in-process entry is kept.
	TokenTTL time.Duration
	Now      func() time.Time
}

// New returns the Redis store when cfg.RedisURL is set, otherwise the
// in-process store.
func New(ctx context.Context, cfg Config) (Revoker, error) {
	if cfg.RedisURL != "" {
		return NewRedis(ctx, cfg.RedisURL, cfg.Now)
	}
	return NewMemory(cfg), nil
}
