package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "portal:revoked:"

type redisRevoker struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis connects to the Redis server at rawURL (redis://[:pass@]host:port/db)
// and verifies it with a PING.
func NewRedis(ctx context.Context, rawURL string, now func() time.Time) (Revoker, error) {
	if rawURL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisClient(client, now), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, now func() time.Time) Revoker {
	if now == nil {
		now = time.Now
	}
	return &redisRevoker{client: client, now: now}
}

func (r *redisRevoker) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	ttl := expiresAt.Sub(r.now())
	if expiresAt.IsZero() {
		ttl = 0 // keep until deleted
	} else if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, redisKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}
	return nil
}

func (r *redisRevoker) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis lookup: %w", err)
	}
	return n > 0, nil
}

func (r *redisRevoker) Close() error {
	return r.client.Close()
}
