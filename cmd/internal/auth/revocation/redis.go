package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry stores entries as "bl:<id>" = "1" with a TTL.
type RedisRegistry struct {
	client redis.UniversalClient
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry wraps an existing client. The caller owns the client.
func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	// Redis EX takes whole seconds; round up so the entry never expires early.
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	if err := r.client.Set(ctx, Key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation: set %s: %w", tokenID, err)
	}
	return nil
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, Key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: exists %s: %w", tokenID, err)
	}
	return n > 0, nil
}

// Ping reports whether the backing Redis is reachable.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
