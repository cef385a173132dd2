package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist remembers revoked token ids until the token would have
// expired anyway.
type TokenBlacklist struct {
	rdb *redis.Client
}

func NewTokenBlacklist(rdb *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rdb: rdb}
}

func blacklistKey(jti string) string {
	return "session:revoked:" + jti
}

// Revoke marks jti as revoked for ttl. A non-positive ttl is a no-op since the
// token has already expired.
func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, blacklistKey(jti), 1, ttl).Err()
}

// IsRevoked reports whether jti was revoked.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
