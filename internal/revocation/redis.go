package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blacklist:"

// RedisStore shares revocations across instances. Each entry carries a TTL
// equal to the token's remaining lifetime, so redis expires it on its own.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl, ok := s.ttl(expiresAt)
	if !ok {
		return nil
	}

	if err := s.client.Set(ctx, keyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token in redis: %w", err)
	}
	return nil
}

// Claim relies on SETNX so concurrent callers across instances agree on a
// single winner.
func (s *RedisStore) Claim(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl, ok := s.ttl(expiresAt)
	if !ok {
		return false, nil
	}

	claimed, err := s.client.SetNX(ctx, keyPrefix+tokenID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim token in redis: %w", err)
	}
	return claimed, nil
}

func (s *RedisStore) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token in redis: %w", err)
	}
	return n > 0, nil
}

// Prune is a no-op: redis expires entries itself.
func (s *RedisStore) Prune(context.Context) (int64, error) {
	return 0, nil
}

func (s *RedisStore) ttl(expiresAt time.Time) (time.Duration, bool) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return 0, false
	}
	// Round up so the entry never disappears before the token does.
	return ttl.Truncate(time.Second) + time.Second, true
}
