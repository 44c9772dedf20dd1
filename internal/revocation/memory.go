package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps revoked token ids in process memory. Entries are lost on
// restart, so it fits single-instance deployments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, struct{}]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: ttlcache.New[string, struct{}](
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

func (s *MemoryStore) Add(_ context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.cache.Get(tokenID); item != nil && item.ExpiresAt().After(expiresAt) {
		return nil
	}
	s.cache.Set(tokenID, struct{}{}, ttl)
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, found := s.cache.GetOrSet(tokenID, struct{}{}, ttlcache.WithTTL[string, struct{}](ttl))
	return !found, nil
}

func (s *MemoryStore) Contains(_ context.Context, tokenID string) (bool, error) {
	return s.cache.Has(tokenID), nil
}

// Prune drops expired entries and reports how many were removed.
func (s *MemoryStore) Prune(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cache.Metrics().Evictions
	s.cache.DeleteExpired()
	return int64(s.cache.Metrics().Evictions - before), nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
