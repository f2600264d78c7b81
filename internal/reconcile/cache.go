package reconcile

import (
	"context"
	"time"

	"mediashelf/internal/library/store"
)

// ProviderCache adapts the store's match cache to the matcher's cache
// contract, binding the freshness window and clock in one place.
type ProviderCache struct {
	store *store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewProviderCache wraps the store cache with a TTL. A nil now defaults to
// the wall clock.
func NewProviderCache(s *store.Store, ttl time.Duration, now func() time.Time) *ProviderCache {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ProviderCache{store: s, ttl: ttl, now: now}
}

func (c *ProviderCache) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.CacheGet(ctx, key, c.ttl, c.now())
}

func (c *ProviderCache) GetStale(ctx context.Context, key string) (string, bool, error) {
	return c.store.CacheGetStale(ctx, key)
}

func (c *ProviderCache) Put(ctx context.Context, key, payload string) error {
	return c.store.CachePut(ctx, key, payload, c.now())
}
