package redis

import (
	"context"
	"errors"
	"time"

	"github.com/edustake/edustake-core/internal/domain/profile"
)

// ProfileCache implements profile.Cache on top of the generic Cache.
// A miss is (nil, nil): callers fall through to the repository.
type ProfileCache struct {
	cache *Cache
}

// NewProfileCache creates a new ProfileCache.
func NewProfileCache(cache *Cache) *ProfileCache {
	return &ProfileCache{cache: cache}
}

// Get returns a cached profile, or (nil, nil) on a miss.
func (c *ProfileCache) Get(ctx context.Context, id string) (*profile.Profile, error) {
	var p profile.Profile
	if err := c.cache.Get(ctx, ProfileKey(id), &p); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Set stores a profile with the given TTL.
func (c *ProfileCache) Set(ctx context.Context, p *profile.Profile, ttl time.Duration) error {
	if p == nil {
		return nil
	}
	if ttl == 0 {
		ttl = TTLProfileCache
	}
	return c.cache.Set(ctx, ProfileKey(p.ID), p, ttl)
}

// Invalidate removes a profile from the cache.
func (c *ProfileCache) Invalidate(ctx context.Context, id string) error {
	return c.cache.Delete(ctx, ProfileKey(id))
}
