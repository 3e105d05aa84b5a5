package redis

import (
	"context"

	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// CachedProfileRepository украшает репозиторий профилей сквозным кешем.
// Чтения по ID идут через кеш, записи инвалидируют его. Источник истины
// всегда нижележащий репозиторий: промах или недоступный Redis просто
// превращаются в прямое чтение.
type CachedProfileRepository struct {
	inner profile.Repository
	cache profile.Cache
}

// NewCachedProfileRepository wraps a repository with the profile cache.
func NewCachedProfileRepository(inner profile.Repository, cache profile.Cache) *CachedProfileRepository {
	return &CachedProfileRepository{inner: inner, cache: cache}
}

// Create persists the profile and warms the cache.
func (r *CachedProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	if err := r.inner.Create(ctx, p); err != nil {
		return err
	}
	_ = r.cache.Set(ctx, p, 0)
	return nil
}

// GetByID reads through the cache.
func (r *CachedProfileRepository) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	if cached, err := r.cache.Get(ctx, id); err == nil && cached != nil {
		return cached, nil
	}

	p, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, p, 0)
	return p, nil
}

// GetByWallet is uncached: wallet lookups happen once per connection.
func (r *CachedProfileRepository) GetByWallet(ctx context.Context, wallet shared.WalletAddress) (*profile.Profile, error) {
	return r.inner.GetByWallet(ctx, wallet)
}

// Update persists the profile and drops the stale cached copy.
func (r *CachedProfileRepository) Update(ctx context.Context, p *profile.Profile) error {
	if err := r.inner.Update(ctx, p); err != nil {
		return err
	}
	_ = r.cache.Invalidate(ctx, p.ID)
	return nil
}

// UpdateTokenBalance persists the balance and invalidates the cache.
func (r *CachedProfileRepository) UpdateTokenBalance(ctx context.Context, id string, balance shared.Amount) error {
	if err := r.inner.UpdateTokenBalance(ctx, id, balance); err != nil {
		return err
	}
	_ = r.cache.Invalidate(ctx, id)
	return nil
}

// List passes through; listings are not cached.
func (r *CachedProfileRepository) List(ctx context.Context, opts profile.ListOptions) ([]*profile.Profile, error) {
	return r.inner.List(ctx, opts)
}

// ListActiveStudents passes through.
func (r *CachedProfileRepository) ListActiveStudents(ctx context.Context, limit, offset int) ([]*profile.Profile, error) {
	return r.inner.ListActiveStudents(ctx, limit, offset)
}

// Count passes through.
func (r *CachedProfileRepository) Count(ctx context.Context, opts profile.ListOptions) (int, error) {
	return r.inner.Count(ctx, opts)
}
