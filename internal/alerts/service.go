package alerts

import (
	"context"
	"fmt"
)

const (
	defaultExpiryWindowDays = 30
	maxExpiryWindowDays     = 365
)

// RepositoryPort is the subset of the repository the service consumes.
type RepositoryPort interface {
	LowStock(ctx context.Context, override *float64) ([]LowStockAlert, error)
	ExpiringBatches(ctx context.Context, daysAhead int) ([]ExpiryAlert, error)
	ExpiredBatches(ctx context.Context) ([]ExpiryAlert, error)
}

// Service serves alert views, caching each scan behind the version key so a
// stock movement invalidates every cached view at once.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// LowStock lists products at or below their low stock threshold. A non-nil
// override replaces every product's own threshold for this scan.
func (s *Service) LowStock(ctx context.Context, override *float64) ([]LowStockAlert, error) {
	if override != nil && *override < 0 {
		return nil, fmt.Errorf("alerts: threshold must not be negative")
	}
	key, err := s.cache.BuildKey(ctx, keyLowStock(override))
	if err != nil {
		return nil, err
	}
	var out []LowStockAlert
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.LowStock(ctx, override)
	})
	return out, err
}

// ExpiringBatches lists batches expiring within daysAhead days. Zero falls
// back to the default window.
func (s *Service) ExpiringBatches(ctx context.Context, daysAhead int) ([]ExpiryAlert, error) {
	if daysAhead < 0 || daysAhead > maxExpiryWindowDays {
		return nil, fmt.Errorf("alerts: days must be between 0 and %d", maxExpiryWindowDays)
	}
	if daysAhead == 0 {
		daysAhead = defaultExpiryWindowDays
	}
	key, err := s.cache.BuildKey(ctx, keyExpiring(daysAhead))
	if err != nil {
		return nil, err
	}
	var out []ExpiryAlert
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.ExpiringBatches(ctx, daysAhead)
	})
	return out, err
}

// ExpiredBatches lists batches past expiry that still hold stock.
func (s *Service) ExpiredBatches(ctx context.Context) ([]ExpiryAlert, error) {
	key, err := s.cache.BuildKey(ctx, keyExpired())
	if err != nil {
		return nil, err
	}
	var out []ExpiryAlert
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.ExpiredBatches(ctx)
	})
	return out, err
}

// Invalidate drops all cached alert views. Called after stock movements.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
