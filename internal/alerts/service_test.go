package alerts

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockRepo struct {
	lowStock      []LowStockAlert
	expiring      []ExpiryAlert
	expired       []ExpiryAlert
	lowStockCalls int
	expiringCalls int
	expiredCalls  int
	lastOverride  *float64
	lastDays      int
}

func (m *mockRepo) LowStock(_ context.Context, override *float64) ([]LowStockAlert, error) {
	m.lowStockCalls++
	m.lastOverride = override
	return m.lowStock, nil
}

func (m *mockRepo) ExpiringBatches(_ context.Context, daysAhead int) ([]ExpiryAlert, error) {
	m.expiringCalls++
	m.lastDays = daysAhead
	return m.expiring, nil
}

func (m *mockRepo) ExpiredBatches(_ context.Context) ([]ExpiryAlert, error) {
	m.expiredCalls++
	return m.expired, nil
}

func newTestService(t *testing.T, repo RepositoryPort) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestLowStockCaches(t *testing.T) {
	repo := &mockRepo{
		lowStock: []LowStockAlert{
			{ProductID: 1, SKU: "FLOUR-25", Name: "Bread Flour 25kg", Available: 2, Threshold: 10, ReorderPoint: 15, SuggestedReorderQuantity: 40},
		},
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	alerts, err := svc.LowStock(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 || alerts[0].SKU != "FLOUR-25" {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	if repo.lowStockCalls != 1 {
		t.Fatalf("expected 1 repo call, got %d", repo.lowStockCalls)
	}

	// Second call should hit cache.
	if _, err := svc.LowStock(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lowStockCalls != 1 {
		t.Fatalf("expected cached result, repo called %d times", repo.lowStockCalls)
	}

	// Bumping the version should trigger reload.
	if err := svc.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, err := svc.LowStock(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lowStockCalls != 2 {
		t.Fatalf("expected repo to refresh, calls %d", repo.lowStockCalls)
	}
}

func TestLowStockOverrideKeyedSeparately(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	if _, err := svc.LowStock(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	override := 25.0
	if _, err := svc.LowStock(ctx, &override); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lowStockCalls != 2 {
		t.Fatalf("expected separate cache entries, calls %d", repo.lowStockCalls)
	}
	if repo.lastOverride == nil || *repo.lastOverride != 25.0 {
		t.Fatalf("override not passed through: %v", repo.lastOverride)
	}

	if _, err := svc.LowStock(ctx, &override); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lowStockCalls != 2 {
		t.Fatalf("expected override scan to be cached, calls %d", repo.lowStockCalls)
	}
}

func TestLowStockRejectsNegativeThreshold(t *testing.T) {
	svc, cleanup := newTestService(t, &mockRepo{})
	defer cleanup()

	bad := -1.0
	if _, err := svc.LowStock(context.Background(), &bad); err == nil {
		t.Fatal("expected error for negative threshold")
	}
}

func TestExpiringBatchesDefaultWindow(t *testing.T) {
	repo := &mockRepo{
		expiring: []ExpiryAlert{
			{BatchID: 9, ProductID: 1, SKU: "MILK-1L", Name: "Whole Milk 1L", AvailableQuantity: 12, ExpiryDate: time.Now().AddDate(0, 0, 5)},
		},
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	alerts, err := svc.ExpiringBatches(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	if repo.lastDays != defaultExpiryWindowDays {
		t.Fatalf("expected default window %d, got %d", defaultExpiryWindowDays, repo.lastDays)
	}

	if _, err := svc.ExpiringBatches(ctx, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastDays != 7 {
		t.Fatalf("expected window 7, got %d", repo.lastDays)
	}
	if repo.expiringCalls != 2 {
		t.Fatalf("expected 2 repo calls, got %d", repo.expiringCalls)
	}

	if _, err := svc.ExpiringBatches(ctx, maxExpiryWindowDays+1); err == nil {
		t.Fatal("expected error for window beyond the maximum")
	}
}

func TestExpiredBatchesCached(t *testing.T) {
	repo := &mockRepo{
		expired: []ExpiryAlert{
			{BatchID: 4, ProductID: 2, SKU: "YEAST-500", Name: "Dry Yeast 500g", AvailableQuantity: 3, ExpiryDate: time.Now().AddDate(0, 0, -2)},
		},
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		alerts, err := svc.ExpiredBatches(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(alerts) != 1 || alerts[0].BatchID != 4 {
			t.Fatalf("unexpected alerts: %+v", alerts)
		}
	}
	if repo.expiredCalls != 1 {
		t.Fatalf("expected cached result, repo called %d times", repo.expiredCalls)
	}
}
