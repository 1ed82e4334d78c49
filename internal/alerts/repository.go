package alerts

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the alert scans against the live ledger tables.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LowStock returns active products whose available quantity is at or below
// the threshold. When override is nil each product's own threshold applies.
func (r *Repository) LowStock(ctx context.Context, override *float64) ([]LowStockAlert, error) {
	query := `SELECT p.id, p.sku, p.name,
    COALESCE(l.qty_on_hand, 0) - COALESCE(l.reserved_qty, 0) AS available,
    p.low_stock_threshold, p.reorder_point, p.suggested_reorder_qty
FROM products p
LEFT JOIN inventory_ledgers l ON l.product_id = p.id
WHERE p.is_active`
	args := []any{}
	if override != nil {
		query += ` AND COALESCE(l.qty_on_hand, 0) - COALESCE(l.reserved_qty, 0) <= $1`
		args = append(args, *override)
	} else {
		query += ` AND COALESCE(l.qty_on_hand, 0) - COALESCE(l.reserved_qty, 0) <= p.low_stock_threshold`
	}
	query += ` ORDER BY available ASC, p.sku ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LowStockAlert, 0)
	for rows.Next() {
		var a LowStockAlert
		if err := rows.Scan(&a.ProductID, &a.SKU, &a.Name, &a.Available, &a.Threshold, &a.ReorderPoint, &a.SuggestedReorderQuantity); err != nil {
			return nil, err
		}
		if override != nil {
			a.Threshold = *override
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ExpiringBatches returns active batches with remaining stock whose expiry
// falls within the next daysAhead days. Already expired batches are excluded.
func (r *Repository) ExpiringBatches(ctx context.Context, daysAhead int) ([]ExpiryAlert, error) {
	horizon := time.Now().AddDate(0, 0, daysAhead)
	return r.scanExpiry(ctx, `SELECT b.id, b.product_id, p.sku, p.name, b.batch_number, b.available_qty, b.expiry_date
FROM inventory_batches b
JOIN products p ON p.id = b.product_id
WHERE b.is_active AND b.available_qty > 0
  AND b.expiry_date IS NOT NULL AND b.expiry_date > NOW() AND b.expiry_date <= $1
ORDER BY b.expiry_date ASC, b.id ASC`, horizon)
}

// ExpiredBatches returns batches already past expiry that still hold stock.
func (r *Repository) ExpiredBatches(ctx context.Context) ([]ExpiryAlert, error) {
	return r.scanExpiry(ctx, `SELECT b.id, b.product_id, p.sku, p.name, b.batch_number, b.available_qty, b.expiry_date
FROM inventory_batches b
JOIN products p ON p.id = b.product_id
WHERE b.is_active AND b.available_qty > 0
  AND b.expiry_date IS NOT NULL AND b.expiry_date <= NOW()
ORDER BY b.expiry_date ASC, b.id ASC`)
}

func (r *Repository) scanExpiry(ctx context.Context, query string, args ...any) ([]ExpiryAlert, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ExpiryAlert, 0)
	for rows.Next() {
		var a ExpiryAlert
		if err := rows.Scan(&a.BatchID, &a.ProductID, &a.SKU, &a.Name, &a.BatchNumber, &a.AvailableQuantity, &a.ExpiryDate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
