package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotledger/lotledger/internal/platform/db"
	"github.com/lotledger/lotledger/internal/shared"
)

// Repository persists ledger state in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the Apply
// functions. All reads lock the rows they return.
type TxRepository interface {
	GetLedgerForUpdate(ctx context.Context, productID int64) (Ledger, error)
	UpsertLedger(ctx context.Context, led Ledger) error
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	ListActiveBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error)
	GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error)
	UpdateBatch(ctx context.Context, batchID int64, available float64, active bool) error
	InsertAudit(ctx context.Context, entry AuditEntry) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other modules can compose
// ledger effects into their own transaction boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction, retrying
// once on serialization failure before surfacing a conflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrTxConflict, err)
	}
	return err
}

// GetLedger reads the current ledger row for a product.
func (r *Repository) GetLedger(ctx context.Context, productID int64) (Ledger, error) {
	var led Ledger
	err := r.pool.QueryRow(ctx, `SELECT product_id, qty_on_hand, reserved_qty, updated_at FROM inventory_ledgers WHERE product_id=$1`, productID).
		Scan(&led.ProductID, &led.QuantityOnHand, &led.ReservedQuantity, &led.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ledger{ProductID: productID}, ErrLedgerNotFound
		}
		return Ledger{}, err
	}
	return led, nil
}

// ListBatches returns a product's batches, newest receipt last.
func (r *Repository) ListBatches(ctx context.Context, productID int64, includeInactive bool) ([]Batch, error) {
	query := `SELECT id, product_id, purchase_order_id, grn_id, batch_number, quantity, available_qty, unit_cost, expiry_date, received_at, is_active
FROM inventory_batches
WHERE product_id=$1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY received_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// ListAudit returns audit entries matching the filter, newest first.
func (r *Repository) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	var conds []string
	var args []any
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id=$%d", len(args)))
	}
	if filter.BatchID != 0 {
		args = append(args, filter.BatchID)
		conds = append(conds, fmt.Sprintf("batch_id=$%d", len(args)))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		conds = append(conds, fmt.Sprintf("adjustment_type = ANY($%d)", len(args)))
	}
	query := `SELECT id, product_id, batch_id, adjustment_type, qty_change, qty_before, qty_after, reason, reference_id, reference_number, performed_by, occurred_at
FROM inventory_audits`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var batchID, performedBy pgtype.Int8
		var refID, refNumber pgtype.Text
		if err := rows.Scan(&entry.ID, &entry.ProductID, &batchID, &entry.Type, &entry.QuantityChange, &entry.QuantityBefore, &entry.QuantityAfter, &entry.Reason, &refID, &refNumber, &performedBy, &entry.OccurredAt); err != nil {
			return nil, err
		}
		entry.BatchID = batchID.Int64
		entry.PerformedBy = performedBy.Int64
		entry.ReferenceID = refID.String
		entry.ReferenceNumber = refNumber.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CheckIntegrity cross-reads active batch sums against ledger availability.
// Read-only; the transactional path remains the authority.
func (r *Repository) CheckIntegrity(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.product_id, l.qty_on_hand, COALESCE(b.total, 0) AS batch_total
FROM inventory_ledgers l
LEFT JOIN (
    SELECT product_id, SUM(available_qty) AS total
    FROM inventory_batches
    WHERE is_active
    GROUP BY product_id
) b ON b.product_id = l.product_id
WHERE ABS(l.qty_on_hand - COALESCE(b.total, 0)) > 1e-6`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ProductID, &d.LedgerOnHand, &d.BatchTotal); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func (r *txRepository) GetLedgerForUpdate(ctx context.Context, productID int64) (Ledger, error) {
	var led Ledger
	err := r.tx.QueryRow(ctx, `SELECT product_id, qty_on_hand, reserved_qty, updated_at FROM inventory_ledgers WHERE product_id=$1 FOR UPDATE`, productID).
		Scan(&led.ProductID, &led.QuantityOnHand, &led.ReservedQuantity, &led.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ledger{ProductID: productID}, ErrLedgerNotFound
		}
		return Ledger{}, err
	}
	return led, nil
}

func (r *txRepository) UpsertLedger(ctx context.Context, led Ledger) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_ledgers (product_id, qty_on_hand, reserved_qty, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (product_id) DO UPDATE SET qty_on_hand=EXCLUDED.qty_on_hand, reserved_qty=EXCLUDED.reserved_qty, updated_at=NOW()`,
		led.ProductID, led.QuantityOnHand, led.ReservedQuantity)
	return err
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_batches (product_id, purchase_order_id, grn_id, batch_number, quantity, available_qty, unit_cost, expiry_date, received_at, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		batch.ProductID, nullInt(batch.PurchaseOrderID), nullInt(batch.GRNID), batch.BatchNumber,
		batch.Quantity, batch.AvailableQuantity, batch.UnitCost, nullTime(batch.ExpiryDate), batch.ReceivedAt, batch.IsActive).Scan(&id)
	return id, err
}

func (r *txRepository) ListActiveBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, purchase_order_id, grn_id, batch_number, quantity, available_qty, unit_cost, expiry_date, received_at, is_active
FROM inventory_batches
WHERE product_id=$1 AND is_active AND available_qty > 0
ORDER BY expiry_date ASC NULLS LAST, received_at ASC, id ASC
FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, product_id, purchase_order_id, grn_id, batch_number, quantity, available_qty, unit_cost, expiry_date, received_at, is_active
FROM inventory_batches WHERE id=$1 FOR UPDATE`, batchID)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return batch, nil
}

func (r *txRepository) UpdateBatch(ctx context.Context, batchID int64, available float64, active bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_batches SET available_qty=$2, is_active=$3 WHERE id=$1`, batchID, available, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) InsertAudit(ctx context.Context, entry AuditEntry) error {
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_audits (product_id, batch_id, adjustment_type, qty_change, qty_before, qty_after, reason, reference_id, reference_number, performed_by, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		entry.ProductID, nullInt(entry.BatchID), string(entry.Type), entry.QuantityChange, entry.QuantityBefore, entry.QuantityAfter,
		entry.Reason, nullString(entry.ReferenceID), nullString(entry.ReferenceNumber), nullInt(entry.PerformedBy), occurredAt)
	return err
}

type batchRow interface {
	Scan(dest ...any) error
}

func scanBatch(row batchRow) (Batch, error) {
	var b Batch
	var poID, grnID pgtype.Int8
	var batchNumber pgtype.Text
	var expiry pgtype.Timestamptz
	if err := row.Scan(&b.ID, &b.ProductID, &poID, &grnID, &batchNumber, &b.Quantity, &b.AvailableQuantity, &b.UnitCost, &expiry, &b.ReceivedAt, &b.IsActive); err != nil {
		return Batch{}, err
	}
	b.PurchaseOrderID = poID.Int64
	b.GRNID = grnID.Int64
	b.BatchNumber = batchNumber.String
	if expiry.Valid {
		b.ExpiryDate = expiry.Time
	}
	return b, nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
