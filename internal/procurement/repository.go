package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotledger/lotledger/internal/ledger"
	"github.com/lotledger/lotledger/internal/platform/db"
	"github.com/lotledger/lotledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Ledger() hands back a ledger
// view over the same transaction, so confirming a receipt or posting a return
// commits document state and stock effects as one unit.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOItem(ctx context.Context, item POItem) (int64, error)
	DeletePOItem(ctx context.Context, poID, itemID int64) error
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	SetPOApproval(ctx context.Context, id int64, approvedBy int64) error
	CreateGRN(ctx context.Context, grn GoodsReceiveNote) (int64, error)
	InsertGRNItem(ctx context.Context, item GRNItem) (int64, error)
	GetGRNForUpdate(ctx context.Context, id int64) (GoodsReceiveNote, error)
	UpdateGRNStatus(ctx context.Context, id int64, status GRNStatus) error
	CreateSupplierReturn(ctx context.Context, ret SupplierReturn) (int64, error)
	InsertReturnItem(ctx context.Context, item ReturnItem) error
	SaveIdempotencyResult(ctx context.Context, key string, result []byte) error
	Ledger() ledger.TxRepository
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction, retrying once
// on serialization failure before surfacing a conflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	err := db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrTxConflict, err)
	}
	return err
}

const poColumns = `id, number, supplier_id, status, note, approved_by, approved_at, created_at`

// GetPO returns a purchase order with its items.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id)
	po, err := scanPO(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", ErrNotFound, id)
		}
		return PurchaseOrder{}, err
	}
	po.Items, err = listPOItems(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ListFilters narrows PO and GRN listings.
type ListFilters struct {
	Status     string
	SupplierID int64
	Search     string
}

// ListPOs returns purchase orders matching the filters, newest first.
func (r *Repository) ListPOs(ctx context.Context, filters ListFilters, page shared.Pagination) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filters.SupplierID > 0 {
		args = append(args, filters.SupplierID)
		where += fmt.Sprintf(` AND supplier_id = $%d`, len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += fmt.Sprintf(` AND number ILIKE $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PerPage, page.Offset())
	query := `SELECT ` + poColumns + ` FROM purchase_orders` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var pos []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		pos = append(pos, po)
	}
	return pos, total, rows.Err()
}

const grnColumns = `id, number, supplier_id, po_id, status, idempotency_key, received_at, note, created_at`

// GetGRN returns a goods receive note with its items.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GoodsReceiveNote, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receive_notes WHERE id=$1`, id)
	grn, err := scanGRN(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceiveNote{}, fmt.Errorf("%w: goods receive note %d", ErrNotFound, id)
		}
		return GoodsReceiveNote{}, err
	}
	grn.Items, err = listGRNItems(ctx, r.pool, id)
	if err != nil {
		return GoodsReceiveNote{}, err
	}
	return grn, nil
}

// ListGRNs returns goods receive notes matching the filters, newest first.
func (r *Repository) ListGRNs(ctx context.Context, filters ListFilters, page shared.Pagination) ([]GoodsReceiveNote, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filters.SupplierID > 0 {
		args = append(args, filters.SupplierID)
		where += fmt.Sprintf(` AND supplier_id = $%d`, len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += fmt.Sprintf(` AND number ILIKE $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_receive_notes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PerPage, page.Offset())
	query := `SELECT ` + grnColumns + ` FROM goods_receive_notes` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var grns []GoodsReceiveNote
	for rows.Next() {
		grn, err := scanGRN(rows)
		if err != nil {
			return nil, 0, err
		}
		grns = append(grns, grn)
	}
	return grns, total, rows.Err()
}

// GetSupplierReturn returns a supplier return with its items.
func (r *Repository) GetSupplierReturn(ctx context.Context, id int64) (SupplierReturn, error) {
	var ret SupplierReturn
	var grnID pgtype.Int8
	err := r.pool.QueryRow(ctx, `SELECT id, number, supplier_id, grn_id, credit_total, created_at FROM supplier_returns WHERE id=$1`, id).
		Scan(&ret.ID, &ret.Number, &ret.SupplierID, &grnID, &ret.CreditTotal, &ret.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierReturn{}, fmt.Errorf("%w: supplier return %d", ErrNotFound, id)
		}
		return SupplierReturn{}, err
	}
	if grnID.Valid {
		ret.GRNID = grnID.Int64
	}
	rows, err := r.pool.Query(ctx, `SELECT id, return_id, product_id, batch_id, qty, unit_cost, reason FROM supplier_return_items WHERE return_id=$1 ORDER BY id`, id)
	if err != nil {
		return SupplierReturn{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item ReturnItem
		var batchID pgtype.Int8
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &batchID, &item.Quantity, &item.UnitCost, &item.Reason); err != nil {
			return SupplierReturn{}, err
		}
		if batchID.Valid {
			item.BatchID = batchID.Int64
		}
		ret.Items = append(ret.Items, item)
	}
	return ret, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listPOItems(ctx context.Context, q querier, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, product_id, qty, unit_price FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func listGRNItems(ctx context.Context, q querier, grnID int64) ([]GRNItem, error) {
	rows, err := q.Query(ctx, `SELECT id, grn_id, product_id, qty, unit_cost, batch_number, expiry_date FROM grn_items WHERE grn_id=$1 ORDER BY id`, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GRNItem
	for rows.Next() {
		var item GRNItem
		var batchNumber pgtype.Text
		var expiry pgtype.Timestamptz
		if err := rows.Scan(&item.ID, &item.GRNID, &item.ProductID, &item.Quantity, &item.UnitCost, &batchNumber, &expiry); err != nil {
			return nil, err
		}
		if batchNumber.Valid {
			item.BatchNumber = batchNumber.String
		}
		if expiry.Valid {
			item.ExpiryDate = expiry.Time
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (tx *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, note, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		po.Number, po.SupplierID, string(po.Status), po.Note).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertPOItem(ctx context.Context, item POItem) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, product_id, qty, unit_price) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.POID, item.ProductID, item.Quantity, item.UnitPrice).Scan(&id)
	return id, err
}

func (tx *txRepo) DeletePOItem(ctx context.Context, poID, itemID int64) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE id=$1 AND po_id=$2`, itemID, poID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d on purchase order %d", ErrNotFound, itemID, poID)
	}
	return nil
}

func (tx *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := tx.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id)
	po, err := scanPO(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", ErrNotFound, id)
		}
		return PurchaseOrder{}, err
	}
	po.Items, err = listPOItems(ctx, tx.tx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (tx *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (tx *txRepo) SetPOApproval(ctx context.Context, id int64, approvedBy int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET approved_by=$2, approved_at=NOW() WHERE id=$1`, id, approvedBy)
	return err
}

func (tx *txRepo) CreateGRN(ctx context.Context, grn GoodsReceiveNote) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO goods_receive_notes (number, supplier_id, po_id, status, idempotency_key, received_at, note, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		grn.Number, grn.SupplierID, nullInt(grn.POID), string(grn.Status), nullString(grn.IdempotencyKey), nullTime(grn.ReceivedAt), grn.Note).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertGRNItem(ctx context.Context, item GRNItem) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO grn_items (grn_id, product_id, qty, unit_cost, batch_number, expiry_date) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		item.GRNID, item.ProductID, item.Quantity, item.UnitCost, nullString(item.BatchNumber), nullTime(item.ExpiryDate)).Scan(&id)
	return id, err
}

func (tx *txRepo) GetGRNForUpdate(ctx context.Context, id int64) (GoodsReceiveNote, error) {
	row := tx.tx.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receive_notes WHERE id=$1 FOR UPDATE`, id)
	grn, err := scanGRN(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceiveNote{}, fmt.Errorf("%w: goods receive note %d", ErrNotFound, id)
		}
		return GoodsReceiveNote{}, err
	}
	grn.Items, err = listGRNItems(ctx, tx.tx, id)
	if err != nil {
		return GoodsReceiveNote{}, err
	}
	return grn, nil
}

func (tx *txRepo) UpdateGRNStatus(ctx context.Context, id int64, status GRNStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE goods_receive_notes SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (tx *txRepo) CreateSupplierReturn(ctx context.Context, ret SupplierReturn) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO supplier_returns (number, supplier_id, grn_id, credit_total, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		ret.Number, ret.SupplierID, nullInt(ret.GRNID), ret.CreditTotal).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertReturnItem(ctx context.Context, item ReturnItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO supplier_return_items (return_id, product_id, batch_id, qty, unit_cost, reason) VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ReturnID, item.ProductID, nullInt(item.BatchID), item.Quantity, item.UnitCost, item.Reason)
	return err
}

func (tx *txRepo) SaveIdempotencyResult(ctx context.Context, key string, result []byte) error {
	return shared.SaveResult(ctx, tx.tx, key, "procurement.grn", result)
}

func (tx *txRepo) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(tx.tx)
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

type poRow interface {
	Scan(dest ...any) error
}

func scanPO(row poRow) (PurchaseOrder, error) {
	var po PurchaseOrder
	var approvedBy pgtype.Int8
	var approvedAt pgtype.Timestamptz
	if err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.Note, &approvedBy, &approvedAt, &po.CreatedAt); err != nil {
		return PurchaseOrder{}, err
	}
	if approvedBy.Valid {
		po.ApprovedBy = approvedBy.Int64
	}
	if approvedAt.Valid {
		po.ApprovedAt = approvedAt.Time
	}
	return po, nil
}

func scanGRN(row poRow) (GoodsReceiveNote, error) {
	var grn GoodsReceiveNote
	var poID pgtype.Int8
	var key pgtype.Text
	var receivedAt pgtype.Timestamptz
	if err := row.Scan(&grn.ID, &grn.Number, &grn.SupplierID, &poID, &grn.Status, &key, &receivedAt, &grn.Note, &grn.CreatedAt); err != nil {
		return GoodsReceiveNote{}, err
	}
	if poID.Valid {
		grn.POID = poID.Int64
	}
	if key.Valid {
		grn.IdempotencyKey = key.String
	}
	if receivedAt.Valid {
		grn.ReceivedAt = receivedAt.Time
	}
	return grn, nil
}
