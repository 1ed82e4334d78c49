package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotledger/lotledger/internal/catalog"
	"github.com/lotledger/lotledger/internal/shared"
)

// memRepo backs the service with maps so service logic and the Apply
// functions run without a database. WithTx hands the repo itself to the
// callback; failed callbacks leave mutated state behind, so tests that
// exercise rollback semantics assert on the error path before mutation.
type memRepo struct {
	ledgers     map[int64]Ledger
	batches     map[int64]Batch
	audits      []AuditEntry
	nextBatchID int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		ledgers: make(map[int64]Ledger),
		batches: make(map[int64]Batch),
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) GetLedgerForUpdate(_ context.Context, productID int64) (Ledger, error) {
	led, ok := m.ledgers[productID]
	if !ok {
		return Ledger{}, ErrLedgerNotFound
	}
	return led, nil
}

func (m *memRepo) UpsertLedger(_ context.Context, led Ledger) error {
	led.UpdatedAt = time.Now().UTC()
	m.ledgers[led.ProductID] = led
	return nil
}

func (m *memRepo) InsertBatch(_ context.Context, batch Batch) (int64, error) {
	m.nextBatchID++
	batch.ID = m.nextBatchID
	m.batches[batch.ID] = batch
	return batch.ID, nil
}

func (m *memRepo) ListActiveBatchesForUpdate(_ context.Context, productID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if b.ProductID == productID && b.IsActive {
			out = append(out, b)
		}
	}
	sortForConsumption(out)
	return out, nil
}

func (m *memRepo) GetBatchForUpdate(_ context.Context, batchID int64) (Batch, error) {
	b, ok := m.batches[batchID]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	return b, nil
}

func (m *memRepo) UpdateBatch(_ context.Context, batchID int64, available float64, active bool) error {
	b, ok := m.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	b.AvailableQuantity = available
	b.IsActive = active
	m.batches[batchID] = b
	return nil
}

func (m *memRepo) InsertAudit(_ context.Context, entry AuditEntry) error {
	entry.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, entry)
	return nil
}

func (m *memRepo) GetLedger(ctx context.Context, productID int64) (Ledger, error) {
	led, ok := m.ledgers[productID]
	if !ok {
		return Ledger{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	return led, nil
}

func (m *memRepo) ListBatches(_ context.Context, productID int64, includeInactive bool) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if b.ProductID != productID {
			continue
		}
		if !includeInactive && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListAudit(_ context.Context, filter AuditFilter) ([]AuditEntry, error) {
	var out []AuditEntry
	for _, e := range m.audits {
		if filter.ProductID != 0 && e.ProductID != filter.ProductID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memRepo) auditsOfType(t AdjustmentType) []AuditEntry {
	var out []AuditEntry
	for _, e := range m.audits {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type stubCatalog struct {
	missing map[int64]bool
}

func (c *stubCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	if c.missing[id] {
		return catalog.Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return catalog.Product{ID: id, SKU: fmt.Sprintf("SKU-%d", id), Name: "test product", IsActive: true}, nil
}

type stubAudit struct {
	logs []shared.AuditLog
}

func (a *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type stubIntegration struct {
	increased []StockIncreasedEvent
	decreased []StockDecreasedEvent
	failWith  error
}

func (i *stubIntegration) HandleStockIncreased(_ context.Context, evt StockIncreasedEvent) error {
	i.increased = append(i.increased, evt)
	return i.failWith
}

func (i *stubIntegration) HandleStockDecreased(_ context.Context, evt StockDecreasedEvent) error {
	i.decreased = append(i.decreased, evt)
	return i.failWith
}

func newTestService(repo *memRepo) (*Service, *stubAudit, *stubIntegration) {
	audit := &stubAudit{}
	integration := &stubIntegration{}
	svc := NewService(repo, &stubCatalog{}, audit, nil, nil, integration)
	return svc, audit, integration
}

func seedReceipt(t *testing.T, repo *memRepo, lines []ReceiptLine) []BatchReceipt {
	t.Helper()
	var receipts []BatchReceipt
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var applyErr error
		receipts, applyErr = ApplyReceipt(ctx, tx, ReceiptInput{
			GRNID:           77,
			ReferenceNumber: "GRN-2026-001",
			ActorID:         9,
			Lines:           lines,
		})
		return applyErr
	})
	require.NoError(t, err)
	return receipts
}

func TestConsumeStockAllocatesAcrossBatches(t *testing.T) {
	repo := newMemRepo()
	svc, audit, integration := newTestService(repo)

	seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(4), BatchNumber: "B-1", ExpiryDate: day("2026-10-01")},
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(6), BatchNumber: "B-2", ExpiryDate: day("2026-09-01")},
	})

	result, err := svc.ConsumeStock(context.Background(), ConsumeInput{
		ProductID: 1,
		Quantity:  12,
		Reason:    ReasonSale,
		ActorID:   9,
	})
	require.NoError(t, err)

	// B-2 expires first: 10 from it, then 2 from B-1.
	require.Len(t, result.Allocations, 2)
	require.Equal(t, "B-2", result.Allocations[0].BatchNumber)
	require.InDelta(t, 10, result.Allocations[0].Quantity, qtyEpsilon)
	require.Equal(t, "B-1", result.Allocations[1].BatchNumber)
	require.InDelta(t, 2, result.Allocations[1].Quantity, qtyEpsilon)
	require.True(t, result.TotalCost.Equal(decimal.NewFromInt(68)))

	led := repo.ledgers[1]
	require.InDelta(t, 8, led.QuantityOnHand, qtyEpsilon)

	// The drained batch is deactivated, never deleted.
	drained := repo.batches[result.Allocations[0].BatchID]
	require.False(t, drained.IsActive)
	require.Zero(t, drained.AvailableQuantity)
	partial := repo.batches[result.Allocations[1].BatchID]
	require.True(t, partial.IsActive)
	require.InDelta(t, 8, partial.AvailableQuantity, qtyEpsilon)

	// One quantity-level audit entry per batch touched, with batch-scoped
	// before/after, plus the actor-level workflow log.
	decreases := repo.auditsOfType(AdjustmentStockDecrease)
	require.Len(t, decreases, 2)
	require.InDelta(t, 10, decreases[0].QuantityBefore, qtyEpsilon)
	require.Zero(t, decreases[0].QuantityAfter)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "STOCK_CONSUME", audit.logs[0].Action)
	require.Len(t, integration.decreased, 1)
	require.Equal(t, ReasonSale, integration.decreased[0].Reason)
}

func TestConsumeStockInsufficientLeavesStateUntouched(t *testing.T) {
	repo := newMemRepo()
	svc, _, integration := newTestService(repo)

	seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 5, UnitCost: decimal.NewFromInt(3), BatchNumber: "B-1"},
	})

	_, err := svc.ConsumeStock(context.Background(), ConsumeInput{ProductID: 1, Quantity: 6})
	require.ErrorIs(t, err, ErrInsufficientStock)

	require.InDelta(t, 5, repo.ledgers[1].QuantityOnHand, qtyEpsilon)
	require.InDelta(t, 5, repo.batches[1].AvailableQuantity, qtyEpsilon)
	require.Empty(t, repo.auditsOfType(AdjustmentStockDecrease))
	require.Empty(t, integration.decreased)
}

func TestStockMovementsSurviveEventHandlerFailure(t *testing.T) {
	repo := newMemRepo()
	svc, _, integration := newTestService(repo)
	integration.failWith = fmt.Errorf("queue unavailable")

	seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(2), BatchNumber: "B-1"},
	})

	// The movement is committed before the event fires; a failing handler
	// must not turn a committed consumption into an error.
	result, err := svc.ConsumeStock(context.Background(), ConsumeInput{ProductID: 1, Quantity: 4, ActorID: 9})
	require.NoError(t, err)
	require.InDelta(t, 4, result.Quantity, qtyEpsilon)
	require.InDelta(t, 6, repo.ledgers[1].QuantityOnHand, qtyEpsilon)

	_, err = svc.AdjustStock(context.Background(), AdjustmentInput{ProductID: 1, QuantityChange: -1, Kind: KindDamage, ActorID: 9})
	require.NoError(t, err)
	require.InDelta(t, 5, repo.ledgers[1].QuantityOnHand, qtyEpsilon)

	_, err = svc.AdjustStock(context.Background(), AdjustmentInput{ProductID: 1, QuantityChange: 3, UnitCost: decimal.NewFromInt(2), ActorID: 9})
	require.NoError(t, err)
	require.InDelta(t, 8, repo.ledgers[1].QuantityOnHand, qtyEpsilon)
}

func TestConsumeStockReservedQuantityIsUnavailable(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(2), BatchNumber: "B-1"},
	})
	_, err := svc.ReserveStock(context.Background(), 1, 4, 9)
	require.NoError(t, err)

	_, err = svc.ConsumeStock(context.Background(), ConsumeInput{ProductID: 1, Quantity: 7})
	require.ErrorIs(t, err, ErrInsufficientStock)

	result, err := svc.ConsumeStock(context.Background(), ConsumeInput{ProductID: 1, Quantity: 6})
	require.NoError(t, err)
	require.InDelta(t, 6, result.Quantity, qtyEpsilon)
}

func TestConsumeStockUnknownProduct(t *testing.T) {
	repo := newMemRepo()
	audit := &stubAudit{}
	svc := NewService(repo, &stubCatalog{missing: map[int64]bool{42: true}}, audit, nil, nil, nil)

	_, err := svc.ConsumeStock(context.Background(), ConsumeInput{ProductID: 42, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConsumeStockExpiryReasonAuditsAsBatchExpired(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 4, UnitCost: decimal.NewFromInt(1), BatchNumber: "B-1", ExpiryDate: day("2026-01-01")},
	})

	_, err := svc.ConsumeStock(context.Background(), ConsumeInput{ProductID: 1, Quantity: 4, Reason: ReasonExpiry})
	require.NoError(t, err)
	require.Len(t, repo.auditsOfType(AdjustmentBatchExpired), 1)
}

func TestAdjustStockPositiveMintsBatch(t *testing.T) {
	repo := newMemRepo()
	svc, audit, integration := newTestService(repo)

	result, err := svc.AdjustStock(context.Background(), AdjustmentInput{
		ProductID:      2,
		QuantityChange: 15,
		UnitCost:       decimal.NewFromFloat(2.5),
		Kind:           KindStockTake,
		Reason:         "count correction",
		BatchNumber:    "ADJ-001",
		ActorID:        9,
	})
	require.NoError(t, err)
	require.NotZero(t, result.BatchID)

	minted := repo.batches[result.BatchID]
	require.True(t, minted.IsActive)
	require.InDelta(t, 15, minted.AvailableQuantity, qtyEpsilon)
	require.InDelta(t, 15, repo.ledgers[2].QuantityOnHand, qtyEpsilon)

	created := repo.auditsOfType(AdjustmentBatchCreated)
	require.Len(t, created, 1)
	require.Equal(t, "STOCK_TAKE: count correction", created[0].Reason)
	require.Len(t, integration.increased, 1)
	require.Len(t, audit.logs, 1)
}

func TestAdjustStockNegativeAllocatesThroughEngine(t *testing.T) {
	repo := newMemRepo()
	svc, _, integration := newTestService(repo)

	seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(5), BatchNumber: "B-1"},
	})

	result, err := svc.AdjustStock(context.Background(), AdjustmentInput{
		ProductID:      1,
		QuantityChange: -3,
		Kind:           KindDamage,
		Reason:         "dropped pallet",
		ActorID:        9,
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	require.InDelta(t, 7, repo.ledgers[1].QuantityOnHand, qtyEpsilon)
	require.Len(t, repo.auditsOfType(AdjustmentManual), 1)
	require.Len(t, integration.decreased, 1)
	require.Equal(t, ReasonDamage, integration.decreased[0].Reason)
}

func TestAdjustStockZeroChange(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.AdjustStock(context.Background(), AdjustmentInput{ProductID: 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReserveAndRelease(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(1), BatchNumber: "B-1"},
	})

	led, err := svc.ReserveStock(context.Background(), 1, 6, 9)
	require.NoError(t, err)
	require.InDelta(t, 4, led.Available(), qtyEpsilon)

	_, err = svc.ReserveStock(context.Background(), 1, 5, 9)
	require.ErrorIs(t, err, ErrReservationExceedsStock)

	led, err = svc.ReleaseReservation(context.Background(), 1, 2, 9)
	require.NoError(t, err)
	require.InDelta(t, 4, led.ReservedQuantity, qtyEpsilon)

	_, err = svc.ReleaseReservation(context.Background(), 1, 5, 9)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestApplyReturnSpecificBatch(t *testing.T) {
	repo := newMemRepo()

	receipts := seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(4), BatchNumber: "B-1"},
		{ProductID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(6), BatchNumber: "B-2"},
	})

	var result ReturnResult
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var applyErr error
		result, applyErr = ApplyReturn(ctx, tx, ReturnInput{
			ProductID:       1,
			BatchID:         receipts[1].BatchID,
			Quantity:        3,
			Reason:          "damaged on arrival",
			ReferenceNumber: "RET-001",
			ActorID:         9,
		})
		return applyErr
	})
	require.NoError(t, err)

	// Credit defaults to the batch's own unit cost.
	require.True(t, result.Credit.Equal(decimal.NewFromInt(18)))
	require.InDelta(t, 17, repo.ledgers[1].QuantityOnHand, qtyEpsilon)
	require.InDelta(t, 7, repo.batches[receipts[1].BatchID].AvailableQuantity, qtyEpsilon)

	returns := repo.auditsOfType(AdjustmentReturnToSupplier)
	require.Len(t, returns, 1)
	require.Equal(t, receipts[1].BatchID, returns[0].BatchID)
	require.InDelta(t, -3, returns[0].QuantityChange, qtyEpsilon)
}

func TestApplyReturnRejectsOverdraw(t *testing.T) {
	repo := newMemRepo()

	receipts := seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 2, UnitCost: decimal.NewFromInt(4), BatchNumber: "B-1"},
	})

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, applyErr := ApplyReturn(ctx, tx, ReturnInput{
			ProductID: 1,
			BatchID:   receipts[0].BatchID,
			Quantity:  3,
		})
		return applyErr
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.InDelta(t, 2, repo.batches[receipts[0].BatchID].AvailableQuantity, qtyEpsilon)
}

func TestApplyReceiptRecordsAuditPerLine(t *testing.T) {
	repo := newMemRepo()

	receipts := seedReceipt(t, repo, []ReceiptLine{
		{ProductID: 1, Quantity: 5, UnitCost: decimal.NewFromInt(2), BatchNumber: "B-1"},
		{ProductID: 2, Quantity: 7, UnitCost: decimal.NewFromInt(3), BatchNumber: "B-2", ExpiryDate: day("2027-01-01")},
	})
	require.Len(t, receipts, 2)

	confirmed := repo.auditsOfType(AdjustmentGRNConfirmed)
	require.Len(t, confirmed, 2)
	require.Equal(t, "GRN-2026-001", confirmed[0].ReferenceNumber)
	require.InDelta(t, 5, repo.ledgers[1].QuantityOnHand, qtyEpsilon)
	require.InDelta(t, 7, repo.ledgers[2].QuantityOnHand, qtyEpsilon)
	require.True(t, repo.batches[receipts[1].BatchID].HasExpiry())
}
