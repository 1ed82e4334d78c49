package procurement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotledger/lotledger/internal/catalog"
	"github.com/lotledger/lotledger/internal/ledger"
	"github.com/lotledger/lotledger/internal/shared"
)

// memLedgerTx is an in-memory ledger.TxRepository so receipt confirmation and
// returns can exercise their composed stock effects without a database.
type memLedgerTx struct {
	ledgers     map[int64]ledger.Ledger
	batches     map[int64]ledger.Batch
	audits      []ledger.AuditEntry
	nextBatchID int64
}

func newMemLedgerTx() *memLedgerTx {
	return &memLedgerTx{
		ledgers: make(map[int64]ledger.Ledger),
		batches: make(map[int64]ledger.Batch),
	}
}

func (m *memLedgerTx) GetLedgerForUpdate(_ context.Context, productID int64) (ledger.Ledger, error) {
	led, ok := m.ledgers[productID]
	if !ok {
		return ledger.Ledger{}, ledger.ErrLedgerNotFound
	}
	return led, nil
}

func (m *memLedgerTx) UpsertLedger(_ context.Context, led ledger.Ledger) error {
	m.ledgers[led.ProductID] = led
	return nil
}

func (m *memLedgerTx) InsertBatch(_ context.Context, batch ledger.Batch) (int64, error) {
	m.nextBatchID++
	batch.ID = m.nextBatchID
	m.batches[batch.ID] = batch
	return batch.ID, nil
}

func (m *memLedgerTx) ListActiveBatchesForUpdate(_ context.Context, productID int64) ([]ledger.Batch, error) {
	var out []ledger.Batch
	for _, b := range m.batches {
		if b.ProductID == productID && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memLedgerTx) GetBatchForUpdate(_ context.Context, batchID int64) (ledger.Batch, error) {
	b, ok := m.batches[batchID]
	if !ok {
		return ledger.Batch{}, ledger.ErrBatchNotFound
	}
	return b, nil
}

func (m *memLedgerTx) UpdateBatch(_ context.Context, batchID int64, available float64, active bool) error {
	b, ok := m.batches[batchID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	b.AvailableQuantity = available
	b.IsActive = active
	m.batches[batchID] = b
	return nil
}

func (m *memLedgerTx) InsertAudit(_ context.Context, entry ledger.AuditEntry) error {
	entry.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, entry)
	return nil
}

// memRepo backs the procurement service with maps.
type memRepo struct {
	pos         map[int64]*PurchaseOrder
	grns        map[int64]*GoodsReceiveNote
	returns     map[int64]*SupplierReturn
	stock       *memLedgerTx
	idempotency map[string][]byte
	nextID      int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		pos:         make(map[int64]*PurchaseOrder),
		grns:        make(map[int64]*GoodsReceiveNote),
		returns:     make(map[int64]*SupplierReturn),
		stock:       newMemLedgerTx(),
		idempotency: make(map[string][]byte),
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) nextSeq() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) CreatePO(_ context.Context, po PurchaseOrder) (int64, error) {
	id := m.nextSeq()
	po.ID = id
	po.CreatedAt = time.Now().UTC()
	m.pos[id] = &po
	return id, nil
}

func (m *memRepo) InsertPOItem(_ context.Context, item POItem) (int64, error) {
	po, ok := m.pos[item.POID]
	if !ok {
		return 0, fmt.Errorf("%w: purchase order %d", ErrNotFound, item.POID)
	}
	item.ID = m.nextSeq()
	po.Items = append(po.Items, item)
	return item.ID, nil
}

func (m *memRepo) DeletePOItem(_ context.Context, poID, itemID int64) error {
	po, ok := m.pos[poID]
	if !ok {
		return fmt.Errorf("%w: purchase order %d", ErrNotFound, poID)
	}
	for i, item := range po.Items {
		if item.ID == itemID {
			po.Items = append(po.Items[:i], po.Items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: item %d", ErrNotFound, itemID)
}

func (m *memRepo) GetPOForUpdate(_ context.Context, id int64) (PurchaseOrder, error) {
	po, ok := m.pos[id]
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", ErrNotFound, id)
	}
	return *po, nil
}

func (m *memRepo) UpdatePOStatus(_ context.Context, id int64, status POStatus) error {
	po, ok := m.pos[id]
	if !ok {
		return fmt.Errorf("%w: purchase order %d", ErrNotFound, id)
	}
	po.Status = status
	return nil
}

func (m *memRepo) SetPOApproval(_ context.Context, id int64, approvedBy int64) error {
	po, ok := m.pos[id]
	if !ok {
		return fmt.Errorf("%w: purchase order %d", ErrNotFound, id)
	}
	po.ApprovedBy = approvedBy
	po.ApprovedAt = time.Now().UTC()
	return nil
}

func (m *memRepo) CreateGRN(_ context.Context, grn GoodsReceiveNote) (int64, error) {
	id := m.nextSeq()
	grn.ID = id
	grn.CreatedAt = time.Now().UTC()
	m.grns[id] = &grn
	return id, nil
}

func (m *memRepo) InsertGRNItem(_ context.Context, item GRNItem) (int64, error) {
	grn, ok := m.grns[item.GRNID]
	if !ok {
		return 0, fmt.Errorf("%w: goods receive note %d", ErrNotFound, item.GRNID)
	}
	item.ID = m.nextSeq()
	grn.Items = append(grn.Items, item)
	return item.ID, nil
}

func (m *memRepo) GetGRNForUpdate(_ context.Context, id int64) (GoodsReceiveNote, error) {
	grn, ok := m.grns[id]
	if !ok {
		return GoodsReceiveNote{}, fmt.Errorf("%w: goods receive note %d", ErrNotFound, id)
	}
	return *grn, nil
}

func (m *memRepo) UpdateGRNStatus(_ context.Context, id int64, status GRNStatus) error {
	grn, ok := m.grns[id]
	if !ok {
		return fmt.Errorf("%w: goods receive note %d", ErrNotFound, id)
	}
	grn.Status = status
	return nil
}

func (m *memRepo) CreateSupplierReturn(_ context.Context, ret SupplierReturn) (int64, error) {
	id := m.nextSeq()
	ret.ID = id
	ret.CreatedAt = time.Now().UTC()
	m.returns[id] = &ret
	return id, nil
}

func (m *memRepo) InsertReturnItem(_ context.Context, item ReturnItem) error {
	ret, ok := m.returns[item.ReturnID]
	if !ok {
		return fmt.Errorf("%w: supplier return %d", ErrNotFound, item.ReturnID)
	}
	item.ID = m.nextSeq()
	ret.Items = append(ret.Items, item)
	return nil
}

func (m *memRepo) SaveIdempotencyResult(_ context.Context, key string, result []byte) error {
	if _, exists := m.idempotency[key]; exists {
		return shared.ErrIdempotencyConflict
	}
	m.idempotency[key] = result
	return nil
}

func (m *memRepo) Ledger() ledger.TxRepository {
	return m.stock
}

func (m *memRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return m.GetPOForUpdate(ctx, id)
}

func (m *memRepo) GetGRN(ctx context.Context, id int64) (GoodsReceiveNote, error) {
	return m.GetGRNForUpdate(ctx, id)
}

func (m *memRepo) GetSupplierReturn(_ context.Context, id int64) (SupplierReturn, error) {
	ret, ok := m.returns[id]
	if !ok {
		return SupplierReturn{}, fmt.Errorf("%w: supplier return %d", ErrNotFound, id)
	}
	return *ret, nil
}

func (m *memRepo) ListPOs(_ context.Context, filters ListFilters, _ shared.Pagination) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range m.pos {
		if filters.Status != "" && string(po.Status) != filters.Status {
			continue
		}
		out = append(out, *po)
	}
	return out, len(out), nil
}

func (m *memRepo) ListGRNs(_ context.Context, filters ListFilters, _ shared.Pagination) ([]GoodsReceiveNote, int, error) {
	var out []GoodsReceiveNote
	for _, grn := range m.grns {
		if filters.Status != "" && string(grn.Status) != filters.Status {
			continue
		}
		out = append(out, *grn)
	}
	return out, len(out), nil
}

type stubCatalog struct{}

func (stubCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	return catalog.Product{ID: id, SKU: fmt.Sprintf("SKU-%d", id), IsActive: true}, nil
}

type stubSuppliers struct {
	missing map[int64]bool
}

func (s *stubSuppliers) Exists(_ context.Context, id int64) error {
	if s.missing[id] {
		return fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
	}
	return nil
}

type stubAudit struct {
	logs []shared.AuditLog
}

func (a *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type stubIntegration struct {
	confirmed []GRNConfirmedEvent
}

func (i *stubIntegration) HandleGRNConfirmed(_ context.Context, evt GRNConfirmedEvent) error {
	i.confirmed = append(i.confirmed, evt)
	return nil
}

// stubIdempotency reads back results the memRepo stored in-transaction. misses
// makes the first lookups come up empty, as they do while a concurrent writer
// holds an uncommitted marker.
type stubIdempotency struct {
	store  map[string][]byte
	misses int
}

func (s *stubIdempotency) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	if s.misses > 0 {
		s.misses--
		return nil, false, nil
	}
	stored, ok := s.store[key]
	return stored, ok, nil
}

func newTestService(repo *memRepo) (*Service, *stubAudit, *stubIntegration) {
	audit := &stubAudit{}
	integration := &stubIntegration{}
	svc := NewService(repo, stubCatalog{}, &stubSuppliers{}, audit, nil, nil, integration)
	return svc, audit, integration
}

func draftPO(t *testing.T, svc *Service) PurchaseOrder {
	t.Helper()
	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 5,
		ActorID:    9,
		Items: []POItemInput{
			{ProductID: 1, Quantity: 10, UnitPrice: decimal.NewFromInt(4)},
			{ProductID: 2, Quantity: 3, UnitPrice: decimal.NewFromInt(7)},
		},
	})
	require.NoError(t, err)
	return po
}

func approvedPO(t *testing.T, svc *Service) PurchaseOrder {
	t.Helper()
	po := draftPO(t, svc)
	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 9))
	require.NoError(t, svc.ApprovePurchaseOrder(context.Background(), po.ID, 10))
	updated, err := svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	return updated
}

func TestPurchaseOrderWorkflow(t *testing.T) {
	repo := newMemRepo()
	svc, audit, _ := newTestService(repo)

	po := draftPO(t, svc)
	require.Equal(t, POStatusDraft, po.Status)
	require.True(t, po.Total().Equal(decimal.NewFromInt(61)))

	// Approval is only reachable from PENDING.
	require.ErrorIs(t, svc.ApprovePurchaseOrder(context.Background(), po.ID, 10), ErrInvalidState)

	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 9))
	require.NoError(t, svc.ApprovePurchaseOrder(context.Background(), po.ID, 10))

	updated, err := svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, updated.Status)
	require.Equal(t, int64(10), updated.ApprovedBy)
	require.NotEmpty(t, audit.logs)
}

func TestReceivePurchaseOrderClosesApprovedOrder(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := draftPO(t, svc)
	require.ErrorIs(t, svc.ReceivePurchaseOrder(context.Background(), po.ID, 9), ErrInvalidState)

	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 9))
	require.NoError(t, svc.ApprovePurchaseOrder(context.Background(), po.ID, 10))
	require.NoError(t, svc.ReceivePurchaseOrder(context.Background(), po.ID, 9))

	updated, err := svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, updated.Status)

	require.ErrorIs(t, svc.CancelPurchaseOrder(context.Background(), po.ID, 9), ErrInvalidState)
}

func TestSubmitEmptyOrderRejected(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{SupplierID: 5})
	require.NoError(t, err)
	require.ErrorIs(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 9), ErrInvalidState)
}

func TestPOItemsMutableOnlyWhileDraft(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := draftPO(t, svc)
	item, err := svc.AddPOItem(context.Background(), po.ID, POItemInput{ProductID: 3, Quantity: 1, UnitPrice: decimal.NewFromInt(2)}, 9)
	require.NoError(t, err)
	require.NoError(t, svc.RemovePOItem(context.Background(), po.ID, item.ID, 9))

	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 9))
	_, err = svc.AddPOItem(context.Background(), po.ID, POItemInput{ProductID: 3, Quantity: 1, UnitPrice: decimal.NewFromInt(2)}, 9)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelReceivedOrderRejected(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, ActorID: 9})
	require.NoError(t, err)
	_, err = svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.NoError(t, err)

	require.ErrorIs(t, svc.CancelPurchaseOrder(context.Background(), po.ID, 9), ErrInvalidState)
}

func TestConfirmGoodsReceiptAtomicEffects(t *testing.T) {
	repo := newMemRepo()
	svc, _, integration := newTestService(repo)

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, GRNStatusDraft, grn.Status)
	// Lines copied from the approved order.
	require.Len(t, grn.Items, 2)

	result, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.NoError(t, err)
	require.Len(t, result.Batches, 2)
	require.True(t, result.Total.Equal(decimal.NewFromInt(61)))

	// One batch per line, ledgers incremented, audit per line.
	require.InDelta(t, 10, repo.stock.ledgers[1].QuantityOnHand, 1e-9)
	require.InDelta(t, 3, repo.stock.ledgers[2].QuantityOnHand, 1e-9)
	require.Len(t, repo.stock.audits, 2)
	require.Equal(t, ledger.AdjustmentGRNConfirmed, repo.stock.audits[0].Type)

	confirmed, err := svc.GetGoodsReceipt(context.Background(), grn.ID)
	require.NoError(t, err)
	require.Equal(t, GRNStatusConfirmed, confirmed.Status)

	// The sourcing order flips to RECEIVED.
	updatedPO, err := svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, updatedPO.Status)

	require.Len(t, integration.confirmed, 1)
	require.Equal(t, grn.Number, integration.confirmed[0].Number)

	// A second confirmation without a key hits the state guard.
	_, err = svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmGoodsReceiptStoresIdempotencyResult(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, IdempotencyKey: "req-123", ActorID: 9})
	require.NoError(t, err)

	result, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "req-123", 9)
	require.NoError(t, err)
	require.Contains(t, repo.idempotency, "grn-confirm:req-123")
	require.Len(t, result.Batches, 2)
}

func TestConfirmGoodsReceiptIdempotentReplay(t *testing.T) {
	repo := newMemRepo()
	idem := &stubIdempotency{store: repo.idempotency}
	svc := NewService(repo, stubCatalog{}, &stubSuppliers{}, &stubAudit{}, idem, nil, &stubIntegration{})

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, IdempotencyKey: "req-9", ActorID: 9})
	require.NoError(t, err)

	first, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "req-9", 9)
	require.NoError(t, err)

	second, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "req-9", 9)
	require.NoError(t, err)
	require.Equal(t, first.Batches, second.Batches)
	require.True(t, first.Total.Equal(second.Total))

	// Only the first confirmation mints batches and moves stock.
	require.Len(t, repo.stock.batches, 2)
	require.InDelta(t, 10, repo.stock.ledgers[1].QuantityOnHand, 1e-9)
	require.InDelta(t, 3, repo.stock.ledgers[2].QuantityOnHand, 1e-9)
}

func TestConfirmGoodsReceiptRaceLoserGetsWinnersResult(t *testing.T) {
	repo := newMemRepo()
	idem := &stubIdempotency{store: repo.idempotency}
	svc := NewService(repo, stubCatalog{}, &stubSuppliers{}, &stubAudit{}, idem, nil, &stubIntegration{})

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, IdempotencyKey: "req-9", ActorID: 9})
	require.NoError(t, err)

	winner, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "req-9", 9)
	require.NoError(t, err)

	// A retry that looked the key up before the winner committed sees a miss,
	// then trips the draft-only guard on the now-confirmed receipt. It must
	// still answer with the winner's stored result, not an error.
	idem.misses = 1
	loser, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "req-9", 9)
	require.NoError(t, err)
	require.Equal(t, winner.GRNID, loser.GRNID)
	require.Equal(t, winner.Batches, loser.Batches)
	require.Len(t, repo.stock.batches, 2)
}

func TestCreateGRNFromUnapprovedOrderRejected(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := draftPO(t, svc)
	_, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestVoidGoodsReceiptIsStatusOnly(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, ActorID: 9})
	require.NoError(t, err)

	// Only confirmed receipts can be voided.
	require.ErrorIs(t, svc.VoidGoodsReceipt(context.Background(), grn.ID, "wrong shipment", 9), ErrInvalidState)

	_, err = svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.NoError(t, err)
	require.NoError(t, svc.VoidGoodsReceipt(context.Background(), grn.ID, "wrong shipment", 9))

	voided, err := svc.GetGoodsReceipt(context.Background(), grn.ID)
	require.NoError(t, err)
	require.Equal(t, GRNStatusVoided, voided.Status)

	// Stock stays: the void is a compensating marker, not a reversal.
	require.InDelta(t, 10, repo.stock.ledgers[1].QuantityOnHand, 1e-9)
	require.InDelta(t, 3, repo.stock.ledgers[2].QuantityOnHand, 1e-9)
}

func TestCancelGoodsReceiptOnlyWhileDraft(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, ActorID: 9})
	require.NoError(t, err)
	require.NoError(t, svc.CancelGoodsReceipt(context.Background(), grn.ID, 9))

	_, err = svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSupplierReturnDebitsBatchAndLedger(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, ActorID: 9})
	require.NoError(t, err)
	result, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.NoError(t, err)

	batchID := result.Batches[0].BatchID
	ret, err := svc.CreateSupplierReturn(context.Background(), ReturnInput{
		SupplierID: 5,
		GRNID:      grn.ID,
		ActorID:    9,
		Items: []ReturnItemInput{
			{ProductID: 1, BatchID: batchID, Quantity: 4, UnitCost: decimal.NewFromInt(4), Reason: "damaged"},
		},
	})
	require.NoError(t, err)
	require.True(t, ret.CreditTotal.Equal(decimal.NewFromInt(16)))

	require.InDelta(t, 6, repo.stock.ledgers[1].QuantityOnHand, 1e-9)
	require.InDelta(t, 6, repo.stock.batches[batchID].AvailableQuantity, 1e-9)

	var returnAudits []ledger.AuditEntry
	for _, e := range repo.stock.audits {
		if e.Type == ledger.AdjustmentReturnToSupplier {
			returnAudits = append(returnAudits, e)
		}
	}
	require.Len(t, returnAudits, 1)
	require.Equal(t, ret.Number, returnAudits[0].ReferenceNumber)
}

func TestSupplierReturnExceedingBatchRejected(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, ActorID: 9})
	require.NoError(t, err)
	result, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.NoError(t, err)

	_, err = svc.CreateSupplierReturn(context.Background(), ReturnInput{
		SupplierID: 5,
		Items: []ReturnItemInput{
			{ProductID: 1, BatchID: result.Batches[0].BatchID, Quantity: 99, UnitCost: decimal.NewFromInt(4)},
		},
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestSupplierReturnUnknownSupplierRejected(t *testing.T) {
	repo := newMemRepo()
	audit := &stubAudit{}
	svc := NewService(repo, stubCatalog{}, &stubSuppliers{missing: map[int64]bool{77: true}}, audit, nil, nil, nil)

	_, err := svc.CreateSupplierReturn(context.Background(), ReturnInput{
		SupplierID: 77,
		Items:      []ReturnItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
