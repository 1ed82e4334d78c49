package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotledger/lotledger/internal/catalog"
	"github.com/lotledger/lotledger/internal/ledger"
	"github.com/lotledger/lotledger/internal/observability"
	"github.com/lotledger/lotledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	GetGRN(ctx context.Context, id int64) (GoodsReceiveNote, error)
	GetSupplierReturn(ctx context.Context, id int64) (SupplierReturn, error)
	ListPOs(ctx context.Context, filters ListFilters, page shared.Pagination) ([]PurchaseOrder, int, error)
	ListGRNs(ctx context.Context, filters ListFilters, page shared.Pagination) ([]GoodsReceiveNote, int, error)
}

// CatalogPort resolves products referenced by order and receipt lines.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// SupplierPort resolves suppliers referenced by documents.
type SupplierPort interface {
	Exists(ctx context.Context, id int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort reads back stored confirmation results. Satisfied by
// shared.IdempotencyStore.
type IdempotencyPort interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
}

// Service orchestrates the purchase order, goods receipt and supplier return
// workflows. Receipt confirmation and returns compose their ledger effects
// into the same transaction through TxRepository.Ledger().
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	suppliers   SupplierPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     *observability.Metrics
	integration IntegrationHandler
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, cat CatalogPort, suppliers SupplierPort, audit AuditPort, idem IdempotencyPort, metrics *observability.Metrics, integration IntegrationHandler) *Service {
	return &Service{repo: repo, catalog: cat, suppliers: suppliers, audit: audit, idempotency: idem, metrics: metrics, integration: integration}
}

// CreatePOInput describes a purchase order creation payload.
type CreatePOInput struct {
	Number     string
	SupplierID int64
	Note       string
	ActorID    int64
	Items      []POItemInput
}

// POItemInput describes one ordered line.
type POItemInput struct {
	ProductID int64
	Quantity  float64
	UnitPrice decimal.Decimal
}

// CreateGRNInput describes a goods receipt creation payload. POID copies the
// approved order's lines as the expected receipt; explicit Items override them.
type CreateGRNInput struct {
	Number         string
	SupplierID     int64
	POID           int64
	IdempotencyKey string
	ReceivedAt     time.Time
	Note           string
	ActorID        int64
	Items          []GRNItemInput
}

// GRNItemInput describes one received line.
type GRNItemInput struct {
	ProductID   int64
	Quantity    float64
	UnitCost    decimal.Decimal
	BatchNumber string
	ExpiryDate  time.Time
}

// ConfirmResult reports a confirmed goods receipt. Retried confirmations with
// the same idempotency key return the stored first result.
type ConfirmResult struct {
	GRNID   int64                 `json:"grn_id"`
	Number  string                `json:"number"`
	Batches []ledger.BatchReceipt `json:"batches"`
	Total   decimal.Decimal       `json:"total"`
}

// ReturnInput describes a supplier return payload.
type ReturnInput struct {
	Number     string
	SupplierID int64
	GRNID      int64
	ActorID    int64
	Items      []ReturnItemInput
}

// ReturnItemInput describes one returned line.
type ReturnItemInput struct {
	ProductID int64
	BatchID   int64
	Quantity  float64
	UnitCost  decimal.Decimal
	Reason    string
}

// CreatePurchaseOrder persists a draft order with its items.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if input.SupplierID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if err := s.ensureSupplier(ctx, input.SupplierID); err != nil {
		return PurchaseOrder{}, err
	}
	for _, item := range input.Items {
		if err := s.validateItem(ctx, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return PurchaseOrder{}, err
		}
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{Number: input.Number, SupplierID: input.SupplierID, Status: POStatusDraft, Note: input.Note}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for _, item := range input.Items {
			id, err := tx.InsertPOItem(ctx, POItem{POID: poID, ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
			if err != nil {
				return err
			}
			po.Items = append(po.Items, POItem{ID: id, POID: poID, ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "PO_CREATE", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// AddPOItem appends an item to a draft order.
func (s *Service) AddPOItem(ctx context.Context, poID int64, input POItemInput, actorID int64) (POItem, error) {
	if err := s.validateItem(ctx, input.ProductID, input.Quantity, input.UnitPrice); err != nil {
		return POItem{}, err
	}
	var item POItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return fmt.Errorf("%w: items are mutable only while draft", ErrInvalidState)
		}
		id, err := tx.InsertPOItem(ctx, POItem{POID: poID, ProductID: input.ProductID, Quantity: input.Quantity, UnitPrice: input.UnitPrice})
		if err != nil {
			return err
		}
		item = POItem{ID: id, POID: poID, ProductID: input.ProductID, Quantity: input.Quantity, UnitPrice: input.UnitPrice}
		return nil
	})
	if err != nil {
		return POItem{}, err
	}
	s.recordAudit(ctx, actorID, "PO_ITEM_ADD", poID, map[string]any{"product_id": input.ProductID})
	return item, nil
}

// RemovePOItem removes an item from a draft order.
func (s *Service) RemovePOItem(ctx context.Context, poID, itemID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return fmt.Errorf("%w: items are mutable only while draft", ErrInvalidState)
		}
		return tx.DeletePOItem(ctx, poID, itemID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_ITEM_REMOVE", poID, map[string]any{"item_id": itemID})
	return nil
}

// SubmitPurchaseOrder moves a draft order into the approval queue. An order
// without items cannot be submitted.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return ErrInvalidState
		}
		if len(po.Items) == 0 {
			return fmt.Errorf("%w: cannot submit an order without items", ErrInvalidState)
		}
		return tx.UpdatePOStatus(ctx, poID, POStatusPending)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_SUBMIT", poID, nil)
	return nil
}

// ApprovePurchaseOrder approves a pending order and records approver identity.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusPending {
			return ErrInvalidState
		}
		if err := tx.UpdatePOStatus(ctx, poID, POStatusApproved); err != nil {
			return err
		}
		return tx.SetPOApproval(ctx, poID, actorID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_APPROVE", poID, nil)
	return nil
}

// ReceivePurchaseOrder closes an approved order as received without a goods
// receipt. Confirming a GRN against the order does this automatically.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusApproved {
			return ErrInvalidState
		}
		return tx.UpdatePOStatus(ctx, poID, POStatusReceived)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_RECEIVE", poID, nil)
	return nil
}

// CancelPurchaseOrder cancels an order. Orders already received stay received.
func (s *Service) CancelPurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		switch po.Status {
		case POStatusReceived:
			return fmt.Errorf("%w: received orders cannot be cancelled", ErrInvalidState)
		case POStatusCancelled:
			return ErrInvalidState
		}
		return tx.UpdatePOStatus(ctx, poID, POStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_CANCEL", poID, nil)
	return nil
}

// CreateGoodsReceipt inserts a draft GRN. With a POID and no explicit items
// the approved order's lines are copied as the expected receipt.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input CreateGRNInput) (GoodsReceiveNote, error) {
	items := input.Items
	if input.POID != 0 {
		po, err := s.repo.GetPO(ctx, input.POID)
		if err != nil {
			return GoodsReceiveNote{}, err
		}
		if po.Status != POStatusApproved {
			return GoodsReceiveNote{}, fmt.Errorf("%w: receipts require an approved order", ErrInvalidState)
		}
		if input.SupplierID == 0 {
			input.SupplierID = po.SupplierID
		}
		if len(items) == 0 {
			for _, line := range po.Items {
				items = append(items, GRNItemInput{ProductID: line.ProductID, Quantity: line.Quantity, UnitCost: line.UnitPrice})
			}
		}
	}
	if input.SupplierID == 0 {
		return GoodsReceiveNote{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if err := s.ensureSupplier(ctx, input.SupplierID); err != nil {
		return GoodsReceiveNote{}, err
	}
	if len(items) == 0 {
		return GoodsReceiveNote{}, fmt.Errorf("%w: receipt requires at least one item", ErrValidation)
	}
	for _, item := range items {
		if err := s.validateItem(ctx, item.ProductID, item.Quantity, item.UnitCost); err != nil {
			return GoodsReceiveNote{}, err
		}
	}
	if input.Number == "" {
		input.Number = generateNumber("GRN")
	}
	if input.IdempotencyKey == "" {
		// Minted server side so a later confirm retry is still keyed even
		// when the client never supplied one.
		input.IdempotencyKey = uuid.NewString()
	}
	grn := GoodsReceiveNote{
		Number:         input.Number,
		SupplierID:     input.SupplierID,
		POID:           input.POID,
		Status:         GRNStatusDraft,
		IdempotencyKey: input.IdempotencyKey,
		ReceivedAt:     input.ReceivedAt,
		Note:           input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grnID, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID
		for _, item := range items {
			id, err := tx.InsertGRNItem(ctx, GRNItem{
				GRNID:       grnID,
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				UnitCost:    item.UnitCost,
				BatchNumber: item.BatchNumber,
				ExpiryDate:  item.ExpiryDate,
			})
			if err != nil {
				return err
			}
			grn.Items = append(grn.Items, GRNItem{
				ID:          id,
				GRNID:       grnID,
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				UnitCost:    item.UnitCost,
				BatchNumber: item.BatchNumber,
				ExpiryDate:  item.ExpiryDate,
			})
		}
		return nil
	})
	if err != nil {
		return GoodsReceiveNote{}, err
	}
	s.recordAudit(ctx, input.ActorID, "GRN_CREATE", grn.ID, map[string]any{"number": grn.Number})
	return grn, nil
}

// AddGRNItem appends an item to a draft receipt.
func (s *Service) AddGRNItem(ctx context.Context, grnID int64, input GRNItemInput, actorID int64) (GRNItem, error) {
	if err := s.validateItem(ctx, input.ProductID, input.Quantity, input.UnitCost); err != nil {
		return GRNItem{}, err
	}
	var item GRNItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusDraft {
			return fmt.Errorf("%w: items are mutable only while draft", ErrInvalidState)
		}
		id, err := tx.InsertGRNItem(ctx, GRNItem{
			GRNID:       grnID,
			ProductID:   input.ProductID,
			Quantity:    input.Quantity,
			UnitCost:    input.UnitCost,
			BatchNumber: input.BatchNumber,
			ExpiryDate:  input.ExpiryDate,
		})
		if err != nil {
			return err
		}
		item = GRNItem{ID: id, GRNID: grnID, ProductID: input.ProductID, Quantity: input.Quantity, UnitCost: input.UnitCost, BatchNumber: input.BatchNumber, ExpiryDate: input.ExpiryDate}
		return nil
	})
	if err != nil {
		return GRNItem{}, err
	}
	s.recordAudit(ctx, actorID, "GRN_ITEM_ADD", grnID, map[string]any{"product_id": input.ProductID})
	return item, nil
}

// ConfirmGoodsReceipt posts a draft receipt: in one transaction the GRN moves
// to CONFIRMED, one batch is minted per item, the product ledgers and audit
// trail are updated and the idempotency marker is stored with the result.
// A retried confirmation with the same key returns the first result.
func (s *Service) ConfirmGoodsReceipt(ctx context.Context, grnID int64, idempotencyKey string, actorID int64) (ConfirmResult, error) {
	key := idempotencyKey
	if key == "" {
		grn, err := s.repo.GetGRN(ctx, grnID)
		if err != nil {
			return ConfirmResult{}, err
		}
		key = grn.IdempotencyKey
	}
	if key != "" {
		key = fmt.Sprintf("grn-confirm:%s", key)
		if stored, ok, err := s.lookupConfirm(ctx, key); err != nil {
			return ConfirmResult{}, err
		} else if ok {
			return stored, nil
		}
	}

	var result ConfirmResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusDraft {
			return fmt.Errorf("%w: only draft receipts can be confirmed", ErrInvalidState)
		}
		if len(grn.Items) == 0 {
			return fmt.Errorf("%w: cannot confirm a receipt without items", ErrInvalidState)
		}
		if err := tx.UpdateGRNStatus(ctx, grnID, GRNStatusConfirmed); err != nil {
			return err
		}

		lines := make([]ledger.ReceiptLine, 0, len(grn.Items))
		for _, item := range grn.Items {
			lines = append(lines, ledger.ReceiptLine{
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				UnitCost:    item.UnitCost,
				BatchNumber: item.BatchNumber,
				ExpiryDate:  item.ExpiryDate,
			})
		}
		receipts, err := ledger.ApplyReceipt(ctx, tx.Ledger(), ledger.ReceiptInput{
			PurchaseOrderID: grn.POID,
			GRNID:           grn.ID,
			ReferenceID:     fmt.Sprintf("%d", grn.ID),
			ReferenceNumber: grn.Number,
			ReceivedAt:      grn.ReceivedAt,
			ActorID:         actorID,
			Lines:           lines,
		})
		if err != nil {
			return err
		}

		if grn.POID != 0 {
			po, err := tx.GetPOForUpdate(ctx, grn.POID)
			if err != nil {
				return err
			}
			if po.Status == POStatusApproved {
				if err := tx.UpdatePOStatus(ctx, grn.POID, POStatusReceived); err != nil {
					return err
				}
			}
		}

		result = ConfirmResult{GRNID: grn.ID, Number: grn.Number, Batches: receipts, Total: grn.Total()}
		if key != "" {
			payload, err := json.Marshal(result)
			if err != nil {
				return err
			}
			return tx.SaveIdempotencyResult(ctx, key, payload)
		}
		return nil
	})
	if err != nil {
		// A concurrent confirmation with the same key won the race; answer
		// with the winner's stored result. The loser surfaces either as a
		// unique-key conflict on the marker insert, or as the state guard when
		// it locked the row after the winner committed CONFIRMED.
		if key != "" && (errors.Is(err, shared.ErrIdempotencyConflict) || errors.Is(err, ErrInvalidState)) {
			if stored, ok, lookupErr := s.lookupConfirm(ctx, key); lookupErr == nil && ok {
				return stored, nil
			}
		}
		return ConfirmResult{}, err
	}

	s.metrics.ObserveGRNConfirmed()
	s.metrics.ObserveStockMovement(string(ledger.AdjustmentGRNConfirmed))
	if s.integration != nil {
		grn, err := s.repo.GetGRN(ctx, grnID)
		if err == nil {
			// Post-commit; the handler logs its own delivery failures.
			_ = s.integration.HandleGRNConfirmed(ctx, GRNConfirmedEvent{
				GRNID:      grn.ID,
				Number:     grn.Number,
				SupplierID: grn.SupplierID,
				POID:       grn.POID,
				Batches:    result.Batches,
				Total:      result.Total,
				OccurredAt: time.Now().UTC(),
			})
		}
	}
	s.recordAudit(ctx, actorID, "GRN_CONFIRM", grnID, map[string]any{"number": result.Number})
	return result, nil
}

// CancelGoodsReceipt cancels a draft receipt.
func (s *Service) CancelGoodsReceipt(ctx context.Context, grnID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusDraft {
			return fmt.Errorf("%w: only draft receipts can be cancelled", ErrInvalidState)
		}
		return tx.UpdateGRNStatus(ctx, grnID, GRNStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GRN_CANCEL", grnID, nil)
	return nil
}

// VoidGoodsReceipt marks a confirmed receipt as voided. The stock it brought
// in stays on the ledger; operators compensate through adjustments or a
// supplier return referencing the receipt.
func (s *Service) VoidGoodsReceipt(ctx context.Context, grnID int64, reason string, actorID int64) error {
	if reason == "" {
		return fmt.Errorf("%w: void requires a reason", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusConfirmed {
			return fmt.Errorf("%w: only confirmed receipts can be voided", ErrInvalidState)
		}
		return tx.UpdateGRNStatus(ctx, grnID, GRNStatusVoided)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GRN_VOID", grnID, map[string]any{"reason": reason})
	return nil
}

// CreateSupplierReturn posts a supplier return: the return document, batch
// debits and audit entries commit as one transaction.
func (s *Service) CreateSupplierReturn(ctx context.Context, input ReturnInput) (SupplierReturn, error) {
	if input.SupplierID == 0 {
		return SupplierReturn{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if err := s.ensureSupplier(ctx, input.SupplierID); err != nil {
		return SupplierReturn{}, err
	}
	if len(input.Items) == 0 {
		return SupplierReturn{}, fmt.Errorf("%w: return requires at least one item", ErrValidation)
	}
	for _, item := range input.Items {
		if err := s.validateItem(ctx, item.ProductID, item.Quantity, item.UnitCost); err != nil {
			return SupplierReturn{}, err
		}
	}
	if input.Number == "" {
		input.Number = generateNumber("SR")
	}

	ret := SupplierReturn{Number: input.Number, SupplierID: input.SupplierID, GRNID: input.GRNID, CreditTotal: decimal.Zero}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.GRNID != 0 {
			grn, err := tx.GetGRNForUpdate(ctx, input.GRNID)
			if err != nil {
				return err
			}
			if grn.Status != GRNStatusConfirmed && grn.Status != GRNStatusVoided {
				return fmt.Errorf("%w: returns reference a confirmed receipt", ErrInvalidState)
			}
		}

		credit := decimal.Zero
		for _, item := range input.Items {
			res, err := ledger.ApplyReturn(ctx, tx.Ledger(), ledger.ReturnInput{
				ProductID:       item.ProductID,
				BatchID:         item.BatchID,
				Quantity:        item.Quantity,
				UnitCost:        item.UnitCost,
				Reason:          item.Reason,
				ReferenceNumber: input.Number,
				ActorID:         input.ActorID,
			})
			if err != nil {
				return err
			}
			credit = credit.Add(res.Credit)
		}
		ret.CreditTotal = credit

		retID, err := tx.CreateSupplierReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = retID
		for _, item := range input.Items {
			line := ReturnItem{
				ReturnID:  retID,
				ProductID: item.ProductID,
				BatchID:   item.BatchID,
				Quantity:  item.Quantity,
				UnitCost:  item.UnitCost,
				Reason:    item.Reason,
			}
			if err := tx.InsertReturnItem(ctx, line); err != nil {
				return err
			}
			ret.Items = append(ret.Items, line)
		}
		return nil
	})
	if err != nil {
		return SupplierReturn{}, err
	}
	s.metrics.ObserveStockMovement(string(ledger.AdjustmentReturnToSupplier))
	s.recordAudit(ctx, input.ActorID, "SUPPLIER_RETURN", ret.ID, map[string]any{"number": ret.Number, "credit": ret.CreditTotal.String()})
	return ret, nil
}

// GetPurchaseOrder fetches an order with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPurchaseOrders lists orders matching the filters.
func (s *Service) ListPurchaseOrders(ctx context.Context, filters ListFilters, page shared.Pagination) ([]PurchaseOrder, shared.Pagination, error) {
	page = shared.NewPagination(page.Page, page.PerPage, 0)
	pos, total, err := s.repo.ListPOs(ctx, filters, page)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return pos, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// GetGoodsReceipt fetches a receipt with its items.
func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceiveNote, error) {
	return s.repo.GetGRN(ctx, id)
}

// ListGoodsReceipts lists receipts matching the filters.
func (s *Service) ListGoodsReceipts(ctx context.Context, filters ListFilters, page shared.Pagination) ([]GoodsReceiveNote, shared.Pagination, error) {
	page = shared.NewPagination(page.Page, page.PerPage, 0)
	grns, total, err := s.repo.ListGRNs(ctx, filters, page)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return grns, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// GetSupplierReturn fetches a supplier return with its items.
func (s *Service) GetSupplierReturn(ctx context.Context, id int64) (SupplierReturn, error) {
	return s.repo.GetSupplierReturn(ctx, id)
}

func (s *Service) lookupConfirm(ctx context.Context, key string) (ConfirmResult, bool, error) {
	if s.idempotency == nil {
		return ConfirmResult{}, false, nil
	}
	stored, ok, err := s.idempotency.Lookup(ctx, key)
	if err != nil || !ok {
		return ConfirmResult{}, false, err
	}
	var result ConfirmResult
	if err := json.Unmarshal(stored, &result); err != nil {
		return ConfirmResult{}, false, err
	}
	return result, true, nil
}

func (s *Service) validateItem(ctx context.Context, productID int64, quantity float64, price decimal.Decimal) error {
	if productID == 0 {
		return fmt.Errorf("%w: product required", ErrValidation)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrValidation)
	}
	if s.catalog != nil {
		if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureSupplier(ctx context.Context, supplierID int64) error {
	if s.suppliers == nil {
		return nil
	}
	return s.suppliers.Exists(ctx, supplierID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
