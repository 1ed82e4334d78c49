package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lotledger/lotledger/internal/catalog"
	"github.com/lotledger/lotledger/internal/observability"
	"github.com/lotledger/lotledger/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLedger(ctx context.Context, productID int64) (Ledger, error)
	ListBatches(ctx context.Context, productID int64, includeInactive bool) ([]Batch, error)
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// CatalogPort resolves products from the read-only registry.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// AuditPort records actor-level workflow audit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger operations: consumption, manual adjustments,
// reservations and read queries. Goods receipts and supplier returns reach
// the ledger through the Apply functions inside the procurement transaction.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     *observability.Metrics
	integration IntegrationHandler
}

// NewService builds Service.
func NewService(repo RepositoryPort, cat CatalogPort, audit AuditPort, idem *shared.IdempotencyStore, metrics *observability.Metrics, integration IntegrationHandler) *Service {
	return &Service{repo: repo, catalog: cat, audit: audit, idempotency: idem, metrics: metrics, integration: integration}
}

const consumeModule = "ledger.consume"

// ConsumeStock allocates the requested quantity across the product's active
// batches in consumption order, entirely or not at all.
func (s *Service) ConsumeStock(ctx context.Context, input ConsumeInput) (ConsumptionResult, error) {
	if input.Quantity <= 0 {
		return ConsumptionResult{}, ErrInvalidQuantity
	}
	if err := s.ensureProduct(ctx, input.ProductID); err != nil {
		return ConsumptionResult{}, err
	}

	key := ""
	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("consume:%s", input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, consumeModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				if stored, ok, lookupErr := s.idempotency.Lookup(ctx, key); lookupErr == nil && ok {
					var result ConsumptionResult
					if unmarshalErr := json.Unmarshal(stored, &result); unmarshalErr == nil {
						return result, nil
					}
				}
			}
			return ConsumptionResult{}, err
		}
		insertedKey = true
	}

	var result ConsumptionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var applyErr error
		result, applyErr = ApplyConsumption(ctx, tx, input)
		return applyErr
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.ObserveInsufficientStock()
		}
		return ConsumptionResult{}, err
	}
	if insertedKey {
		if payload, marshalErr := json.Marshal(result); marshalErr == nil {
			_ = s.idempotency.Complete(ctx, key, payload)
		}
	}

	reason := input.Reason
	if reason == "" {
		reason = ReasonSale
	}
	s.metrics.ObserveStockMovement(string(reason.AuditType()))
	if s.integration != nil {
		// The consumption is committed at this point; the handler logs its own
		// delivery failures.
		_ = s.integration.HandleStockDecreased(ctx, StockDecreasedEvent{
			ProductID:   input.ProductID,
			Quantity:    input.Quantity,
			Reason:      reason,
			Allocations: result.Allocations,
			OccurredAt:  time.Now().UTC(),
		})
	}
	s.recordAudit(ctx, input.ActorID, "STOCK_CONSUME", input.ProductID, map[string]any{
		"quantity": input.Quantity,
		"reason":   string(reason),
	})
	return result, nil
}

// AdjustStock applies a signed manual adjustment (stock-take, damage, expiry
// write-off).
func (s *Service) AdjustStock(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if input.QuantityChange == 0 {
		return AdjustmentResult{}, ErrInvalidQuantity
	}
	if err := s.ensureProduct(ctx, input.ProductID); err != nil {
		return AdjustmentResult{}, err
	}

	var result AdjustmentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var applyErr error
		result, applyErr = ApplyAdjustment(ctx, tx, input)
		return applyErr
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.ObserveInsufficientStock()
		}
		return AdjustmentResult{}, err
	}

	now := time.Now().UTC()
	if input.QuantityChange > 0 {
		s.metrics.ObserveStockMovement(string(AdjustmentBatchCreated))
		if s.integration != nil {
			_ = s.integration.HandleStockIncreased(ctx, StockIncreasedEvent{
				ProductID:  input.ProductID,
				BatchID:    result.BatchID,
				Quantity:   input.QuantityChange,
				OccurredAt: now,
			})
		}
	} else {
		kind := input.Kind
		if kind == "" {
			kind = KindManual
		}
		s.metrics.ObserveStockMovement(string(kind.consumptionReason().AuditType()))
		if s.integration != nil {
			_ = s.integration.HandleStockDecreased(ctx, StockDecreasedEvent{
				ProductID:   input.ProductID,
				Quantity:    -input.QuantityChange,
				Reason:      kind.consumptionReason(),
				Allocations: result.Allocations,
				OccurredAt:  now,
			})
		}
	}
	s.recordAudit(ctx, input.ActorID, "STOCK_ADJUST", input.ProductID, map[string]any{
		"quantity_change": input.QuantityChange,
		"kind":            string(input.Kind),
		"reason":          input.Reason,
	})
	return result, nil
}

// ReserveStock increases the reserved quantity for a product. Reservations
// never exceed the on-hand quantity.
func (s *Service) ReserveStock(ctx context.Context, productID int64, quantity float64, actorID int64) (Ledger, error) {
	if quantity <= 0 {
		return Ledger{}, ErrInvalidQuantity
	}
	var updated Ledger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		led, err := tx.GetLedgerForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if led.ReservedQuantity+quantity > led.QuantityOnHand+qtyEpsilon {
			return ErrReservationExceedsStock
		}
		led.ReservedQuantity += quantity
		if err := tx.UpsertLedger(ctx, led); err != nil {
			return err
		}
		updated = led
		return nil
	})
	if err != nil {
		return Ledger{}, err
	}
	s.recordAudit(ctx, actorID, "STOCK_RESERVE", productID, map[string]any{"quantity": quantity})
	return updated, nil
}

// ReleaseReservation returns previously reserved quantity to availability.
func (s *Service) ReleaseReservation(ctx context.Context, productID int64, quantity float64, actorID int64) (Ledger, error) {
	if quantity <= 0 {
		return Ledger{}, ErrInvalidQuantity
	}
	var updated Ledger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		led, err := tx.GetLedgerForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if quantity > led.ReservedQuantity+qtyEpsilon {
			return fmt.Errorf("%w: release exceeds reserved quantity", ErrInvalidQuantity)
		}
		led.ReservedQuantity -= quantity
		if led.ReservedQuantity < qtyEpsilon {
			led.ReservedQuantity = 0
		}
		if err := tx.UpsertLedger(ctx, led); err != nil {
			return err
		}
		updated = led
		return nil
	})
	if err != nil {
		return Ledger{}, err
	}
	s.recordAudit(ctx, actorID, "STOCK_RELEASE", productID, map[string]any{"quantity": quantity})
	return updated, nil
}

// GetStock returns the ledger row for a product.
func (s *Service) GetStock(ctx context.Context, productID int64) (Ledger, error) {
	if productID == 0 {
		return Ledger{}, fmt.Errorf("%w: product required", ErrInvalidQuantity)
	}
	return s.repo.GetLedger(ctx, productID)
}

// ListBatches returns a product's batches.
func (s *Service) ListBatches(ctx context.Context, productID int64, includeInactive bool) ([]Batch, error) {
	if productID == 0 {
		return nil, fmt.Errorf("%w: product required", ErrInvalidQuantity)
	}
	return s.repo.ListBatches(ctx, productID, includeInactive)
}

// ListAudit returns the audit trail for a product.
func (s *Service) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return s.repo.ListAudit(ctx, filter)
}

func (s *Service) ensureProduct(ctx context.Context, productID int64) error {
	if productID == 0 {
		return fmt.Errorf("%w: product required", ErrInvalidQuantity)
	}
	if s.catalog == nil {
		return nil
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return err
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, productID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_ledger",
		EntityID: fmt.Sprintf("%d", productID),
		Meta:     meta,
	})
}
