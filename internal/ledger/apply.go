package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// The Apply functions implement the ledger's atomic transitions against a
// TxRepository. They run inside a transaction owned by the caller, so other
// modules (goods receipt confirmation, supplier returns) can commit their own
// state changes and the ledger effect as one unit. Every quantity mutation
// writes its audit entry through the same transaction; batch-scoped entries
// carry the batch's before/after availability, ledger-scoped entries the
// ledger's.

// ApplyReceipt mints one batch per line, increments the product ledgers and
// records one GRN_CONFIRMED audit entry per line.
func ApplyReceipt(ctx context.Context, tx TxRepository, input ReceiptInput) ([]BatchReceipt, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: receipt requires at least one line", ErrInvalidQuantity)
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receipts := make([]BatchReceipt, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.ProductID == 0 {
			return nil, fmt.Errorf("%w: product required", ErrInvalidQuantity)
		}
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if line.UnitCost.IsNegative() {
			return nil, ErrInvalidUnitCost
		}

		led, err := lockOrInitLedger(ctx, tx, line.ProductID)
		if err != nil {
			return nil, err
		}

		batch := Batch{
			ProductID:         line.ProductID,
			PurchaseOrderID:   input.PurchaseOrderID,
			GRNID:             input.GRNID,
			BatchNumber:       line.BatchNumber,
			Quantity:          line.Quantity,
			AvailableQuantity: line.Quantity,
			UnitCost:          line.UnitCost,
			ExpiryDate:        line.ExpiryDate,
			ReceivedAt:        receivedAt,
			IsActive:          true,
		}
		batchID, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return nil, err
		}

		led.QuantityOnHand += line.Quantity
		if err := tx.UpsertLedger(ctx, led); err != nil {
			return nil, err
		}

		if err := tx.InsertAudit(ctx, AuditEntry{
			ProductID:       line.ProductID,
			BatchID:         batchID,
			Type:            AdjustmentGRNConfirmed,
			QuantityChange:  line.Quantity,
			QuantityBefore:  0,
			QuantityAfter:   line.Quantity,
			Reason:          "goods receipt confirmed",
			ReferenceID:     input.ReferenceID,
			ReferenceNumber: input.ReferenceNumber,
			PerformedBy:     input.ActorID,
			OccurredAt:      receivedAt,
		}); err != nil {
			return nil, err
		}

		receipts = append(receipts, BatchReceipt{
			BatchID:   batchID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
		})
	}
	return receipts, nil
}

// ApplyConsumption satisfies the request entirely from active batches in
// consumption order, or fails without touching anything.
func ApplyConsumption(ctx context.Context, tx TxRepository, input ConsumeInput) (ConsumptionResult, error) {
	if input.ProductID == 0 {
		return ConsumptionResult{}, fmt.Errorf("%w: product required", ErrInvalidQuantity)
	}
	if input.Quantity <= 0 {
		return ConsumptionResult{}, ErrInvalidQuantity
	}
	reason := input.Reason
	if reason == "" {
		reason = ReasonSale
	}
	if !reason.Valid() {
		return ConsumptionResult{}, fmt.Errorf("%w: unknown reason %q", ErrInvalidQuantity, input.Reason)
	}

	led, err := tx.GetLedgerForUpdate(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, ErrLedgerNotFound) {
			return ConsumptionResult{}, fmt.Errorf("%w: requested %v, available 0", ErrInsufficientStock, input.Quantity)
		}
		return ConsumptionResult{}, err
	}
	if led.Available()+qtyEpsilon < input.Quantity {
		return ConsumptionResult{}, fmt.Errorf("%w: requested %v, available %v", ErrInsufficientStock, input.Quantity, led.Available())
	}

	batches, err := tx.ListActiveBatchesForUpdate(ctx, input.ProductID)
	if err != nil {
		return ConsumptionResult{}, err
	}
	allocations, err := planAllocation(batches, input.Quantity)
	if err != nil {
		return ConsumptionResult{}, err
	}

	byID := make(map[int64]Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}

	auditType := reason.AuditType()
	now := time.Now().UTC()
	totalCost := decimal.Zero
	for _, alloc := range allocations {
		batch := byID[alloc.BatchID]
		after := batch.AvailableQuantity - alloc.Quantity
		if after < qtyEpsilon {
			after = 0
		}
		if err := tx.UpdateBatch(ctx, alloc.BatchID, after, after > 0); err != nil {
			return ConsumptionResult{}, err
		}
		if err := tx.InsertAudit(ctx, AuditEntry{
			ProductID:       input.ProductID,
			BatchID:         alloc.BatchID,
			Type:            auditType,
			QuantityChange:  -alloc.Quantity,
			QuantityBefore:  batch.AvailableQuantity,
			QuantityAfter:   after,
			Reason:          string(reason),
			ReferenceID:     input.ReferenceID,
			ReferenceNumber: input.ReferenceNumber,
			PerformedBy:     input.ActorID,
			OccurredAt:      now,
		}); err != nil {
			return ConsumptionResult{}, err
		}
		totalCost = totalCost.Add(alloc.UnitCost.Mul(decimal.NewFromFloat(alloc.Quantity)))
	}

	led.QuantityOnHand -= input.Quantity
	if led.QuantityOnHand < qtyEpsilon {
		led.QuantityOnHand = 0
	}
	if err := tx.UpsertLedger(ctx, led); err != nil {
		return ConsumptionResult{}, err
	}

	return ConsumptionResult{
		ProductID:   input.ProductID,
		Quantity:    input.Quantity,
		Allocations: allocations,
		TotalCost:   totalCost,
	}, nil
}

// ApplyReturn debits a specific batch, or allocates across batches when none
// is named, and records RETURN_TO_SUPPLIER audit entries.
func ApplyReturn(ctx context.Context, tx TxRepository, input ReturnInput) (ReturnResult, error) {
	if input.ProductID == 0 {
		return ReturnResult{}, fmt.Errorf("%w: product required", ErrInvalidQuantity)
	}
	if input.Quantity <= 0 {
		return ReturnResult{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return ReturnResult{}, ErrInvalidUnitCost
	}

	led, err := tx.GetLedgerForUpdate(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, ErrLedgerNotFound) {
			return ReturnResult{}, fmt.Errorf("%w: requested %v, available 0", ErrInsufficientStock, input.Quantity)
		}
		return ReturnResult{}, err
	}
	if led.Available()+qtyEpsilon < input.Quantity {
		return ReturnResult{}, fmt.Errorf("%w: requested %v, available %v", ErrInsufficientStock, input.Quantity, led.Available())
	}

	var allocations []BatchAllocation
	if input.BatchID != 0 {
		batch, err := tx.GetBatchForUpdate(ctx, input.BatchID)
		if err != nil {
			return ReturnResult{}, err
		}
		if batch.ProductID != input.ProductID {
			return ReturnResult{}, fmt.Errorf("%w: batch %d belongs to another product", ErrBatchNotFound, input.BatchID)
		}
		if !batch.IsActive || batch.AvailableQuantity+qtyEpsilon < input.Quantity {
			return ReturnResult{}, fmt.Errorf("%w: batch %d has %v available", ErrInsufficientStock, batch.ID, batch.AvailableQuantity)
		}
		allocations = []BatchAllocation{{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Quantity:    input.Quantity,
			UnitCost:    batch.UnitCost,
		}}
	} else {
		batches, err := tx.ListActiveBatchesForUpdate(ctx, input.ProductID)
		if err != nil {
			return ReturnResult{}, err
		}
		allocations, err = planAllocation(batches, input.Quantity)
		if err != nil {
			return ReturnResult{}, err
		}
	}

	now := time.Now().UTC()
	credit := decimal.Zero
	for _, alloc := range allocations {
		batch, err := tx.GetBatchForUpdate(ctx, alloc.BatchID)
		if err != nil {
			return ReturnResult{}, err
		}
		after := batch.AvailableQuantity - alloc.Quantity
		if after < qtyEpsilon {
			after = 0
		}
		if err := tx.UpdateBatch(ctx, alloc.BatchID, after, after > 0); err != nil {
			return ReturnResult{}, err
		}
		if err := tx.InsertAudit(ctx, AuditEntry{
			ProductID:       input.ProductID,
			BatchID:         alloc.BatchID,
			Type:            AdjustmentReturnToSupplier,
			QuantityChange:  -alloc.Quantity,
			QuantityBefore:  batch.AvailableQuantity,
			QuantityAfter:   after,
			Reason:          input.Reason,
			ReferenceID:     input.ReferenceID,
			ReferenceNumber: input.ReferenceNumber,
			PerformedBy:     input.ActorID,
			OccurredAt:      now,
		}); err != nil {
			return ReturnResult{}, err
		}
		unitCost := alloc.UnitCost
		if input.UnitCost.IsPositive() {
			unitCost = input.UnitCost
		}
		credit = credit.Add(unitCost.Mul(decimal.NewFromFloat(alloc.Quantity)))
	}

	led.QuantityOnHand -= input.Quantity
	if led.QuantityOnHand < qtyEpsilon {
		led.QuantityOnHand = 0
	}
	if err := tx.UpsertLedger(ctx, led); err != nil {
		return ReturnResult{}, err
	}

	return ReturnResult{
		ProductID:   input.ProductID,
		Quantity:    input.Quantity,
		Allocations: allocations,
		Credit:      credit,
	}, nil
}

// ApplyAdjustment applies a signed manual change: positive mints a batch,
// negative allocates through the consumption engine.
func ApplyAdjustment(ctx context.Context, tx TxRepository, input AdjustmentInput) (AdjustmentResult, error) {
	if input.ProductID == 0 {
		return AdjustmentResult{}, fmt.Errorf("%w: product required", ErrInvalidQuantity)
	}
	if input.QuantityChange == 0 {
		return AdjustmentResult{}, ErrInvalidQuantity
	}
	kind := input.Kind
	if kind == "" {
		kind = KindManual
	}
	if !kind.Valid() {
		return AdjustmentResult{}, fmt.Errorf("%w: unknown adjustment kind %q", ErrInvalidQuantity, input.Kind)
	}

	if input.QuantityChange < 0 {
		result, err := ApplyConsumption(ctx, tx, ConsumeInput{
			ProductID: input.ProductID,
			Quantity:  -input.QuantityChange,
			Reason:    kind.consumptionReason(),
			ActorID:   input.ActorID,
		})
		if err != nil {
			return AdjustmentResult{}, err
		}
		return AdjustmentResult{
			ProductID:      input.ProductID,
			QuantityChange: input.QuantityChange,
			Allocations:    result.Allocations,
		}, nil
	}

	if input.UnitCost.IsNegative() {
		return AdjustmentResult{}, ErrInvalidUnitCost
	}
	led, err := lockOrInitLedger(ctx, tx, input.ProductID)
	if err != nil {
		return AdjustmentResult{}, err
	}
	now := time.Now().UTC()
	batchID, err := tx.InsertBatch(ctx, Batch{
		ProductID:         input.ProductID,
		BatchNumber:       input.BatchNumber,
		Quantity:          input.QuantityChange,
		AvailableQuantity: input.QuantityChange,
		UnitCost:          input.UnitCost,
		ReceivedAt:        now,
		IsActive:          true,
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	led.QuantityOnHand += input.QuantityChange
	if err := tx.UpsertLedger(ctx, led); err != nil {
		return AdjustmentResult{}, err
	}
	if err := tx.InsertAudit(ctx, AuditEntry{
		ProductID:      input.ProductID,
		BatchID:        batchID,
		Type:           AdjustmentBatchCreated,
		QuantityChange: input.QuantityChange,
		QuantityBefore: 0,
		QuantityAfter:  input.QuantityChange,
		Reason:         adjustmentReason(kind, input.Reason),
		PerformedBy:    input.ActorID,
		OccurredAt:     now,
	}); err != nil {
		return AdjustmentResult{}, err
	}
	return AdjustmentResult{
		ProductID:      input.ProductID,
		QuantityChange: input.QuantityChange,
		BatchID:        batchID,
	}, nil
}

func adjustmentReason(kind AdjustmentKind, reason string) string {
	if reason == "" {
		return string(kind)
	}
	return fmt.Sprintf("%s: %s", kind, reason)
}

// lockOrInitLedger locks the product's ledger row, initialising a zero row on
// the first stock event.
func lockOrInitLedger(ctx context.Context, tx TxRepository, productID int64) (Ledger, error) {
	led, err := tx.GetLedgerForUpdate(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrLedgerNotFound) {
			return Ledger{ProductID: productID}, nil
		}
		return Ledger{}, err
	}
	return led, nil
}
