package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentType classifies entries in the inventory audit trail.
type AdjustmentType string

const (
	// AdjustmentStockIncrease marks a generic inbound quantity change.
	AdjustmentStockIncrease AdjustmentType = "STOCK_INCREASE"
	// AdjustmentStockDecrease marks an outbound quantity change (sales).
	AdjustmentStockDecrease AdjustmentType = "STOCK_DECREASE"
	// AdjustmentBatchCreated marks the minting of a new batch.
	AdjustmentBatchCreated AdjustmentType = "BATCH_CREATED"
	// AdjustmentGRNConfirmed marks stock received through a goods receipt.
	AdjustmentGRNConfirmed AdjustmentType = "GRN_CONFIRMED"
	// AdjustmentManual marks manual or stock-take corrections.
	AdjustmentManual AdjustmentType = "ADJUSTMENT"
	// AdjustmentReturnToSupplier marks stock sent back to a supplier.
	AdjustmentReturnToSupplier AdjustmentType = "RETURN_TO_SUPPLIER"
	// AdjustmentCustomerReturn marks stock accepted back from a customer.
	AdjustmentCustomerReturn AdjustmentType = "CUSTOMER_RETURN"
	// AdjustmentBatchExpired marks an expiry write-off.
	AdjustmentBatchExpired AdjustmentType = "BATCH_EXPIRED"
)

// Ledger aggregates per-product stock. A row is created lazily on the first
// stock event for a product.
type Ledger struct {
	ProductID        int64
	QuantityOnHand   float64
	ReservedQuantity float64
	UpdatedAt        time.Time
}

// Available returns on-hand minus reserved quantity.
func (l Ledger) Available() float64 {
	return l.QuantityOnHand - l.ReservedQuantity
}

// Batch is one physical lot of a product. Batches are deactivated once
// drained, never deleted, preserving cost basis and audit history.
type Batch struct {
	ID                int64
	ProductID         int64
	PurchaseOrderID   int64
	GRNID             int64
	BatchNumber       string
	Quantity          float64
	AvailableQuantity float64
	UnitCost          decimal.Decimal
	ExpiryDate        time.Time
	ReceivedAt        time.Time
	IsActive          bool
}

// HasExpiry reports whether the batch carries an expiry date.
func (b Batch) HasExpiry() bool {
	return !b.ExpiryDate.IsZero()
}

// ExpiredAt reports whether the batch expiry has passed at the given time.
func (b Batch) ExpiredAt(now time.Time) bool {
	return b.HasExpiry() && b.ExpiryDate.Before(now)
}

// AuditEntry records a single quantity change. Entries are immutable and are
// written in the same transaction as the change they describe.
type AuditEntry struct {
	ID              int64
	ProductID       int64
	BatchID         int64
	Type            AdjustmentType
	QuantityChange  float64
	QuantityBefore  float64
	QuantityAfter   float64
	Reason          string
	ReferenceID     string
	ReferenceNumber string
	PerformedBy     int64
	OccurredAt      time.Time
}

// ConsumptionReason explains why stock is being consumed.
type ConsumptionReason string

const (
	ReasonSale           ConsumptionReason = "SALE"
	ReasonDamage         ConsumptionReason = "DAMAGE"
	ReasonExpiry         ConsumptionReason = "EXPIRY"
	ReasonWriteOff       ConsumptionReason = "WRITE_OFF"
	ReasonCustomerReturn ConsumptionReason = "CUSTOMER_RETURN"
)

// AuditType maps a consumption reason to the audit classification recorded
// for each batch the allocation touches.
func (r ConsumptionReason) AuditType() AdjustmentType {
	switch r {
	case ReasonExpiry:
		return AdjustmentBatchExpired
	case ReasonDamage, ReasonWriteOff:
		return AdjustmentManual
	case ReasonCustomerReturn:
		return AdjustmentCustomerReturn
	default:
		return AdjustmentStockDecrease
	}
}

// Valid reports whether the reason is one of the known values.
func (r ConsumptionReason) Valid() bool {
	switch r {
	case ReasonSale, ReasonDamage, ReasonExpiry, ReasonWriteOff, ReasonCustomerReturn:
		return true
	}
	return false
}

// ReceiptLine describes one received item within a goods receipt.
type ReceiptLine struct {
	ProductID   int64
	Quantity    float64
	UnitCost    decimal.Decimal
	BatchNumber string
	ExpiryDate  time.Time
}

// ReceiptInput mints batches and increments the ledger for a confirmed GRN.
type ReceiptInput struct {
	PurchaseOrderID int64
	GRNID           int64
	ReferenceID     string
	ReferenceNumber string
	ReceivedAt      time.Time
	ActorID         int64
	Lines           []ReceiptLine
}

// BatchReceipt reports one batch minted by ApplyReceipt.
type BatchReceipt struct {
	BatchID   int64           `json:"batch_id"`
	ProductID int64           `json:"product_id"`
	Quantity  float64         `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// ConsumeInput requests an ordered allocation across a product's batches.
type ConsumeInput struct {
	ProductID       int64
	Quantity        float64
	Reason          ConsumptionReason
	ReferenceID     string
	ReferenceNumber string
	ActorID         int64
	IdempotencyKey  string
}

// BatchAllocation is one batch's share of a consumption request.
type BatchAllocation struct {
	BatchID     int64           `json:"batch_id"`
	BatchNumber string          `json:"batch_number,omitempty"`
	Quantity    float64         `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ConsumptionResult reports a committed allocation with per-batch unit costs
// so callers can derive cost of goods sold.
type ConsumptionResult struct {
	ProductID   int64             `json:"product_id"`
	Quantity    float64           `json:"quantity"`
	Allocations []BatchAllocation `json:"allocations"`
	TotalCost   decimal.Decimal   `json:"total_cost"`
}

// ReturnInput sends stock back to a supplier, either from a specific batch or
// allocated across batches when none is named.
type ReturnInput struct {
	ProductID       int64
	BatchID         int64
	Quantity        float64
	UnitCost        decimal.Decimal
	Reason          string
	ReferenceID     string
	ReferenceNumber string
	ActorID         int64
}

// ReturnResult reports the batches debited by a supplier return.
type ReturnResult struct {
	ProductID   int64             `json:"product_id"`
	Quantity    float64           `json:"quantity"`
	Allocations []BatchAllocation `json:"allocations"`
	Credit      decimal.Decimal   `json:"credit"`
}

// AdjustmentKind classifies manual adjustments.
type AdjustmentKind string

const (
	KindManual    AdjustmentKind = "MANUAL"
	KindDamage    AdjustmentKind = "DAMAGE"
	KindExpiry    AdjustmentKind = "EXPIRY"
	KindStockTake AdjustmentKind = "STOCK_TAKE"
)

// Valid reports whether the kind is one of the known values.
func (k AdjustmentKind) Valid() bool {
	switch k {
	case KindManual, KindDamage, KindExpiry, KindStockTake:
		return true
	}
	return false
}

func (k AdjustmentKind) consumptionReason() ConsumptionReason {
	switch k {
	case KindDamage:
		return ReasonDamage
	case KindExpiry:
		return ReasonExpiry
	default:
		return ReasonWriteOff
	}
}

// AdjustmentInput applies a signed manual quantity change. A positive change
// mints a stock-take batch; a negative one allocates through the engine.
type AdjustmentInput struct {
	ProductID      int64
	QuantityChange float64
	UnitCost       decimal.Decimal
	Kind           AdjustmentKind
	Reason         string
	BatchNumber    string
	ActorID        int64
}

// AdjustmentResult reports the effect of a manual adjustment.
type AdjustmentResult struct {
	ProductID      int64             `json:"product_id"`
	QuantityChange float64           `json:"quantity_change"`
	BatchID        int64             `json:"batch_id,omitempty"`
	Allocations    []BatchAllocation `json:"allocations,omitempty"`
}

// AuditFilter narrows audit trail listings.
type AuditFilter struct {
	ProductID int64
	BatchID   int64
	Types     []AdjustmentType
	Limit     int
	Offset    int
}

// Drift is one product whose active batch sum disagrees with its ledger row.
// Reservations are soft holds inside the on hand figure, so the comparison
// runs against on hand, not availability.
type Drift struct {
	ProductID    int64
	LedgerOnHand float64
	BatchTotal   float64
}

var (
	// ErrInsufficientStock indicates the requested quantity exceeds total
	// availability across eligible batches. Nothing is mutated.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive or zero quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")
	// ErrLedgerNotFound indicates no stock has ever been recorded for the product.
	ErrLedgerNotFound = errors.New("ledger: no stock record for product")
	// ErrBatchNotFound indicates the targeted batch does not exist.
	ErrBatchNotFound = errors.New("ledger: batch not found")
	// ErrReservationExceedsStock indicates reserved would exceed on-hand.
	ErrReservationExceedsStock = errors.New("ledger: reservation exceeds on-hand quantity")
)

// qtyEpsilon absorbs float accumulation noise in quantity comparisons.
const qtyEpsilon = 1e-9
