package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lotledger/lotledger/internal/shared"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusPending   POStatus = "PENDING"
	POStatusApproved  POStatus = "APPROVED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

// Goods receive note statuses.
type GRNStatus string

const (
	GRNStatusDraft     GRNStatus = "DRAFT"
	GRNStatusConfirmed GRNStatus = "CONFIRMED"
	GRNStatusCancelled GRNStatus = "CANCELLED"
	// GRNStatusVoided marks a confirmed receipt as compensated. Voiding is a
	// status-only marker: stock already received stays on the ledger and is
	// corrected through adjustments or supplier returns.
	GRNStatusVoided GRNStatus = "VOIDED"
)

// PurchaseOrder domain model. Items are mutable only while DRAFT.
type PurchaseOrder struct {
	ID         int64
	Number     string
	SupplierID int64
	Status     POStatus
	Note       string
	ApprovedBy int64
	ApprovedAt time.Time
	CreatedAt  time.Time
	Items      []POItem
}

// POItem is one ordered line.
type POItem struct {
	ID        int64
	POID      int64
	ProductID int64
	Quantity  float64
	UnitPrice decimal.Decimal
}

// Total derives the order value from its items.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromFloat(item.Quantity)))
	}
	return total
}

// GoodsReceiveNote documents an inbound delivery, created from an approved
// purchase order or ad hoc.
type GoodsReceiveNote struct {
	ID             int64
	Number         string
	SupplierID     int64
	POID           int64
	Status         GRNStatus
	IdempotencyKey string
	ReceivedAt     time.Time
	Note           string
	CreatedAt      time.Time
	Items          []GRNItem
}

// GRNItem is one received line.
type GRNItem struct {
	ID          int64
	GRNID       int64
	ProductID   int64
	Quantity    float64
	UnitCost    decimal.Decimal
	BatchNumber string
	ExpiryDate  time.Time
}

// Total derives the receipt value from its items.
func (grn GoodsReceiveNote) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range grn.Items {
		total = total.Add(item.UnitCost.Mul(decimal.NewFromFloat(item.Quantity)))
	}
	return total
}

// SupplierReturn documents stock sent back to a supplier with its credit total.
type SupplierReturn struct {
	ID          int64
	Number      string
	SupplierID  int64
	GRNID       int64
	CreditTotal decimal.Decimal
	CreatedAt   time.Time
	Items       []ReturnItem
}

// ReturnItem is one returned line. BatchID pins the debit to a specific batch;
// zero lets the consumption engine pick batches.
type ReturnItem struct {
	ID        int64
	ReturnID  int64
	ProductID int64
	BatchID   int64
	Quantity  float64
	UnitCost  decimal.Decimal
	Reason    string
}

var (
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrNotFound indicates a missing record.
	ErrNotFound = fmt.Errorf("procurement: %w", shared.ErrNotFound)
)
