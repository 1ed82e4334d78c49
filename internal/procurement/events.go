package procurement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lotledger/lotledger/internal/ledger"
)

// GRNConfirmedEvent captures a posted goods receipt for downstream consumers.
type GRNConfirmedEvent struct {
	GRNID      int64                 `json:"grn_id"`
	Number     string                `json:"number"`
	SupplierID int64                 `json:"supplier_id"`
	POID       int64                 `json:"po_id,omitempty"`
	Batches    []ledger.BatchReceipt `json:"batches"`
	Total      decimal.Decimal       `json:"total"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// IntegrationHandler receives procurement domain events.
type IntegrationHandler interface {
	HandleGRNConfirmed(ctx context.Context, evt GRNConfirmedEvent) error
}
