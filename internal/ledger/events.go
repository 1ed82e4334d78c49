package ledger

import (
	"context"
	"time"
)

// StockIncreasedEvent signals that on-hand quantity grew for a product.
type StockIncreasedEvent struct {
	ProductID       int64     `json:"product_id"`
	BatchID         int64     `json:"batch_id"`
	Quantity        float64   `json:"quantity"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// StockDecreasedEvent signals that on-hand quantity shrank for a product.
type StockDecreasedEvent struct {
	ProductID   int64             `json:"product_id"`
	Quantity    float64           `json:"quantity"`
	Reason      ConsumptionReason `json:"reason"`
	Allocations []BatchAllocation `json:"allocations"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// IntegrationHandler receives ledger events for the notification boundary.
// Delivery guarantees are the consumer's concern.
type IntegrationHandler interface {
	HandleStockIncreased(ctx context.Context, evt StockIncreasedEvent) error
	HandleStockDecreased(ctx context.Context, evt StockDecreasedEvent) error
}
