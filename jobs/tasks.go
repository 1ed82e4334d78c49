package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeStockMovement notifies downstream consumers of a stock change.
	TaskTypeStockMovement = "stock:movement"
	// TaskTypeGRNConfirmed notifies downstream consumers of a posted receipt.
	TaskTypeGRNConfirmed = "procurement:grn_confirmed"
)

// StockMovementPayload describes a single change to on-hand quantity.
type StockMovementPayload struct {
	ProductID       int64     `json:"product_id"`
	Direction       string    `json:"direction"`
	Quantity        float64   `json:"quantity"`
	Reason          string    `json:"reason,omitempty"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// GRNConfirmedPayload describes a confirmed goods receipt.
type GRNConfirmedPayload struct {
	GRNID      int64     `json:"grn_id"`
	Number     string    `json:"number"`
	SupplierID int64     `json:"supplier_id"`
	Total      string    `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewStockMovementTask constructs an Asynq task for a stock movement.
func NewStockMovementTask(payload StockMovementPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStockMovement, data, asynq.Queue(QueueDefault)), nil
}

// NewGRNConfirmedTask constructs an Asynq task for a confirmed receipt.
func NewGRNConfirmedTask(payload GRNConfirmedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGRNConfirmed, data, asynq.Queue(QueueDefault)), nil
}

// HandleStockMovementTask processes TaskTypeStockMovement tasks.
// Delivery to webhooks or a message bus lands here in a later phase.
func HandleStockMovementTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockMovementPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("stock movement notification",
			slog.Int64("product_id", payload.ProductID),
			slog.String("direction", payload.Direction),
			slog.Float64("quantity", payload.Quantity),
			slog.String("reference", payload.ReferenceNumber))
		return nil
	}
}

// HandleGRNConfirmedTask processes TaskTypeGRNConfirmed tasks.
func HandleGRNConfirmedTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload GRNConfirmedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("goods receipt notification",
			slog.Int64("grn_id", payload.GRNID),
			slog.String("number", payload.Number),
			slog.Int64("supplier_id", payload.SupplierID),
			slog.String("total", payload.Total))
		return nil
	}
}
