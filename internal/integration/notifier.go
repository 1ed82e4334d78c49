package integration

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lotledger/lotledger/internal/ledger"
	"github.com/lotledger/lotledger/internal/procurement"
	"github.com/lotledger/lotledger/jobs"
)

// Queue is the enqueue surface the notifier publishes to.
type Queue interface {
	EnqueueStockMovement(ctx context.Context, payload jobs.StockMovementPayload) (*asynq.TaskInfo, error)
	EnqueueGRNConfirmed(ctx context.Context, payload jobs.GRNConfirmedPayload) (*asynq.TaskInfo, error)
}

// AlertInvalidator drops cached alert views after a stock movement.
type AlertInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Notifier fans domain events out to the job queue and the alert cache.
// The database transaction has already committed when an event arrives, so
// failures here are logged and swallowed rather than surfaced to the caller.
type Notifier struct {
	queue  Queue
	alerts AlertInvalidator
	logger *slog.Logger
}

// NewNotifier constructs the event fan-out.
func NewNotifier(queue Queue, alerts AlertInvalidator, logger *slog.Logger) *Notifier {
	return &Notifier{queue: queue, alerts: alerts, logger: logger}
}

// HandleStockIncreased publishes a notification for grown on-hand quantity.
func (n *Notifier) HandleStockIncreased(ctx context.Context, evt ledger.StockIncreasedEvent) error {
	if n == nil {
		return nil
	}
	n.invalidateAlerts(ctx)
	if n.queue == nil {
		return nil
	}
	_, err := n.queue.EnqueueStockMovement(ctx, jobs.StockMovementPayload{
		ProductID:       evt.ProductID,
		Direction:       "in",
		Quantity:        evt.Quantity,
		ReferenceNumber: evt.ReferenceNumber,
		OccurredAt:      evt.OccurredAt,
	})
	if err != nil {
		n.logger.Warn("enqueue stock movement failed", slog.Int64("product_id", evt.ProductID), slog.Any("error", err))
	}
	return nil
}

// HandleStockDecreased publishes a notification for shrunk on-hand quantity.
func (n *Notifier) HandleStockDecreased(ctx context.Context, evt ledger.StockDecreasedEvent) error {
	if n == nil {
		return nil
	}
	n.invalidateAlerts(ctx)
	if n.queue == nil {
		return nil
	}
	_, err := n.queue.EnqueueStockMovement(ctx, jobs.StockMovementPayload{
		ProductID:  evt.ProductID,
		Direction:  "out",
		Quantity:   evt.Quantity,
		Reason:     string(evt.Reason),
		OccurredAt: evt.OccurredAt,
	})
	if err != nil {
		n.logger.Warn("enqueue stock movement failed", slog.Int64("product_id", evt.ProductID), slog.Any("error", err))
	}
	return nil
}

// HandleGRNConfirmed publishes a notification for a posted goods receipt.
func (n *Notifier) HandleGRNConfirmed(ctx context.Context, evt procurement.GRNConfirmedEvent) error {
	if n == nil {
		return nil
	}
	n.invalidateAlerts(ctx)
	if n.queue == nil {
		return nil
	}
	_, err := n.queue.EnqueueGRNConfirmed(ctx, jobs.GRNConfirmedPayload{
		GRNID:      evt.GRNID,
		Number:     evt.Number,
		SupplierID: evt.SupplierID,
		Total:      evt.Total.String(),
		OccurredAt: evt.OccurredAt,
	})
	if err != nil {
		n.logger.Warn("enqueue GRN notification failed", slog.Int64("grn_id", evt.GRNID), slog.Any("error", err))
	}
	return nil
}

func (n *Notifier) invalidateAlerts(ctx context.Context) {
	if n.alerts == nil {
		return
	}
	if err := n.alerts.Invalidate(ctx); err != nil {
		n.logger.Warn("alert cache invalidation failed", slog.Any("error", err))
	}
}
