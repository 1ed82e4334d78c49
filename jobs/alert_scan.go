package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/lotledger/lotledger/internal/alerts"
	jobmetrics "github.com/lotledger/lotledger/internal/jobs"
)

// TaskAlertScan runs the periodic low-stock and expiry scans.
const TaskAlertScan = "alerts:scan"

// AlertScanPayload carries scheduling metadata.
type AlertScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewAlertScanTask constructs an Asynq task for the alert scan.
func NewAlertScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AlertScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertScan, body, asynq.Queue(QueueDefault)), nil
}

// HandleAlertScanTask refreshes the alert caches and records how many alerts
// are currently open. The scan itself warms the cached views the HTTP layer
// serves.
func HandleAlertScanTask(service *alerts.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("alert_scan")
		if err := service.Invalidate(ctx); err != nil {
			return tracker.End(err)
		}
		var (
			low      []alerts.LowStockAlert
			expiring []alerts.ExpiryAlert
			expired  []alerts.ExpiryAlert
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			low, err = service.LowStock(gctx, nil)
			return err
		})
		g.Go(func() (err error) {
			expiring, err = service.ExpiringBatches(gctx, 0)
			return err
		})
		g.Go(func() (err error) {
			expired, err = service.ExpiredBatches(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return tracker.End(err)
		}
		metrics.AddAlerts("low_stock", len(low))
		metrics.AddAlerts("expiring", len(expiring))
		metrics.AddAlerts("expired", len(expired))
		logger.Info("alert scan finished",
			slog.Int("low_stock", len(low)),
			slog.Int("expiring", len(expiring)),
			slog.Int("expired", len(expired)))
		return tracker.End(nil)
	}
}
