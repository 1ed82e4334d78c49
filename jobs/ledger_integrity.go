package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/lotledger/lotledger/internal/jobs"
	"github.com/lotledger/lotledger/internal/ledger"
	"github.com/lotledger/lotledger/internal/observability"
)

// TaskLedgerIntegrity reconciles ledger rows against their batch sums.
const TaskLedgerIntegrity = "ledger:integrity"

// LedgerIntegrityPayload carries scheduling metadata.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity check.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// IntegrityChecker is the ledger surface the job needs.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) ([]ledger.Drift, error)
}

// HandleLedgerIntegrityTask scans for products whose ledger row disagrees
// with the sum of their active batches and publishes the drift gauge.
func HandleLedgerIntegrityTask(checker IntegrityChecker, obs *observability.Metrics, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		drifts, err := checker.CheckIntegrity(ctx)
		if err != nil {
			return tracker.End(err)
		}
		obs.SetLedgerDrift(len(drifts))
		for _, d := range drifts {
			logger.Warn("ledger drift detected",
				slog.Int64("product_id", d.ProductID),
				slog.Float64("ledger_on_hand", d.LedgerOnHand),
				slog.Float64("batch_total", d.BatchTotal))
		}
		if len(drifts) == 0 {
			logger.Info("ledger integrity check clean")
		}
		return tracker.End(nil)
	}
}
