package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/lotledger/lotledger/internal/jobs"
	"github.com/lotledger/lotledger/internal/shared"
)

// TaskIdempotencyCleanup prunes expired idempotency keys.
const TaskIdempotencyCleanup = "idempotency:cleanup"

// IdempotencyCleanupPayload carries the retention window for the sweep.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for the key sweep.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// HandleIdempotencyCleanupTask deletes idempotency keys older than the
// retention window. Keys must outlive any client retry horizon.
func HandleIdempotencyCleanupTask(store *shared.IdempotencyStore, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("idempotency_cleanup")
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			payload.Retention = 7 * 24 * time.Hour
		}
		removed, err := store.Cleanup(ctx, payload.Retention)
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("idempotency keys pruned", slog.Int64("removed", removed))
		return tracker.End(nil)
	}
}
