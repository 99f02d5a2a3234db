package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/offercdp/offercdp/internal/jobs"
	"github.com/offercdp/offercdp/internal/sweeper"
)

// RetentionJob processes retention sweep tasks.
type RetentionJob struct {
	sweeper *sweeper.RetentionSweeper
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewRetentionJob constructs a job handler.
func NewRetentionJob(s *sweeper.RetentionSweeper, metrics *jobmetrics.Metrics, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{sweeper: s, metrics: metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RetentionJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	now := payload.Now
	if now.IsZero() {
		now = time.Now()
	}
	tracker := j.metrics.Track(TaskRetentionSweep)
	result, err := j.sweeper.Sweep(ctx, now)
	if err = tracker.End(err); err != nil {
		if j.logger != nil {
			j.logger.Error("retention sweep failed", slog.Any("error", err))
		}
		return err
	}
	j.metrics.AddPurged("history", result.HistoryPurged)
	j.metrics.AddPurged("offers", result.OffersPurged)
	j.metrics.AddPurged("customers", result.CustomersRemoved)
	return nil
}
