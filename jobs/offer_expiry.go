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

// OfferExpiryJob processes offer expiry sweep tasks.
type OfferExpiryJob struct {
	sweeper *sweeper.ExpirySweeper
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewOfferExpiryJob constructs a job handler.
func NewOfferExpiryJob(s *sweeper.ExpirySweeper, metrics *jobmetrics.Metrics, logger *slog.Logger) *OfferExpiryJob {
	return &OfferExpiryJob{sweeper: s, metrics: metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *OfferExpiryJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	now := payload.Now
	if now.IsZero() {
		now = time.Now()
	}
	tracker := j.metrics.Track(TaskOfferExpirySweep)
	result, err := j.sweeper.SweepExpirations(ctx, now)
	if err = tracker.End(err); err != nil {
		if j.logger != nil {
			j.logger.Error("expiry sweep failed", slog.Any("error", err))
		}
		return err
	}
	j.metrics.AddExpired(result.Expired)
	if j.logger != nil {
		j.logger.Info("expiry sweep complete",
			slog.Int("expired", result.Expired),
			slog.Int("skipped", result.Skipped),
			slog.Int("failed", result.Failed),
		)
	}
	return nil
}
