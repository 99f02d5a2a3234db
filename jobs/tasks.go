package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOfferExpirySweep ages active offers through the expiry lifecycle.
	TaskOfferExpirySweep = "offer:expiry_sweep"
	// TaskRetentionSweep purges history, dead offers, and orphan customers
	// past their retention windows.
	TaskRetentionSweep = "retention:sweep"
)

// SweepPayload carries the reference time for a sweep run. A zero Now means
// "use wall clock at execution"; explicit times exist for backfills.
type SweepPayload struct {
	Now time.Time `json:"now,omitempty"`
}

// NewOfferExpirySweepTask constructs an expiry sweep task.
func NewOfferExpirySweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOfferExpirySweep, data), nil
}

// NewRetentionSweepTask constructs a retention sweep task.
func NewRetentionSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetentionSweep, data), nil
}
