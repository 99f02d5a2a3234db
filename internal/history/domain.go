package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Entry is one append-only offer status transition record. Entries are never
// mutated after insert; exactly one is written per status change.
type Entry struct {
	ID              string         `json:"id"`
	OfferID         string         `json:"offer_id"`
	CustomerID      uuid.UUID      `json:"customer_id"`
	ChangedAt       time.Time      `json:"changed_at"`
	OldStatus       string         `json:"old_status,omitempty"`
	NewStatus       string         `json:"new_status"`
	Reason          string         `json:"reason"`
	DetailsSnapshot map[string]any `json:"details_snapshot,omitempty"`
}

// NewEntry builds an entry with a fresh ULID. ULIDs sort by creation time, so
// a plain primary-key scan reads the trail in chronological order.
func NewEntry(offerID string, customerID uuid.UUID, changedAt time.Time, oldStatus, newStatus, reason string, snapshot map[string]any) Entry {
	return Entry{
		ID:              ulid.Make().String(),
		OfferID:         offerID,
		CustomerID:      customerID,
		ChangedAt:       changedAt,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		Reason:          reason,
		DetailsSnapshot: snapshot,
	}
}
