package offer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/offercdp/offercdp/internal/history"
	"github.com/offercdp/offercdp/internal/journey"
	"github.com/offercdp/offercdp/internal/shared"
)

// OutcomeKind classifies what the precedence engine did with an incoming
// offer.
type OutcomeKind string

const (
	// OutcomeCreated means a new active offer was created without touching
	// any existing offer.
	OutcomeCreated OutcomeKind = "CREATED"
	// OutcomeSuperseded means a new active offer was created and one or more
	// existing offers were demoted.
	OutcomeSuperseded OutcomeKind = "SUPERSEDED"
	// OutcomeRejectedDuplicate means the incoming offer repeats an existing
	// active offer and was not persisted.
	OutcomeRejectedDuplicate OutcomeKind = "REJECTED_DUPLICATE"
	// OutcomeBlocked means an existing offer outranks the incoming one; the
	// customer is redirected to the blocking offer.
	OutcomeBlocked OutcomeKind = "BLOCKED"
	// OutcomeDropped means an enrich offer arrived while a journey was in
	// flight for its tier; the record is discarded without trace.
	OutcomeDropped OutcomeKind = "DROPPED"
	// OutcomeContinued means the incoming record carried the LAN of the
	// in-journey offer and was applied as an update to it.
	OutcomeContinued OutcomeKind = "CONTINUED"
)

// Outcome is the result of processing one incoming offer.
type Outcome struct {
	Kind          OutcomeKind `json:"kind"`
	Offer         *Offer      `json:"offer,omitempty"`
	SupersededIDs []string    `json:"superseded_ids,omitempty"`
	BlockedByID   string      `json:"blocked_by_id,omitempty"`
	DuplicateOfID string      `json:"duplicate_of_id,omitempty"`
}

// JourneySource answers latest-status queries for loan application numbers.
type JourneySource interface {
	LatestStatus(ctx context.Context, lan string) (journey.Status, error)
}

// Engine decides whether an incoming offer creates a new offer, supersedes
// existing ones, is rejected as a duplicate, is blocked, or is dropped. All
// reads and writes for one call happen inside a single transaction holding
// the customer row lock, so concurrent offers for the same customer are
// serialized.
type Engine struct {
	store    Store
	journeys JourneySource
	now      func() time.Time
}

// NewEngine constructs the precedence engine.
func NewEngine(store Store, journeys JourneySource) *Engine {
	return &Engine{store: store, journeys: journeys, now: time.Now}
}

// Process classifies and applies one incoming offer for a customer.
func (e *Engine) Process(ctx context.Context, customerID uuid.UUID, in Incoming) (Outcome, error) {
	if err := in.Validate(); err != nil {
		return Outcome{}, err
	}
	var out Outcome
	err := e.store.WithTx(ctx, func(ctx context.Context, st Store) error {
		if err := st.LockCustomer(ctx, customerID); err != nil {
			return fmt.Errorf("offer: lock customer: %w", err)
		}
		active, err := st.ListActiveByCustomer(ctx, customerID)
		if err != nil {
			return fmt.Errorf("offer: list active: %w", err)
		}
		out, err = e.classify(ctx, st, customerID, in, active)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// classify walks the precedence rules in order against the customer's active
// offers. active is sorted by ascending created_at; when several offers match
// one rule they are each handled independently, which lets a single incoming
// offer heal earlier data-quality duplicates.
func (e *Engine) classify(ctx context.Context, st Store, customerID uuid.UUID, in Incoming, active []Offer) (Outcome, error) {
	// Rule 1: journey lock.
	lock, err := e.findJourneyLock(ctx, active)
	if err != nil {
		return Outcome{}, err
	}
	if lock != nil {
		if in.LAN != "" && in.LAN == lock.LAN {
			updated, err := e.continueJourney(ctx, st, *lock, in)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Kind: OutcomeContinued, Offer: updated}, nil
		}
		if in.Type == TypeEnrich {
			// An enrich offer must never surface while a journey is in
			// flight for its tier; it is discarded rather than redirected.
			return Outcome{Kind: OutcomeDropped, BlockedByID: lock.ID}, nil
		}
		return Outcome{Kind: OutcomeBlocked, BlockedByID: lock.ID}, nil
	}

	// Rule 2: real-time channel supersession. A real-time offer also
	// replaces a live offer of its own product type, so repeated real-time
	// leads roll forward instead of stacking.
	if in.ProductType.RealTime() {
		var superseded []string
		for _, o := range active {
			if (realTimeSupersedable[o.ProductType] || o.ProductType == in.ProductType) && !o.JourneyStarted {
				if err := e.transition(ctx, st, o, StatusExpired, ReasonRealTimeSupersede); err != nil {
					return Outcome{}, err
				}
				superseded = append(superseded, o.ID)
			}
		}
		created, err := e.create(ctx, st, customerID, in)
		if err != nil {
			return Outcome{}, err
		}
		if len(superseded) > 0 {
			return Outcome{Kind: OutcomeSuperseded, Offer: created, SupersededIDs: superseded}, nil
		}
		return Outcome{Kind: OutcomeCreated, Offer: created}, nil
	}

	// Rule 3: enrich offers refresh the matching tier.
	if in.Type == TypeEnrich {
		for _, o := range active {
			if SameTier(in.ProductType, o.ProductType) && o.JourneyStarted {
				return Outcome{Kind: OutcomeDropped, BlockedByID: o.ID}, nil
			}
		}
		var superseded []string
		for _, o := range active {
			if SameTier(in.ProductType, o.ProductType) {
				if err := e.transition(ctx, st, o, StatusDuplicate, ReasonEnrichSupersede); err != nil {
					return Outcome{}, err
				}
				superseded = append(superseded, o.ID)
			}
		}
		created, err := e.create(ctx, st, customerID, in)
		if err != nil {
			return Outcome{}, err
		}
		if len(superseded) > 0 {
			return Outcome{Kind: OutcomeSuperseded, Offer: created, SupersededIDs: superseded}, nil
		}
		return Outcome{Kind: OutcomeCreated, Offer: created}, nil
	}

	// Exact repeats of a live offer are rejected rather than blocked, so the
	// caller can tell "already have this" apart from "outranked".
	for _, o := range active {
		if o.ProductType == in.ProductType && o.Type == in.Type &&
			o.SourceSystem == in.SourceSystem &&
			o.ValidityStart.Equal(in.ValidityStart) && o.ValidityEnd.Equal(in.ValidityEnd) {
			return Outcome{Kind: OutcomeRejectedDuplicate, DuplicateOfID: o.ID}, nil
		}
	}

	// Rule 4: batch-origin tiers are mutually exclusive.
	if batchOrigin[in.ProductType] {
		for _, o := range active {
			if blockingSet[o.ProductType] {
				return Outcome{Kind: OutcomeBlocked, BlockedByID: o.ID}, nil
			}
		}
	}

	// Rule 5: default accept.
	created, err := e.create(ctx, st, customerID, in)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeCreated, Offer: created}, nil
}

// findJourneyLock returns the oldest active offer holding a live journey
// lock. An offer with a started journey whose loan application already ended
// negatively does not lock. A started journey with no LAN yet cannot be
// checked against the feed and is treated as live.
func (e *Engine) findJourneyLock(ctx context.Context, active []Offer) (*Offer, error) {
	for i := range active {
		o := active[i]
		if !o.JourneyStarted {
			continue
		}
		if o.LAN == "" {
			return &o, nil
		}
		status, err := e.journeys.LatestStatus(ctx, o.LAN)
		if err != nil {
			return nil, fmt.Errorf("offer: journey status %s: %w", o.LAN, err)
		}
		if !status.Outcome.Negative() {
			return &o, nil
		}
	}
	return nil, nil
}

// continueJourney applies an incoming record carrying the in-journey offer's
// own LAN as an update to that offer. Status, LAN, and journey flags are
// never touched here.
func (e *Engine) continueJourney(ctx context.Context, st Store, o Offer, in Incoming) (*Offer, error) {
	if in.ValidityEnd.After(o.ValidityEnd) {
		o.ValidityEnd = in.ValidityEnd
	}
	if in.Propensity != "" {
		o.Propensity = in.Propensity
	}
	if !in.Amount.IsZero() {
		o.Amount = in.Amount
	}
	if !in.ROI.IsZero() {
		o.ROI = in.ROI
	}
	if len(in.Details) > 0 {
		if o.Details == nil {
			o.Details = make(map[string]any, len(in.Details))
		}
		for k, v := range in.Details {
			o.Details[k] = v
		}
	}
	o.UpdatedAt = e.now()
	if err := st.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("offer: continue journey: %w", err)
	}
	return &o, nil
}

// transition demotes one existing offer and writes its history row in the
// same transaction. The engine never demotes a journey-started offer; hitting
// one here means a rule bug or a race, which is fatal rather than ignored.
func (e *Engine) transition(ctx context.Context, st Store, o Offer, to Status, reason string) error {
	if o.JourneyStarted {
		return fmt.Errorf("%w: offer %s", shared.ErrJourneyLocked, o.ID)
	}
	now := e.now()
	if err := st.UpdateStatus(ctx, o.ID, to, now); err != nil {
		return fmt.Errorf("offer: transition %s: %w", o.ID, err)
	}
	entry := history.NewEntry(o.ID, o.CustomerID, now, string(o.Status), string(to), reason, o.Details)
	if err := st.InsertHistory(ctx, entry); err != nil {
		return fmt.Errorf("offer: record history %s: %w", o.ID, err)
	}
	return nil
}

func (e *Engine) create(ctx context.Context, st Store, customerID uuid.UUID, in Incoming) (*Offer, error) {
	now := e.now()
	o := Offer{
		ID:            ulid.Make().String(),
		CustomerID:    customerID,
		Type:          in.Type,
		ProductType:   in.ProductType,
		Status:        StatusActive,
		ValidityStart: in.ValidityStart,
		ValidityEnd:   in.ValidityEnd,
		LAN:           in.LAN,
		Propensity:    in.Propensity,
		SourceSystem:  in.SourceSystem,
		Channel:       in.Channel,
		Amount:        in.Amount,
		ROI:           in.ROI,
		Details:       in.Details,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.LAN != "" {
		o.JourneyStarted = true
		o.JourneyStartedAt = &now
	}
	if err := st.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("offer: create: %w", err)
	}
	return &o, nil
}
