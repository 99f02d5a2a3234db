package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/offercdp/offercdp/internal/history"
	"github.com/offercdp/offercdp/internal/journey"
	"github.com/offercdp/offercdp/internal/offer"
	"github.com/offercdp/offercdp/internal/shared"
)

type memStore struct {
	offers  map[string]*offer.Offer
	history []history.Entry

	// failStatusFor makes UpdateStatus fail once for the given offer ID.
	failStatusFor string
}

func newMemStore() *memStore {
	return &memStore{offers: make(map[string]*offer.Offer)}
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, offer.Store) error) error {
	return fn(ctx, m)
}

func (m *memStore) LockCustomer(ctx context.Context, customerID uuid.UUID) error { return nil }

func (m *memStore) Get(ctx context.Context, id string) (*offer.Offer, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *memStore) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]offer.Offer, error) {
	var out []offer.Offer
	for _, o := range m.offers {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]offer.Offer, error) {
	var out []offer.Offer
	for _, o := range m.offers {
		if o.CustomerID == customerID && o.Status == offer.StatusActive {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) ListExpiryCandidates(ctx context.Context, now time.Time, afterID string, limit int) ([]offer.Offer, error) {
	var out []offer.Offer
	for _, o := range m.offers {
		if o.Status != offer.StatusActive || o.ID <= afterID {
			continue
		}
		if o.JourneyStarted || o.ValidityEnd.Before(now) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Create(ctx context.Context, o offer.Offer) error {
	m.offers[o.ID] = &o
	return nil
}

func (m *memStore) Update(ctx context.Context, o offer.Offer) error {
	if _, ok := m.offers[o.ID]; !ok {
		return shared.ErrNotFound
	}
	m.offers[o.ID] = &o
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status offer.Status, updatedAt time.Time) error {
	if id == m.failStatusFor {
		m.failStatusFor = ""
		return errors.New("connection reset")
	}
	o, ok := m.offers[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	return nil
}

func (m *memStore) InsertHistory(ctx context.Context, e history.Entry) error {
	m.history = append(m.history, e)
	return nil
}

func (m *memStore) DeleteAged(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, o := range m.offers {
		if o.Status != offer.StatusActive && o.UpdatedAt.Before(cutoff) {
			delete(m.offers, id)
			n++
		}
	}
	return n, nil
}

type stubJourneys struct {
	statuses map[string]journey.Status
	err      error
}

func (s *stubJourneys) LatestStatus(ctx context.Context, lan string) (journey.Status, error) {
	if s.err != nil {
		return journey.Status{}, s.err
	}
	if st, ok := s.statuses[lan]; ok {
		return st, nil
	}
	return journey.Status{LAN: lan, Outcome: journey.OutcomeOngoing}, nil
}

func seedOffer(t *testing.T, store *memStore, mutate func(*offer.Offer)) offer.Offer {
	t.Helper()
	now := time.Now()
	o := offer.Offer{
		ID:            ulid.Make().String(),
		CustomerID:    uuid.New(),
		Type:          offer.TypeFresh,
		ProductType:   offer.ProductProspect,
		Status:        offer.StatusActive,
		ValidityStart: now.Add(-30 * 24 * time.Hour),
		ValidityEnd:   now.Add(30 * 24 * time.Hour),
		SourceSystem:  "OFFERMART",
		Channel:       "SMS",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&o)
	}
	store.offers[o.ID] = &o
	return o
}

func TestSweepExpiresLapsedOffer(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	lapsed := seedOffer(t, store, func(o *offer.Offer) {
		o.ValidityEnd = now.Add(-24 * time.Hour)
	})
	current := seedOffer(t, store, nil)

	sw := NewExpirySweeper(store, &stubJourneys{}, 0, nil)
	result, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Expired)
	require.Zero(t, result.Failed)

	require.Equal(t, offer.StatusExpired, store.offers[lapsed.ID].Status)
	require.Equal(t, offer.StatusActive, store.offers[current.ID].Status)

	require.Len(t, store.history, 1)
	require.Equal(t, lapsed.ID, store.history[0].OfferID)
	require.Equal(t, offer.ReasonValidityElapsed, store.history[0].Reason)
}

func TestSweepIsIdempotent(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	seedOffer(t, store, func(o *offer.Offer) {
		o.ValidityEnd = now.Add(-time.Hour)
	})

	sw := NewExpirySweeper(store, &stubJourneys{}, 0, nil)
	first, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, first.Expired)

	second, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, second.Expired)
	require.Len(t, store.history, 1)
}

func TestSweepLeavesOngoingJourneyAlone(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	started := now.Add(-90 * 24 * time.Hour)
	o := seedOffer(t, store, func(o *offer.Offer) {
		o.JourneyStarted = true
		o.JourneyStartedAt = &started
		o.LAN = "LAN-100"
		// Calendar validity lapsed long ago; the journey keeps it alive.
		o.ValidityEnd = now.Add(-60 * 24 * time.Hour)
	})

	sw := NewExpirySweeper(store, &stubJourneys{}, 0, nil)
	result, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, result.Expired)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, offer.StatusActive, store.offers[o.ID].Status)
}

func TestSweepExpiresNegativeTerminalJourney(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	o := seedOffer(t, store, func(o *offer.Offer) {
		o.JourneyStarted = true
		o.LAN = "LAN-200"
	})

	journeys := &stubJourneys{statuses: map[string]journey.Status{
		"LAN-200": {LAN: "LAN-200", Outcome: journey.OutcomeRejected, Terminal: true},
	}}
	sw := NewExpirySweeper(store, journeys, 0, nil)
	result, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Expired)
	require.Equal(t, offer.StatusExpired, store.offers[o.ID].Status)
	require.Equal(t, offer.ReasonJourneyNegative, store.history[0].Reason)
}

func TestSweepSkipsDisbursedJourney(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	o := seedOffer(t, store, func(o *offer.Offer) {
		o.JourneyStarted = true
		o.LAN = "LAN-300"
	})

	journeys := &stubJourneys{statuses: map[string]journey.Status{
		"LAN-300": {LAN: "LAN-300", Outcome: journey.OutcomeDisbursed, Terminal: true},
	}}
	sw := NewExpirySweeper(store, journeys, 0, nil)
	result, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, result.Expired)
	require.Equal(t, offer.StatusActive, store.offers[o.ID].Status)
}

func TestSweepForcesLANValidityWindow(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	started := now.Add(-45 * 24 * time.Hour)
	o := seedOffer(t, store, func(o *offer.Offer) {
		o.JourneyStarted = true
		o.JourneyStartedAt = &started
		o.LAN = "LAN-400"
	})

	// Journey still ongoing, but the 30-day LAN window has elapsed.
	sw := NewExpirySweeper(store, &stubJourneys{}, 30*24*time.Hour, nil)
	result, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Expired)
	require.Equal(t, offer.StatusExpired, store.offers[o.ID].Status)
	require.Equal(t, offer.ReasonLANWindowElapsed, store.history[0].Reason)
}

func TestSweepIsolatesPerOfferFailures(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	bad := seedOffer(t, store, func(o *offer.Offer) {
		o.ValidityEnd = now.Add(-time.Hour)
	})
	good := seedOffer(t, store, func(o *offer.Offer) {
		o.ValidityEnd = now.Add(-time.Hour)
	})
	store.failStatusFor = bad.ID

	sw := NewExpirySweeper(store, &stubJourneys{}, 0, nil)
	result, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Expired)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, offer.StatusExpired, store.offers[good.ID].Status)
	require.Equal(t, offer.StatusActive, store.offers[bad.ID].Status)
}

func TestSweepCountsJourneyLookupFailures(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	seedOffer(t, store, func(o *offer.Offer) {
		o.JourneyStarted = true
		o.LAN = "LAN-500"
	})

	sw := NewExpirySweeper(store, &stubJourneys{err: fmt.Errorf("redis: connection refused")}, 0, nil)
	result, err := sw.SweepExpirations(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Zero(t, result.Expired)
}
