package offer

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/offercdp/offercdp/internal/history"
	"github.com/offercdp/offercdp/internal/journey"
	"github.com/offercdp/offercdp/internal/shared"
)

type memStore struct {
	customers map[uuid.UUID]bool
	offers    map[string]*Offer
	history   []history.Entry
}

func newMemStore(customerIDs ...uuid.UUID) *memStore {
	m := &memStore{
		customers: make(map[uuid.UUID]bool),
		offers:    make(map[string]*Offer),
	}
	for _, id := range customerIDs {
		m.customers[id] = true
	}
	return m
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return fn(ctx, m)
}

func (m *memStore) LockCustomer(ctx context.Context, customerID uuid.UUID) error {
	if !m.customers[customerID] {
		return shared.ErrNotFound
	}
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Offer, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *memStore) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Offer, error) {
	var out []Offer
	for _, o := range m.offers {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	sortOffers(out)
	return out, nil
}

func (m *memStore) ListActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]Offer, error) {
	var out []Offer
	for _, o := range m.offers {
		if o.CustomerID == customerID && o.Status == StatusActive {
			out = append(out, *o)
		}
	}
	sortOffers(out)
	return out, nil
}

func (m *memStore) ListExpiryCandidates(ctx context.Context, now time.Time, afterID string, limit int) ([]Offer, error) {
	var out []Offer
	for _, o := range m.offers {
		if o.Status != StatusActive || o.ID <= afterID {
			continue
		}
		if o.JourneyStarted || o.ValidityEnd.Before(now) {
			out = append(out, *o)
		}
	}
	sortOffers(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Create(ctx context.Context, o Offer) error {
	m.offers[o.ID] = &o
	return nil
}

func (m *memStore) Update(ctx context.Context, o Offer) error {
	existing, ok := m.offers[o.ID]
	if !ok {
		return shared.ErrNotFound
	}
	existing.ValidityStart = o.ValidityStart
	existing.ValidityEnd = o.ValidityEnd
	existing.Propensity = o.Propensity
	existing.Amount = o.Amount
	existing.ROI = o.ROI
	existing.Details = o.Details
	existing.UpdatedAt = o.UpdatedAt
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error {
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
		if o.Status != StatusActive && o.UpdatedAt.Before(cutoff) {
			delete(m.offers, id)
			n++
		}
	}
	return n, nil
}

func sortOffers(offers []Offer) {
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].CreatedAt.Equal(offers[j].CreatedAt) {
			return offers[i].ID < offers[j].ID
		}
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
}

// stubJourneys reports configured outcomes; unknown LANs are ongoing.
type stubJourneys map[string]journey.Outcome

func (s stubJourneys) LatestStatus(ctx context.Context, lan string) (journey.Status, error) {
	outcome, ok := s[lan]
	if !ok {
		outcome = journey.OutcomeOngoing
	}
	return journey.Status{LAN: lan, Outcome: outcome, Terminal: outcome.Terminal()}, nil
}

func seedOffer(t *testing.T, store *memStore, customerID uuid.UUID, mutate func(*Offer)) Offer {
	t.Helper()
	now := time.Now()
	o := Offer{
		ID:            fmt.Sprintf("%026d", len(store.offers)+1),
		CustomerID:    customerID,
		Type:          TypeFresh,
		ProductType:   ProductPreapproved,
		Status:        StatusActive,
		ValidityStart: now.Add(-24 * time.Hour),
		ValidityEnd:   now.Add(30 * 24 * time.Hour),
		SourceSystem:  "offermart",
		Channel:       "batch",
		CreatedAt:     now.Add(-time.Duration(len(store.offers)+1) * time.Minute),
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&o)
	}
	require.NoError(t, store.Create(context.Background(), o))
	return o
}

func incoming(mutate func(*Incoming)) Incoming {
	now := time.Now()
	in := Incoming{
		Type:          TypeFresh,
		ProductType:   ProductInsta,
		ValidityStart: now,
		ValidityEnd:   now.Add(30 * 24 * time.Hour),
		SourceSystem:  "lead-api",
		Channel:       "realtime",
	}
	if mutate != nil {
		mutate(&in)
	}
	return in
}

func TestProcessRealTimeSupersession(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	existing := seedOffer(t, store, customerID, nil) // Preapproved, no journey
	engine := NewEngine(store, stubJourneys{})

	out, err := engine.Process(context.Background(), customerID, incoming(nil))
	require.NoError(t, err)

	require.Equal(t, OutcomeSuperseded, out.Kind)
	require.Equal(t, []string{existing.ID}, out.SupersededIDs)
	require.NotNil(t, out.Offer)
	require.Equal(t, StatusActive, out.Offer.Status)
	require.Equal(t, ProductInsta, out.Offer.ProductType)

	require.Equal(t, StatusExpired, store.offers[existing.ID].Status)
	require.Len(t, store.history, 1)
	require.Equal(t, ReasonRealTimeSupersede, store.history[0].Reason)
	require.Equal(t, string(StatusActive), store.history[0].OldStatus)
	require.Equal(t, string(StatusExpired), store.history[0].NewStatus)
}

func TestProcessJourneyLockBlocksBatchUpload(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	locked := seedOffer(t, store, customerID, func(o *Offer) {
		o.ProductType = ProductTopUp
		o.JourneyStarted = true
		o.LAN = "LAN1"
	})
	engine := NewEngine(store, stubJourneys{"LAN1": journey.OutcomeOngoing})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.ProductType = ProductEmployeeLoan
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeBlocked, out.Kind)
	require.Equal(t, locked.ID, out.BlockedByID)
	require.Len(t, store.offers, 1)
	require.Empty(t, store.history)
}

func TestProcessJourneyContinuationSameLAN(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	locked := seedOffer(t, store, customerID, func(o *Offer) {
		o.ProductType = ProductTopUp
		o.JourneyStarted = true
		o.LAN = "LAN1"
	})
	engine := NewEngine(store, stubJourneys{"LAN1": journey.OutcomeOngoing})

	newEnd := time.Now().Add(90 * 24 * time.Hour)
	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.ProductType = ProductTopUp
		in.LAN = "LAN1"
		in.ValidityEnd = newEnd
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeContinued, out.Kind)
	require.Equal(t, locked.ID, out.Offer.ID)
	require.Len(t, store.offers, 1)
	require.Empty(t, store.history)
	require.True(t, store.offers[locked.ID].ValidityEnd.Equal(newEnd))
	require.Equal(t, StatusActive, store.offers[locked.ID].Status)
	require.Equal(t, "LAN1", store.offers[locked.ID].LAN)
}

func TestProcessEnrichWithoutJourney(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	existing := seedOffer(t, store, customerID, nil)
	engine := NewEngine(store, stubJourneys{})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.Type = TypeEnrich
		in.ProductType = ProductPreapproved
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeSuperseded, out.Kind)
	require.Equal(t, []string{existing.ID}, out.SupersededIDs)
	require.Equal(t, StatusDuplicate, store.offers[existing.ID].Status)
	require.Equal(t, StatusActive, out.Offer.Status)
	require.Len(t, store.history, 1)
	require.Equal(t, ReasonEnrichSupersede, store.history[0].Reason)
}

func TestProcessEnrichWithJourneyDropped(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	locked := seedOffer(t, store, customerID, func(o *Offer) {
		o.JourneyStarted = true
		o.LAN = "LAN9"
	})
	engine := NewEngine(store, stubJourneys{"LAN9": journey.OutcomeOngoing})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.Type = TypeEnrich
		in.ProductType = ProductPreapproved
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeDropped, out.Kind)
	require.Len(t, store.offers, 1)
	require.Equal(t, StatusActive, store.offers[locked.ID].Status)
	require.Empty(t, store.history)
}

func TestProcessBatchTierBlocked(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	existing := seedOffer(t, store, customerID, func(o *Offer) {
		o.ProductType = ProductProspect
	})
	engine := NewEngine(store, stubJourneys{})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.ProductType = ProductTWLoyalty
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeBlocked, out.Kind)
	require.Equal(t, existing.ID, out.BlockedByID)
	require.Len(t, store.offers, 1)
	require.Empty(t, store.history)
}

func TestProcessDefaultCreate(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	engine := NewEngine(store, stubJourneys{})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.ProductType = ProductTWLoyalty
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeCreated, out.Kind)
	require.Len(t, store.offers, 1)
	require.Empty(t, store.history)
	require.Equal(t, StatusActive, out.Offer.Status)
}

func TestProcessIncomingWithLANStartsJourney(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	engine := NewEngine(store, stubJourneys{})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.LAN = "LAN42"
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeCreated, out.Kind)
	require.True(t, out.Offer.JourneyStarted)
	require.NotNil(t, out.Offer.JourneyStartedAt)
	require.Equal(t, "LAN42", out.Offer.LAN)
}

func TestProcessExactRepeatRejectedAsDuplicate(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	start := time.Now().Truncate(time.Second)
	end := start.Add(30 * 24 * time.Hour)
	existing := seedOffer(t, store, customerID, func(o *Offer) {
		o.ProductType = ProductTWLoyalty
		o.ValidityStart = start
		o.ValidityEnd = end
		o.SourceSystem = "offermart"
	})
	engine := NewEngine(store, stubJourneys{})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.ProductType = ProductTWLoyalty
		in.ValidityStart = start
		in.ValidityEnd = end
		in.SourceSystem = "offermart"
	}))
	require.NoError(t, err)

	require.Equal(t, OutcomeRejectedDuplicate, out.Kind)
	require.Equal(t, existing.ID, out.DuplicateOfID)
	require.Len(t, store.offers, 1)
	require.Empty(t, store.history)
}

func TestProcessReleasedJourneyLockFallsThrough(t *testing.T) {
	// A journey that ended negatively no longer locks, but the offer still
	// occupies its blocking tier until the sweeper expires it.
	customerID := uuid.New()
	store := newMemStore(customerID)
	existing := seedOffer(t, store, customerID, func(o *Offer) {
		o.ProductType = ProductTopUp
		o.JourneyStarted = true
		o.LAN = "LAN7"
	})
	engine := NewEngine(store, stubJourneys{"LAN7": journey.OutcomeRejected})

	out, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.ProductType = ProductProspect
	}))
	require.NoError(t, err)
	require.Equal(t, OutcomeBlocked, out.Kind)
	require.Equal(t, existing.ID, out.BlockedByID)
}

func TestProcessMultipleSupersessionsSelfHealing(t *testing.T) {
	// Two Preapproved actives should not occur, but earlier data-quality
	// issues can leave them. One real-time offer demotes both.
	customerID := uuid.New()
	store := newMemStore(customerID)
	older := seedOffer(t, store, customerID, func(o *Offer) {
		o.CreatedAt = time.Now().Add(-2 * time.Hour)
	})
	newer := seedOffer(t, store, customerID, func(o *Offer) {
		o.CreatedAt = time.Now().Add(-1 * time.Hour)
	})
	engine := NewEngine(store, stubJourneys{})

	out, err := engine.Process(context.Background(), customerID, incoming(nil))
	require.NoError(t, err)

	require.Equal(t, OutcomeSuperseded, out.Kind)
	require.Equal(t, []string{older.ID, newer.ID}, out.SupersededIDs)
	require.Equal(t, StatusExpired, store.offers[older.ID].Status)
	require.Equal(t, StatusExpired, store.offers[newer.ID].Status)
	require.Len(t, store.history, 2)
}

func TestProcessRejectsUnknownEnums(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	engine := NewEngine(store, stubJourneys{})

	_, err := engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.Type = Type("MYSTERY")
	}))
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = engine.Process(context.Background(), customerID, incoming(func(in *Incoming) {
		in.ProductType = ProductType("MYSTERY")
	}))
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestProcessUnknownCustomer(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, stubJourneys{})

	_, err := engine.Process(context.Background(), uuid.New(), incoming(nil))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAtMostOneActivePerTierProperty(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	engine := NewEngine(store, stubJourneys{})

	products := []ProductType{
		ProductProspect, ProductPreapproved, ProductEAggregator, ProductInsta,
		ProductTWLoyalty, ProductTopUp, ProductEmployeeLoan,
	}
	types := []Type{TypeFresh, TypeEnrich, TypeNewOld, TypeNewNew}

	for i := 0; i < 200; i++ {
		in := incoming(func(in *Incoming) {
			in.ProductType = products[i%len(products)]
			in.Type = types[(i/3)%len(types)]
			in.ValidityStart = time.Now().Add(time.Duration(i) * time.Minute)
			in.ValidityEnd = in.ValidityStart.Add(30 * 24 * time.Hour)
		})
		_, err := engine.Process(context.Background(), customerID, in)
		require.NoError(t, err)

		active, err := store.ListActiveByCustomer(context.Background(), customerID)
		require.NoError(t, err)
		batch := 0
		perProduct := map[ProductType]int{}
		for _, o := range active {
			if batchOrigin[o.ProductType] {
				batch++
			} else {
				perProduct[o.ProductType]++
			}
		}
		require.LessOrEqual(t, batch, 1, "iteration %d: batch tier must hold at most one active offer", i)
		for p, n := range perProduct {
			require.LessOrEqual(t, n, 1, "iteration %d: product %s", i, p)
		}
	}
}

func TestHistoryCompleteness(t *testing.T) {
	customerID := uuid.New()
	store := newMemStore(customerID)
	engine := NewEngine(store, stubJourneys{})

	first := seedOffer(t, store, customerID, nil)
	_, err := engine.Process(context.Background(), customerID, incoming(nil))
	require.NoError(t, err)

	// One transition, one row, chronological and linked.
	require.Len(t, store.history, 1)
	entry := store.history[0]
	require.Equal(t, first.ID, entry.OfferID)
	require.Equal(t, customerID, entry.CustomerID)
	require.Equal(t, string(StatusActive), entry.OldStatus)
	require.Equal(t, string(store.offers[first.ID].Status), entry.NewStatus)
	require.NotEmpty(t, entry.ID)
}
