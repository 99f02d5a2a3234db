package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offercdp/offercdp/internal/history"
	"github.com/offercdp/offercdp/internal/offer"
)

// sweepPageSize bounds how many candidate offers one page scan pulls.
const sweepPageSize = 500

// ExpirySweeper ages active offers out of circulation. Calendar-lapsed offers
// with no journey expire outright; journey-started offers expire only when
// the loan application ended negatively or overran the configured LAN
// validity window. An ongoing journey is never touched.
type ExpirySweeper struct {
	store       offer.Store
	journeys    offer.JourneySource
	lanValidity time.Duration
	logger      *slog.Logger
}

// NewExpirySweeper constructs the sweeper. lanValidity of zero means journey
// offers never force-expire on calendar alone.
func NewExpirySweeper(store offer.Store, journeys offer.JourneySource, lanValidity time.Duration, logger *slog.Logger) *ExpirySweeper {
	return &ExpirySweeper{store: store, journeys: journeys, lanValidity: lanValidity, logger: logger}
}

// SweepResult summarises one sweep run.
type SweepResult struct {
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SweepExpirations runs one full sweep against the given reference time. The
// sweep is idempotent: already-expired offers are no longer candidates, so a
// re-run with the same now produces no further transitions. Per-offer
// failures are counted and the sweep continues.
func (s *ExpirySweeper) SweepExpirations(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	afterID := ""
	for {
		page, err := s.store.ListExpiryCandidates(ctx, now, afterID, sweepPageSize)
		if err != nil {
			return result, fmt.Errorf("sweeper: list candidates: %w", err)
		}
		if len(page) == 0 {
			return result, nil
		}
		for _, o := range page {
			afterID = o.ID
			reason, expire, err := s.decide(ctx, o, now)
			if err != nil {
				result.Failed++
				if s.logger != nil {
					s.logger.Error("expiry decision failed", slog.String("offer_id", o.ID), slog.Any("error", err))
				}
				continue
			}
			if !expire {
				result.Skipped++
				continue
			}
			if err := s.expire(ctx, o, reason, now); err != nil {
				result.Failed++
				if s.logger != nil {
					s.logger.Error("expire offer failed", slog.String("offer_id", o.ID), slog.Any("error", err))
				}
				continue
			}
			result.Expired++
		}
		if len(page) < sweepPageSize {
			return result, nil
		}
	}
}

func (s *ExpirySweeper) decide(ctx context.Context, o offer.Offer, now time.Time) (string, bool, error) {
	if !o.JourneyStarted {
		if o.ValidityEnd.Before(now) {
			return offer.ReasonValidityElapsed, true, nil
		}
		return "", false, nil
	}
	if o.LAN != "" {
		status, err := s.journeys.LatestStatus(ctx, o.LAN)
		if err != nil {
			return "", false, err
		}
		if status.Terminal && status.Outcome.Negative() {
			return offer.ReasonJourneyNegative, true, nil
		}
		if status.Terminal {
			// Positive terminal journeys (disbursed loans) are left for the
			// retention sweeper once the offer ages out naturally.
			return "", false, nil
		}
	}
	if s.lanValidity > 0 && o.JourneyStartedAt != nil && now.After(o.JourneyStartedAt.Add(s.lanValidity)) {
		return offer.ReasonLANWindowElapsed, true, nil
	}
	return "", false, nil
}

// expire transitions one offer inside its own transaction, taking the same
// per-customer lock the precedence engine takes so the sweep never races a
// concurrent ingestion for that customer.
func (s *ExpirySweeper) expire(ctx context.Context, candidate offer.Offer, reason string, now time.Time) error {
	return s.store.WithTx(ctx, func(ctx context.Context, st offer.Store) error {
		if err := st.LockCustomer(ctx, candidate.CustomerID); err != nil {
			return err
		}
		current, err := st.Get(ctx, candidate.ID)
		if err != nil {
			return err
		}
		// A concurrent ingestion may have demoted the offer already.
		if current.Status != offer.StatusActive {
			return nil
		}
		if err := st.UpdateStatus(ctx, current.ID, offer.StatusExpired, now); err != nil {
			return err
		}
		entry := history.NewEntry(current.ID, current.CustomerID, now, string(current.Status), string(offer.StatusExpired), reason, current.Details)
		return st.InsertHistory(ctx, entry)
	})
}
