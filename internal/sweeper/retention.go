package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// HistoryPurger deletes aged history rows.
type HistoryPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// OfferPurger deletes aged non-active offers.
type OfferPurger interface {
	DeleteAged(ctx context.Context, cutoff time.Time) (int64, error)
}

// CustomerPurger deletes aged-out customers with no remaining offers.
type CustomerPurger interface {
	DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error)
}

// KeyPurger expires processed batch idempotency keys.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// RetentionSweeper purges data past its retention window: history rows first,
// then dead offers, then orphaned customers, so a customer only goes once its
// offers are gone.
type RetentionSweeper struct {
	history   HistoryPurger
	offers    OfferPurger
	customers CustomerPurger
	keys      KeyPurger

	historyWindow time.Duration
	offerWindow   time.Duration
	orphanAge     time.Duration
	keyTTL        time.Duration

	logger *slog.Logger
}

// NewRetentionSweeper constructs the sweeper. keys may be nil when batch
// idempotency is not in use.
func NewRetentionSweeper(history HistoryPurger, offers OfferPurger, customers CustomerPurger, keys KeyPurger, historyWindow, offerWindow, orphanAge, keyTTL time.Duration, logger *slog.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		history:       history,
		offers:        offers,
		customers:     customers,
		keys:          keys,
		historyWindow: historyWindow,
		offerWindow:   offerWindow,
		orphanAge:     orphanAge,
		keyTTL:        keyTTL,
		logger:        logger,
	}
}

// RetentionResult summarises one retention run.
type RetentionResult struct {
	HistoryPurged    int64 `json:"history_purged"`
	OffersPurged     int64 `json:"offers_purged"`
	CustomersRemoved int64 `json:"customers_removed"`
}

// Sweep runs one retention pass against the given reference time.
func (s *RetentionSweeper) Sweep(ctx context.Context, now time.Time) (RetentionResult, error) {
	var result RetentionResult

	purged, err := s.history.PurgeOlderThan(ctx, now.Add(-s.historyWindow))
	if err != nil {
		return result, fmt.Errorf("sweeper: purge history: %w", err)
	}
	result.HistoryPurged = purged

	offers, err := s.offers.DeleteAged(ctx, now.Add(-s.offerWindow))
	if err != nil {
		return result, fmt.Errorf("sweeper: purge offers: %w", err)
	}
	result.OffersPurged = offers

	customers, err := s.customers.DeleteOrphans(ctx, now.Add(-s.orphanAge))
	if err != nil {
		return result, fmt.Errorf("sweeper: purge customers: %w", err)
	}
	result.CustomersRemoved = customers

	if s.keys != nil && s.keyTTL > 0 {
		if err := s.keys.Cleanup(ctx, s.keyTTL); err != nil {
			return result, fmt.Errorf("sweeper: purge idempotency keys: %w", err)
		}
	}

	if s.logger != nil {
		s.logger.Info("retention sweep complete",
			slog.Int64("history_purged", result.HistoryPurged),
			slog.Int64("offers_purged", result.OffersPurged),
			slog.Int64("customers_removed", result.CustomersRemoved),
		)
	}
	return result, nil
}
