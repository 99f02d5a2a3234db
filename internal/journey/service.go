package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/offercdp/offercdp/internal/shared"
)

// Service answers "what is the latest journey status for this LAN" with a
// short-lived redis cache in front of the events table. Terminal outcomes are
// immutable, so they cache for much longer than ongoing ones.
type Service struct {
	repo        Repository
	cache       *redis.Client
	ongoingTTL  time.Duration
	terminalTTL time.Duration
}

// NewService builds a Service. cache may be nil, in which case every lookup
// hits the events table.
func NewService(repo Repository, cache *redis.Client) *Service {
	return &Service{
		repo:        repo,
		cache:       cache,
		ongoingTTL:  2 * time.Minute,
		terminalTTL: 12 * time.Hour,
	}
}

func cacheKey(lan string) string {
	return fmt.Sprintf("journey:%s:outcome", lan)
}

// LatestStatus returns the most recent known status for a LAN. An unknown LAN
// is reported as an ongoing journey: absence of events must never release the
// journey lock.
func (s *Service) LatestStatus(ctx context.Context, lan string) (Status, error) {
	if lan == "" {
		return Status{}, fmt.Errorf("%w: lan required", shared.ErrInvalidInput)
	}
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey(lan)).Result(); err == nil {
			outcome := Outcome(cached)
			if outcome.Valid() {
				return Status{LAN: lan, Outcome: outcome, Terminal: outcome.Terminal()}, nil
			}
		}
	}

	event, err := s.repo.LatestByLAN(ctx, lan)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Status{LAN: lan, Outcome: OutcomeOngoing, Terminal: false}, nil
		}
		return Status{}, fmt.Errorf("journey: latest status: %w", err)
	}

	status := Status{LAN: lan, Outcome: event.Outcome, Terminal: event.Outcome.Terminal()}
	if s.cache != nil {
		ttl := s.ongoingTTL
		if status.Terminal {
			ttl = s.terminalTTL
		}
		_ = s.cache.Set(ctx, cacheKey(lan), string(event.Outcome), ttl).Err()
	}
	return status, nil
}

// RecordEvent appends a journey status event and refreshes the cache.
func (s *Service) RecordEvent(ctx context.Context, e Event) (int64, error) {
	if e.LAN == "" {
		return 0, fmt.Errorf("%w: lan required", shared.ErrInvalidInput)
	}
	if !e.Outcome.Valid() {
		return 0, fmt.Errorf("%w: unknown journey outcome %q", shared.ErrInvalidInput, e.Outcome)
	}
	if e.ReportedAt.IsZero() {
		e.ReportedAt = time.Now()
	}
	id, err := s.repo.InsertEvent(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("journey: record event: %w", err)
	}
	if s.cache != nil {
		ttl := s.ongoingTTL
		if e.Outcome.Terminal() {
			ttl = s.terminalTTL
		}
		_ = s.cache.Set(ctx, cacheKey(e.LAN), string(e.Outcome), ttl).Err()
	}
	return id, nil
}
