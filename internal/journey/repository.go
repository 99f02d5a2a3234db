package journey

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offercdp/offercdp/internal/shared"
)

// Repository persists journey status events.
type Repository interface {
	InsertEvent(ctx context.Context, e Event) (int64, error)
	LatestByLAN(ctx context.Context, lan string) (*Event, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) InsertEvent(ctx context.Context, e Event) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO journey_events (lan, outcome, stage, reported_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		e.LAN, string(e.Outcome), e.Stage, e.ReportedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) LatestByLAN(ctx context.Context, lan string) (*Event, error) {
	var e Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, lan, outcome, stage, reported_at
		FROM journey_events
		WHERE lan = $1
		ORDER BY reported_at DESC, id DESC
		LIMIT 1`, lan,
	).Scan(&e.ID, &e.LAN, &e.Outcome, &e.Stage, &e.ReportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
