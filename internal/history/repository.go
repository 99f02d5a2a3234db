package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides read and retention access to the offer history trail.
// Inserts happen through the offer store so they share the transaction that
// performs the status change.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByOffer returns the transition trail for one offer in chronological
// order.
func (r *Repository) ListByOffer(ctx context.Context, offerID string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, offer_id, customer_id, changed_at, old_status, new_status, reason, details_snapshot
		FROM offer_history
		WHERE offer_id = $1
		ORDER BY id ASC`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var oldStatus pgtype.Text
		var snapshot []byte
		if err := rows.Scan(&e.ID, &e.OfferID, &e.CustomerID, &e.ChangedAt, &oldStatus, &e.NewStatus, &e.Reason, &snapshot); err != nil {
			return nil, err
		}
		e.OldStatus = oldStatus.String
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &e.DetailsSnapshot); err != nil {
				return nil, fmt.Errorf("history: unmarshal snapshot: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeOlderThan deletes entries whose change time precedes the cutoff.
func (r *Repository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM offer_history WHERE changed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
