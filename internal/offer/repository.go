package offer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/offercdp/offercdp/internal/history"
	"github.com/offercdp/offercdp/internal/platform/db"
	"github.com/offercdp/offercdp/internal/shared"
)

// Store is the persistence surface the precedence engine and sweepers work
// against. WithTx re-binds the store to a transaction; LockCustomer takes the
// per-customer row lock that serializes competing writers.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
	LockCustomer(ctx context.Context, customerID uuid.UUID) error
	Get(ctx context.Context, id string) (*Offer, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Offer, error)
	ListActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]Offer, error)
	ListExpiryCandidates(ctx context.Context, now time.Time, afterID string, limit int) ([]Offer, error)
	Create(ctx context.Context, o Offer) error
	Update(ctx context.Context, o Offer) error
	UpdateStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error
	InsertHistory(ctx context.Context, e history.Entry) error
	DeleteAged(ctx context.Context, cutoff time.Time) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type store struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed store.
func NewStore(pool *pgxpool.Pool) Store {
	return &store{db: pool, pool: pool}
}

func (s *store) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &store{db: tx, pool: s.pool})
	})
}

func (s *store) LockCustomer(ctx context.Context, customerID uuid.UUID) error {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		return err
	}
	return nil
}

const offerColumns = `id, customer_id, offer_type, product_type, status,
	validity_start, validity_end, journey_started, journey_started_at, lan,
	propensity, source_system, channel, amount::text, roi::text, details,
	created_at, updated_at`

func (s *store) Get(ctx context.Context, id string) (*Offer, error) {
	return scanOffer(s.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

func (s *store) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE customer_id = $1 ORDER BY created_at ASC, id ASC`, customerID)
	if err != nil {
		return nil, err
	}
	return collectOffers(rows)
}

func (s *store) ListActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE customer_id = $1 AND status = $2 ORDER BY created_at ASC, id ASC`, customerID, StatusActive)
	if err != nil {
		return nil, err
	}
	return collectOffers(rows)
}

// ListExpiryCandidates pages through active offers the sweeper may need to
// expire: calendar-lapsed offers with no journey, and all journey-started
// offers (their journey status decides). Keyset pagination on the ULID
// primary key keeps repeated scans cheap.
func (s *store) ListExpiryCandidates(ctx context.Context, now time.Time, afterID string, limit int) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE status = $1
		  AND id > $2
		  AND (journey_started OR validity_end < $3)
		ORDER BY id ASC
		LIMIT $4`, StatusActive, afterID, now, limit)
	if err != nil {
		return nil, err
	}
	return collectOffers(rows)
}

func (s *store) Create(ctx context.Context, o Offer) error {
	details, err := json.Marshal(o.Details)
	if err != nil {
		return fmt.Errorf("offer: marshal details: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO offers (
			id, customer_id, offer_type, product_type, status,
			validity_start, validity_end, journey_started, journey_started_at, lan,
			propensity, source_system, channel, amount, roi, details,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		o.ID, o.CustomerID, o.Type, o.ProductType, o.Status,
		o.ValidityStart, o.ValidityEnd, o.JourneyStarted, optionalTime(o.JourneyStartedAt), optionalText(o.LAN),
		optionalText(o.Propensity), o.SourceSystem, o.Channel, o.Amount.String(), o.ROI.String(), details,
		o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (s *store) Update(ctx context.Context, o Offer) error {
	details, err := json.Marshal(o.Details)
	if err != nil {
		return fmt.Errorf("offer: marshal details: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE offers SET
			validity_start = $2, validity_end = $3, propensity = $4,
			amount = $5, roi = $6, details = $7, updated_at = $8
		WHERE id = $1`,
		o.ID, o.ValidityStart, o.ValidityEnd, optionalText(o.Propensity),
		o.Amount.String(), o.ROI.String(), details, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *store) UpdateStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE offers SET status = $2, updated_at = $3 WHERE id = $1`, id, status, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *store) InsertHistory(ctx context.Context, e history.Entry) error {
	snapshot, err := json.Marshal(e.DetailsSnapshot)
	if err != nil {
		return fmt.Errorf("offer: marshal history snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO offer_history (id, offer_id, customer_id, changed_at, old_status, new_status, reason, details_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.OfferID, e.CustomerID, e.ChangedAt, optionalText(e.OldStatus), e.NewStatus, e.Reason, snapshot,
	)
	return err
}

// DeleteAged removes non-active offers whose last update precedes the
// retention cutoff.
func (s *store) DeleteAged(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM offers WHERE status <> $1 AND updated_at < $2`, StatusActive, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectOffers(rows pgx.Rows) ([]Offer, error) {
	defer rows.Close()
	var offers []Offer
	for rows.Next() {
		o, err := scanOfferRow(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

func scanOffer(row pgx.Row) (*Offer, error) {
	o, err := scanOfferRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func scanOfferRow(row pgx.Row) (*Offer, error) {
	var o Offer
	var journeyStartedAt pgtype.Timestamptz
	var lan, propensity pgtype.Text
	var amount, roi string
	var details []byte
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Type, &o.ProductType, &o.Status,
		&o.ValidityStart, &o.ValidityEnd, &o.JourneyStarted, &journeyStartedAt, &lan,
		&propensity, &o.SourceSystem, &o.Channel, &amount, &roi, &details,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if journeyStartedAt.Valid {
		t := journeyStartedAt.Time
		o.JourneyStartedAt = &t
	}
	o.LAN = lan.String
	o.Propensity = propensity.String
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("offer: parse amount: %w", err)
	}
	if o.ROI, err = decimal.NewFromString(roi); err != nil {
		return nil, fmt.Errorf("offer: parse roi: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &o.Details); err != nil {
			return nil, fmt.Errorf("offer: unmarshal details: %w", err)
		}
	}
	return &o, nil
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func optionalTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
