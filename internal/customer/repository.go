package customer

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

	"github.com/offercdp/offercdp/internal/platform/db"
	"github.com/offercdp/offercdp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for customers.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetByIdentifier(ctx context.Context, field IdentifierField, value string) (*Customer, error)
	Create(ctx context.Context, c Customer) error
	Update(ctx context.Context, c Customer) error
	DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const customerColumns = `id, mobile, national_id, national_id_ref, ucid, prior_app_number,
	attributes, segments, propensity_flag, do_not_disturb, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// GetByIdentifier looks up a customer by one identifier column. field is one
// of the IdentifierField constants, never caller-supplied text.
func (r *repository) GetByIdentifier(ctx context.Context, field IdentifierField, value string) (*Customer, error) {
	if value == "" {
		return nil, shared.ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM customers WHERE %s = $1`, customerColumns, field)
	return scanCustomer(r.db.QueryRow(ctx, query, value))
}

func (r *repository) Create(ctx context.Context, c Customer) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return fmt.Errorf("customer: marshal attributes: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO customers (
			id, mobile, national_id, national_id_ref, ucid, prior_app_number,
			attributes, segments, propensity_flag, do_not_disturb, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID,
		optionalText(c.Mobile),
		optionalText(c.NationalID),
		optionalText(c.NationalIDRef),
		optionalText(c.UCID),
		optionalText(c.PriorAppNumber),
		attrs,
		c.Segments,
		optionalText(c.PropensityFlag),
		c.DoNotDisturb,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return fmt.Errorf("customer: marshal attributes: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE customers SET
			mobile = $2, national_id = $3, national_id_ref = $4, ucid = $5,
			prior_app_number = $6, attributes = $7, segments = $8,
			propensity_flag = $9, do_not_disturb = $10, updated_at = $11
		WHERE id = $1`,
		c.ID,
		optionalText(c.Mobile),
		optionalText(c.NationalID),
		optionalText(c.NationalIDRef),
		optionalText(c.UCID),
		optionalText(c.PriorAppNumber),
		attrs,
		c.Segments,
		optionalText(c.PropensityFlag),
		c.DoNotDisturb,
		c.UpdatedAt,
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteOrphans removes customers with no remaining offers and no activity
// since the cutoff. Returns the number of rows deleted.
func (r *repository) DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM customers c
		WHERE c.updated_at < $1
		  AND NOT EXISTS (SELECT 1 FROM offers o WHERE o.customer_id = c.id)`,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	var mobile, natID, natIDRef, ucid, prior, propensity pgtype.Text
	var attrs []byte
	err := row.Scan(
		&c.ID, &mobile, &natID, &natIDRef, &ucid, &prior,
		&attrs, &c.Segments, &propensity, &c.DoNotDisturb, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	c.Mobile = mobile.String
	c.NationalID = natID.String
	c.NationalIDRef = natIDRef.String
	c.UCID = ucid.String
	c.PriorAppNumber = prior.String
	c.PropensityFlag = propensity.String
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, fmt.Errorf("customer: unmarshal attributes: %w", err)
		}
	}
	return &c, nil
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", shared.ErrDuplicateIdentifier, pgErr.ConstraintName)
	}
	return err
}
