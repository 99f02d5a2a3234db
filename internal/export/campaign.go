package export

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CampaignRow is one line of the campaign-tooling extract: an active,
// contactable customer joined with their current active offer. The downstream
// column schema is a reporting contract owned by the campaign integration;
// this projection is the feed, not the file.
type CampaignRow struct {
	CustomerID     uuid.UUID `json:"customer_id"`
	Mobile         string    `json:"mobile,omitempty"`
	UCID           string    `json:"ucid,omitempty"`
	Segments       []string  `json:"segments,omitempty"`
	PropensityFlag string    `json:"propensity_flag,omitempty"`
	OfferID        string    `json:"offer_id"`
	OfferType      string    `json:"offer_type"`
	ProductType    string    `json:"product_type"`
	ValidityEnd    time.Time `json:"validity_end"`
	Amount         string    `json:"amount"`
	Channel        string    `json:"channel"`
}

// Repository reads the extract projection.
type Repository interface {
	ListCampaignRows(ctx context.Context, limit, offset int) ([]CampaignRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ListCampaignRows returns active offers of contactable customers. DND
// customers are excluded here, not by the precedence engine.
func (r *repository) ListCampaignRows(ctx context.Context, limit, offset int) ([]CampaignRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.mobile, c.ucid, c.segments, c.propensity_flag,
		       o.id, o.offer_type, o.product_type, o.validity_end, o.amount::text, o.channel
		FROM customers c
		JOIN offers o ON o.customer_id = c.id AND o.status = 'ACTIVE'
		WHERE NOT c.do_not_disturb
		ORDER BY c.id, o.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CampaignRow
	for rows.Next() {
		var row CampaignRow
		var mobile, ucid, propensity pgtype.Text
		if err := rows.Scan(
			&row.CustomerID, &mobile, &ucid, &row.Segments, &propensity,
			&row.OfferID, &row.OfferType, &row.ProductType, &row.ValidityEnd, &row.Amount, &row.Channel,
		); err != nil {
			return nil, err
		}
		row.Mobile = mobile.String
		row.UCID = ucid.String
		row.PropensityFlag = propensity.String
		out = append(out, row)
	}
	return out, rows.Err()
}

// Service pages the extract for the export collaborator.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

const defaultPageSize = 1000

// Extract returns one page of the campaign feed.
func (s *Service) Extract(ctx context.Context, page, pageSize int) ([]CampaignRow, error) {
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return s.repo.ListCampaignRows(ctx, pageSize, (page-1)*pageSize)
}
