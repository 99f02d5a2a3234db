package export

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memExtractRepo struct {
	rows []CampaignRow

	lastLimit  int
	lastOffset int
}

func (r *memExtractRepo) ListCampaignRows(ctx context.Context, limit, offset int) ([]CampaignRow, error) {
	r.lastLimit = limit
	r.lastOffset = offset
	if offset >= len(r.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.rows) {
		end = len(r.rows)
	}
	return r.rows[offset:end], nil
}

func seedRows(n int) []CampaignRow {
	rows := make([]CampaignRow, n)
	for i := range rows {
		rows[i] = CampaignRow{
			CustomerID:  uuid.New(),
			Mobile:      fmt.Sprintf("90000000%02d", i),
			OfferID:     fmt.Sprintf("OFFER-%02d", i),
			OfferType:   "FRESH",
			ProductType: "PROSPECT",
			Channel:     "SMS",
		}
	}
	return rows
}

func TestExtractPages(t *testing.T) {
	repo := &memExtractRepo{rows: seedRows(5)}
	svc := NewService(repo)

	first, err := svc.Extract(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "OFFER-00", first[0].OfferID)

	second, err := svc.Extract(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Equal(t, "OFFER-02", second[0].OfferID)

	last, err := svc.Extract(context.Background(), 3, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)

	empty, err := svc.Extract(context.Background(), 4, 2)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestExtractClampsPaging(t *testing.T) {
	repo := &memExtractRepo{rows: seedRows(1)}
	svc := NewService(repo)

	_, err := svc.Extract(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, defaultPageSize, repo.lastLimit)
	require.Zero(t, repo.lastOffset)

	_, err = svc.Extract(context.Background(), 1, defaultPageSize+1)
	require.NoError(t, err)
	require.Equal(t, defaultPageSize, repo.lastLimit)
}
