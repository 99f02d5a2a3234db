package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// campaignSheet is the sheet name campaign tooling expects.
const campaignSheet = "Campaign"

var campaignHeader = []any{
	"customer_id", "mobile", "ucid", "segments", "propensity_flag",
	"offer_id", "offer_type", "product_type", "validity_end", "amount", "channel",
}

// Workbook renders one page of the campaign feed as an xlsx workbook. The
// campaign tooling consumes spreadsheets, not JSON; this is the same
// projection as Extract in the format that side owns.
func (s *Service) Workbook(ctx context.Context, page, pageSize int) (*excelize.File, error) {
	rows, err := s.Extract(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), campaignSheet); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(campaignSheet, "A1", &campaignHeader); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		values := []any{
			row.CustomerID.String(),
			row.Mobile,
			row.UCID,
			strings.Join(row.Segments, ";"),
			row.PropensityFlag,
			row.OfferID,
			row.OfferType,
			row.ProductType,
			row.ValidityEnd.Format("2006-01-02"),
			row.Amount,
			row.Channel,
		}
		if err := f.SetSheetRow(campaignSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("export: write row %d: %w", i, err)
		}
	}
	return f, nil
}
