package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/offercdp/offercdp/internal/shared"
)

// ParseUpload converts an uploaded batch file into records. Offermart drops
// feeds as spreadsheets; admin uploads arrive as csv. The first row is the
// header and names are matched case-insensitively with spaces collapsed to
// underscores.
func ParseUpload(filename string, data []byte) ([]Record, error) {
	rows, err := tabularRows(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: upload has no data rows", shared.ErrInvalidInput)
	}

	header := normalizeHeader(rows[0])
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}

	records := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec, err := rowToRecord(index, row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", shared.ErrInvalidInput, n+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func tabularRows(filename string, data []byte) ([][]string, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".xlsx"), strings.HasSuffix(strings.ToLower(filename), ".xls"):
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.GetRows(f.GetSheetName(0))
	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		var rows [][]string
		for {
			row, err := reader.Read()
			if err == io.EOF {
				return rows, nil
			}
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	default:
		return nil, fmt.Errorf("unsupported file type %q", filename)
	}
}

func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		hn := strings.TrimSpace(h)
		hn = strings.ToLower(hn)
		hn = strings.ReplaceAll(hn, " ", "_")
		out[i] = hn
	}
	return out
}

func rowToRecord(index map[string]int, row []string) (Record, error) {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	start, err := parseDate(cell("validity_start"))
	if err != nil {
		return Record{}, fmt.Errorf("validity_start: %v", err)
	}
	end, err := parseDate(cell("validity_end"))
	if err != nil {
		return Record{}, fmt.Errorf("validity_end: %v", err)
	}
	amount, err := parseDecimal(cell("amount"))
	if err != nil {
		return Record{}, fmt.Errorf("amount: %v", err)
	}
	roi, err := parseDecimal(cell("roi"))
	if err != nil {
		return Record{}, fmt.Errorf("roi: %v", err)
	}

	return Record{
		Identifiers: RecordIdentifiers{
			Mobile:         cell("mobile"),
			NationalID:     cell("national_id"),
			NationalIDRef:  cell("national_id_ref"),
			UCID:           cell("ucid"),
			PriorAppNumber: cell("prior_app_number"),
		},
		Offer: RecordOffer{
			Type:          strings.ToUpper(cell("offer_type")),
			ProductType:   strings.ToUpper(cell("product_type")),
			ValidityStart: start,
			ValidityEnd:   end,
			LAN:           cell("loan_application_number"),
			Propensity:    cell("propensity"),
			SourceSystem:  cell("source_system"),
			Channel:       cell("channel"),
			Amount:        amount,
			ROI:           roi,
		},
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "01-02-06", "2006/01/02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
}
