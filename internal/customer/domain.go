package customer

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents one real-world loan prospect. Each populated identifier
// is globally unique across customers.
type Customer struct {
	ID             uuid.UUID      `json:"id"`
	Mobile         string         `json:"mobile,omitempty"`
	NationalID     string         `json:"national_id,omitempty"`
	NationalIDRef  string         `json:"national_id_ref,omitempty"`
	UCID           string         `json:"ucid,omitempty"`
	PriorAppNumber string         `json:"prior_app_number,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	Segments       []string       `json:"segments,omitempty"`
	PropensityFlag string         `json:"propensity_flag,omitempty"`
	DoNotDisturb   bool           `json:"do_not_disturb"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Identifiers carries the lookup keys an ingestion record may supply.
type Identifiers struct {
	Mobile         string
	NationalID     string
	NationalIDRef  string
	UCID           string
	PriorAppNumber string
}

// Empty reports whether no identifier is populated.
func (i Identifiers) Empty() bool {
	return i.Mobile == "" && i.NationalID == "" && i.NationalIDRef == "" &&
		i.UCID == "" && i.PriorAppNumber == ""
}

// IdentifierField names one identifier column.
type IdentifierField string

const (
	FieldMobile         IdentifierField = "mobile"
	FieldNationalID     IdentifierField = "national_id"
	FieldNationalIDRef  IdentifierField = "national_id_ref"
	FieldUCID           IdentifierField = "ucid"
	FieldPriorAppNumber IdentifierField = "prior_app_number"
)

// matchPriority is the fixed lookup order used by the matcher. The order is a
// policy choice, not intrinsic to the domain: identifiers are globally unique,
// so at most one row can match per field, but inconsistent upstream data could
// point different fields at different rows. First match wins; conflicting
// candidates are never merged.
var matchPriority = []IdentifierField{
	FieldMobile,
	FieldNationalID,
	FieldNationalIDRef,
	FieldUCID,
	FieldPriorAppNumber,
}

// Value returns the identifier value for the given field.
func (i Identifiers) Value(field IdentifierField) string {
	switch field {
	case FieldMobile:
		return i.Mobile
	case FieldNationalID:
		return i.NationalID
	case FieldNationalIDRef:
		return i.NationalIDRef
	case FieldUCID:
		return i.UCID
	case FieldPriorAppNumber:
		return i.PriorAppNumber
	}
	return ""
}
