package offer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/offercdp/offercdp/internal/shared"
)

// Type enumerates offer types.
type Type string

const (
	TypeFresh  Type = "FRESH"
	TypeEnrich Type = "ENRICH"
	TypeNewOld Type = "NEW_OLD"
	TypeNewNew Type = "NEW_NEW"
)

// Valid reports enum membership.
func (t Type) Valid() bool {
	switch t {
	case TypeFresh, TypeEnrich, TypeNewOld, TypeNewNew:
		return true
	}
	return false
}

// ProductType enumerates loan product types.
type ProductType string

const (
	ProductProspect     ProductType = "PROSPECT"
	ProductPreapproved  ProductType = "PREAPPROVED"
	ProductEAggregator  ProductType = "E_AGGREGATOR"
	ProductInsta        ProductType = "INSTA"
	ProductTWLoyalty    ProductType = "TW_LOYALTY"
	ProductTopUp        ProductType = "TOP_UP"
	ProductEmployeeLoan ProductType = "EMPLOYEE_LOAN"
)

// Valid reports enum membership.
func (p ProductType) Valid() bool {
	switch p {
	case ProductProspect, ProductPreapproved, ProductEAggregator, ProductInsta,
		ProductTWLoyalty, ProductTopUp, ProductEmployeeLoan:
		return true
	}
	return false
}

// RealTime reports whether the product type originates from a real-time lead
// channel.
func (p ProductType) RealTime() bool {
	return p == ProductEAggregator || p == ProductInsta
}

// realTimeSupersedable lists the product types a real-time offer expires when
// no journey has started on them.
var realTimeSupersedable = map[ProductType]bool{
	ProductPreapproved: true,
	ProductProspect:    true,
	ProductEAggregator: true,
}

// batchOrigin lists product types that arrive via batch feeds or admin
// uploads, Preapproved included (it ships on the Offermart feed). These
// tiers are mutually exclusive per customer.
var batchOrigin = map[ProductType]bool{
	ProductProspect:     true,
	ProductPreapproved:  true,
	ProductTWLoyalty:    true,
	ProductTopUp:        true,
	ProductEmployeeLoan: true,
}

// blockingSet lists the product types whose active presence blocks a new
// batch-origin offer. Real-time and pre-approved offers outrank a fresh batch
// upload, so they sit in the set alongside the batch tiers.
var blockingSet = map[ProductType]bool{
	ProductTWLoyalty:    true,
	ProductTopUp:        true,
	ProductEmployeeLoan: true,
	ProductPreapproved:  true,
	ProductProspect:     true,
	ProductEAggregator:  true,
}

// SameTier reports whether two product types compete for the single active
// slot. All blocking-set members share one batch/pre-approved tier; anything
// else competes only with its own product type.
func SameTier(a, b ProductType) bool {
	if blockingSet[a] && blockingSet[b] {
		return true
	}
	return a == b
}

// Status enumerates offer statuses.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusDuplicate Status = "DUPLICATE"
)

// Valid reports enum membership.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusExpired, StatusDuplicate:
		return true
	}
	return false
}

// Offer is one loan offer extended to a customer.
type Offer struct {
	ID               string          `json:"id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	Type             Type            `json:"offer_type"`
	ProductType      ProductType     `json:"product_type"`
	Status           Status          `json:"status"`
	ValidityStart    time.Time       `json:"validity_start"`
	ValidityEnd      time.Time       `json:"validity_end"`
	JourneyStarted   bool            `json:"journey_started"`
	JourneyStartedAt *time.Time      `json:"journey_started_at,omitempty"`
	LAN              string          `json:"loan_application_number,omitempty"`
	Propensity       string          `json:"propensity,omitempty"`
	SourceSystem     string          `json:"source_system"`
	Channel          string          `json:"channel"`
	Amount           decimal.Decimal `json:"amount"`
	ROI              decimal.Decimal `json:"roi"`
	Details          map[string]any  `json:"details,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Incoming is a pre-validated offer payload from the ingestion boundary.
type Incoming struct {
	Type          Type
	ProductType   ProductType
	ValidityStart time.Time
	ValidityEnd   time.Time
	LAN           string
	Propensity    string
	SourceSystem  string
	Channel       string
	Amount        decimal.Decimal
	ROI           decimal.Decimal
	Details       map[string]any
}

// Validate re-checks enum membership and the validity window. Format checks
// belong upstream; this is the defensive layer.
func (in Incoming) Validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown offer type %q", shared.ErrInvalidInput, in.Type)
	}
	if !in.ProductType.Valid() {
		return fmt.Errorf("%w: unknown product type %q", shared.ErrInvalidInput, in.ProductType)
	}
	if !in.ValidityEnd.IsZero() && !in.ValidityStart.IsZero() && in.ValidityEnd.Before(in.ValidityStart) {
		return fmt.Errorf("%w: validity window ends before it starts", shared.ErrInvalidInput)
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("%w: negative offer amount", shared.ErrInvalidInput)
	}
	return nil
}

// History transition reasons.
const (
	ReasonRealTimeSupersede = "superseded by real-time offer"
	ReasonEnrichSupersede   = "superseded by enrich"
	ReasonValidityElapsed   = "validity window elapsed"
	ReasonJourneyNegative   = "loan application journey ended negatively"
	ReasonLANWindowElapsed  = "loan application validity window elapsed"
)
