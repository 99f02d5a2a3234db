package ingest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/offercdp/offercdp/internal/customer"
	"github.com/offercdp/offercdp/internal/offer"
)

// Record is the normalized ingestion payload shared by the real-time lead
// APIs, the Offermart batch feed, and admin uploads. Upstream parsers are
// responsible for format checks; validator tags here are the boundary's own
// shape check, and the core re-validates enum membership defensively.
type Record struct {
	Identifiers RecordIdentifiers `json:"identifiers" validate:"required"`
	Attributes  map[string]any    `json:"customer_attributes,omitempty"`
	Offer       RecordOffer       `json:"offer" validate:"required"`
}

// RecordIdentifiers carries the customer lookup keys of one record.
type RecordIdentifiers struct {
	Mobile         string `json:"mobile,omitempty" validate:"omitempty,min=10,max=15"`
	NationalID     string `json:"national_id,omitempty" validate:"omitempty,len=10"`
	NationalIDRef  string `json:"national_id_ref,omitempty" validate:"omitempty,min=4,max=16"`
	UCID           string `json:"ucid,omitempty" validate:"omitempty,max=64"`
	PriorAppNumber string `json:"prior_app_number,omitempty" validate:"omitempty,max=32"`
}

// RecordOffer carries the offer payload of one record.
type RecordOffer struct {
	Type          string          `json:"offer_type" validate:"required"`
	ProductType   string          `json:"product_type" validate:"required"`
	ValidityStart time.Time       `json:"validity_start" validate:"required"`
	ValidityEnd   time.Time       `json:"validity_end" validate:"required"`
	LAN           string          `json:"loan_application_number,omitempty" validate:"omitempty,max=32"`
	Propensity    string          `json:"propensity,omitempty"`
	SourceSystem  string          `json:"source_system" validate:"required"`
	Channel       string          `json:"channel" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	ROI           decimal.Decimal `json:"roi"`
	Details       map[string]any  `json:"details,omitempty"`
}

func (r Record) identifiers() customer.Identifiers {
	return customer.Identifiers{
		Mobile:         r.Identifiers.Mobile,
		NationalID:     r.Identifiers.NationalID,
		NationalIDRef:  r.Identifiers.NationalIDRef,
		UCID:           r.Identifiers.UCID,
		PriorAppNumber: r.Identifiers.PriorAppNumber,
	}
}

func (r Record) incomingOffer() offer.Incoming {
	return offer.Incoming{
		Type:          offer.Type(r.Offer.Type),
		ProductType:   offer.ProductType(r.Offer.ProductType),
		ValidityStart: r.Offer.ValidityStart,
		ValidityEnd:   r.Offer.ValidityEnd,
		LAN:           r.Offer.LAN,
		Propensity:    r.Offer.Propensity,
		SourceSystem:  r.Offer.SourceSystem,
		Channel:       r.Offer.Channel,
		Amount:        r.Offer.Amount,
		ROI:           r.Offer.ROI,
		Details:       r.Offer.Details,
	}
}
