package journey

import "time"

// Outcome enumerates loan application journey outcomes reported by the
// origination system's event feed.
type Outcome string

const (
	OutcomeOngoing   Outcome = "ONGOING"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeExpired   Outcome = "EXPIRED"
	OutcomeWithdrawn Outcome = "WITHDRAWN"
	OutcomeDisbursed Outcome = "DISBURSED"
)

// Terminal reports whether the outcome ends the journey.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeRejected, OutcomeExpired, OutcomeWithdrawn, OutcomeDisbursed:
		return true
	}
	return false
}

// Negative reports whether the outcome ends the journey unsuccessfully. Only
// negative terminal outcomes release the journey lock for expiry.
func (o Outcome) Negative() bool {
	switch o {
	case OutcomeRejected, OutcomeExpired, OutcomeWithdrawn:
		return true
	}
	return false
}

// Valid reports enum membership.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeOngoing, OutcomeRejected, OutcomeExpired, OutcomeWithdrawn, OutcomeDisbursed:
		return true
	}
	return false
}

// Event is one journey status report for a loan application number.
type Event struct {
	ID         int64     `json:"id"`
	LAN        string    `json:"lan"`
	Outcome    Outcome   `json:"outcome"`
	Stage      string    `json:"stage,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// Status is the latest known state of a journey.
type Status struct {
	LAN      string  `json:"lan"`
	Outcome  Outcome `json:"outcome"`
	Terminal bool    `json:"terminal"`
}
