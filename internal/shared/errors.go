package shared

import "errors"

var (
	// ErrNotFound indicates a referenced customer or offer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateIdentifier indicates an upsert would leave two customers
	// sharing a populated identifier.
	ErrDuplicateIdentifier = errors.New("duplicate customer identifier")
	// ErrInvalidInput indicates a malformed identifier, date, or enum value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrJourneyLocked indicates an attempt to mutate a journey-locked offer
	// outside the continuation path. It signals a logic bug or a race and is
	// never silently ignored.
	ErrJourneyLocked = errors.New("journey lock violation")
)
