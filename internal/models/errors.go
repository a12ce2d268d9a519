package models

import "fmt"

// ValidationError reports malformed caller input. Field identifies the
// offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a lookup for an entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Entity, e.ID)
}

// InsufficientQuantityError reports a sell exceeding the held quantity.
type InsufficientQuantityError struct {
	Held      float64
	Requested float64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("sell quantity %.4f exceeds held quantity %.4f", e.Requested, e.Held)
}

// QuoteUnavailableError reports that no tradeable price could be obtained.
// Distinct from indicator unavailability: a trade must never proceed at an
// invented price.
type QuoteUnavailableError struct {
	Symbol string
	Market Market
}

func (e *QuoteUnavailableError) Error() string {
	return fmt.Sprintf("no tradeable price available for %s.%s", e.Symbol, e.Market)
}
