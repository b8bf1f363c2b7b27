package paper

import "fmt"

// ValidationError rejects a malformed order request. Maps to 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError rejects a BUY whose cost exceeds the session
// balance. Carries both sides so the API can show the shortfall.
type InsufficientBalanceError struct {
	Available float64
	Required  float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %.2f, required %.2f", e.Available, e.Required)
}

// QuoteUnavailableError means no fill price could be obtained for the
// instrument. Retryable; maps to 503.
type QuoteUnavailableError struct {
	Instrument string
	Err        error
}

func (e *QuoteUnavailableError) Error() string {
	return fmt.Sprintf("no quote for %s: %v", e.Instrument, e.Err)
}

func (e *QuoteUnavailableError) Unwrap() error { return e.Err }

// NotFoundError maps to 404.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
