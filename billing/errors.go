/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Service packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Computation errors - Record shapes the calculators cannot interpret
  2. Input errors - Missing or malformed query parameters
  3. Lookup errors - Records the data layer could not find

MISSING MONEY IS NOT AN ERROR:
  Absent monthly payments or paid amounts default to zero. Only shapes that
  would silently produce nonsense (a contract ending before it starts)
  raise a ComputationError.

USAGE:
    if errors.Is(err, billing.ErrComputation) {
        // 422 to the client
    }

SEE ALSO:
  - types.go: Contract.Validate raises ComputationError
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrComputation marks record shapes the engine refuses to compute over.
	ErrComputation = errors.New("computation error")

	// ErrWindowRequired is returned when neither a month count nor explicit
	// dates were supplied. Callers must choose a default window themselves.
	ErrWindowRequired = errors.New("date window required: supply month count or start/end dates")

	// ErrInvalidInput is returned for malformed parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ComputationError describes an invalid record shape.
type ComputationError struct {
	Field  string
	Reason string
	Value  string
}

func (e *ComputationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("computation error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("computation error: %s: %s (%s)", e.Field, e.Reason, e.Value)
}

func (e *ComputationError) Unwrap() error {
	return ErrComputation
}

// InputError names the offending parameter.
type InputError struct {
	Param  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrWindowRequired)
}

// IsComputation returns true if the stored records cannot be computed over.
func IsComputation(err error) bool {
	return errors.Is(err, ErrComputation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
