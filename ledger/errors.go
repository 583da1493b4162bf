/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Workflow packages wrap these with context via fmt.Errorf("...: %w").

ERROR CATEGORIES:
  1. Validation errors - malformed input (date, sku, ean, qty); reported,
     never partially applied
  2. Reference errors  - unknown SKU, unknown kind
  3. Store errors      - persistence failures

NOT ERRORS:
  A repeated idempotency key is an Outcome (already processed), and
  insufficient classifier data is a status. Neither surfaces here.

SEE ALSO:
  - store.go: Uses these errors
  - inventory/service.go: Wraps these errors with workflow context
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownSKU is returned when an operation references a SKU with no
	// master record.
	ErrUnknownSKU = errors.New("unknown sku")

	// ErrUnknownKind is returned for an event kind outside the closed set.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrDuplicateIdempotencyKey is returned by stores when a log key is
	// written twice. Workflows turn it into OutcomeAlreadyProcessed.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrNotFound is returned by lookups that find nothing.
	ErrNotFound = errors.New("not found")

	// ErrTxRequired is returned when a write path is given a store that
	// cannot run atomic batches.
	ErrTxRequired = errors.New("operation requires a transactional store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnknownSKUError names the missing SKU.
type UnknownSKUError struct {
	SKU string
}

func (e *UnknownSKUError) Error() string {
	return fmt.Sprintf("unknown sku %q", e.SKU)
}

func (e *UnknownSKUError) Unwrap() error { return ErrUnknownSKU }

// UnknownKindError names the rejected kind string.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown event kind %q", e.Kind)
}

func (e *UnknownKindError) Unwrap() error { return ErrUnknownKind }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownSKU) || errors.Is(err, ErrNotFound)
}
