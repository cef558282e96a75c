/*
errors.go - Centralized error taxonomy for the dues engine

PURPOSE:
  All error types in one place. The transport layer maps these onto HTTP
  statuses without inspecting message strings.

ERROR CATEGORIES:
  1. Validation errors - malformed or out-of-range input, never retried
  2. Conflict errors   - state-machine or uniqueness violations
  3. Not-found errors  - missing referenced records
  4. Transient errors  - storage failures during the accrual batch

NEEDS-CONFIRMATION IS NOT HERE:
  "Needs confirmation" (overpayment, cancel-with-payments) is a result
  variant on the operation outcome, not an error. See ledger.go.

USAGE:
  if dues.IsConflict(err) {
      // 409
  }

SEE ALSO:
  - ledger.go:  PaymentOutcome / CancelOutcome result variants
  - api/handlers.go: HTTP status mapping
*/
package dues

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is the root of all state-machine and uniqueness violations.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessing is returned when a second accrual confirm races a
	// running one. The period's own status field is the lock.
	ErrAlreadyProcessing = errors.New("accrual already processing")

	// ErrPeriodClosed is returned when mutating a closed period.
	ErrPeriodClosed = errors.New("period is closed")

	// ErrDuplicateUnitDue is returned when the (period, unit, due type)
	// uniqueness constraint would be violated.
	ErrDuplicateUnitDue = errors.New("unit due already exists for this period")

	// ErrConcurrentModification is returned when optimistic locking on a
	// UnitDue detects that another writer committed first.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrForbidden is returned when the caller's role does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrTransient marks storage/transaction failures during the accrual
	// batch. The period is rolled back to failed, never left half-applied.
	ErrTransient = errors.New("transient storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a specific invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports a state-machine rejection with the observed state.
type ConflictError struct {
	Message string
	Status  string // the state that caused the rejection, when relevant
}

func (e *ConflictError) Error() string {
	if e.Status == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (status: %s)", e.Message, e.Status)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func conflictf(status string, format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...), Status: status}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether the error is due to invalid client input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether the error is a state or uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAlreadyProcessing) ||
		errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrDuplicateUnitDue) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports whether the caller's role was rejected.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsRetryable reports whether the operation might succeed if re-read and
// re-submitted with fresh preconditions.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrTransient)
}
