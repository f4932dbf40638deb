/*
errors.go - Centralized error types for the referral engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Storage implementations map their driver errors onto these sentinels
  so the engine and API never inspect driver-specific errors.

ERROR CATEGORIES:
  1. Input errors - rejected before any write
  2. Graph errors - invitation chain problems (fail the whole batch)
  3. Batch errors - idempotency and lifecycle violations
  4. Store errors - persistence-level failures

USAGE:
  if errors.Is(err, referral.ErrCycleDetected) {
      // flag graph for manual repair
  }

SEE ALSO:
  - resolver.go: Raises graph errors
  - engine.go: Raises input and batch errors
  - audit.go: Raises lifecycle errors
*/
package referral

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when the earned amount is not positive.
	// Rejected before any write.
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrUnsupportedCurrency is returned for a currency the engine does not
	// distribute. Rejected before any write.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrUserNotFound is returned when the source user does not exist.
	// No batch record is created in this case.
	ErrUserNotFound = errors.New("user not found")

	// ErrCycleDetected is returned when the invitation graph contains a
	// cycle. The batch is marked failed and no credits are issued; the
	// graph needs manual repair.
	ErrCycleDetected = errors.New("invitation graph cycle detected")

	// ErrLevelOutOfRange is returned for commission lookups outside [1,20].
	ErrLevelOutOfRange = errors.New("commission level out of range")

	// ErrDuplicateBatch is returned by stores when a batch ID already
	// exists. The engine turns this into an idempotent replay, not a
	// caller-visible failure.
	ErrDuplicateBatch = errors.New("duplicate batch id")

	// ErrBatchInFlight is returned when the same batch ID is being
	// processed concurrently and has not reached a terminal state yet.
	// Callers retry after the in-flight run finalizes.
	ErrBatchInFlight = errors.New("batch still processing")

	// ErrBatchAlreadyFinal is returned when finalizing a batch that is
	// already in a terminal state. Terminal records are immutable.
	ErrBatchAlreadyFinal = errors.New("batch already finalized")

	// ErrBatchNotFound is returned when a batch ID has no audit record.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrDuplicateEntry is returned when a ledger row with the same
	// (batch, beneficiary, level) already exists.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrStorageUnavailable is returned for transient persistence
	// failures. Safe to retry with the same batch ID.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CycleError reports where the invitation chain closed on itself.
type CycleError struct {
	SourceUserID UserID
	RepeatedCode InviteCode
	AtLevel      int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("invitation cycle for source %s: code %s repeats at level %d",
		e.SourceUserID, e.RepeatedCode, e.AtLevel)
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// CreditError reports a single ancestor credit failure.
type CreditError struct {
	BatchID BatchID
	UserID  UserID
	Level   int
	Err     error
}

func (e *CreditError) Error() string {
	return fmt.Sprintf("credit failed for %s at level %d (batch %s): %v",
		e.UserID, e.Level, e.BatchID, e.Err)
}

func (e *CreditError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry with the
// same batch ID.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrBatchInFlight)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnsupportedCurrency) ||
		errors.Is(err, ErrLevelOutOfRange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}
