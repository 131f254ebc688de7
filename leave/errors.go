/*
errors.go - Centralized error taxonomy for the leave engine

PURPOSE:
  All shared error types in one place. Validation and conflict errors are
  returned to the caller synchronously and never persisted; notification
  failures are recorded on the request and retried by the next poll;
  ledger inconsistencies are fatal for the pool group concerned.

ERROR CATEGORIES:
  1. Validation errors - submission rejected before any mutation
  2. Conflict errors   - overlap with an existing request
  3. Notification failures - side effect failed after a committed transition
  4. Ledger inconsistencies - rollover invariant broken, never skipped

SEE ALSO:
  - request/service.go: returns validation and conflict errors
  - jobs/workers.go: produces notification failures
  - jobs/heartbeat.go: produces ledger inconsistencies
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks a submission rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an overlap with an existing non-canceled request.
	ErrConflict = errors.New("request conflicts with an existing request")

	// ErrNotification marks a mail or calendar side effect that failed
	// after a committed state transition. Retried by the next poll.
	ErrNotification = errors.New("notification side effect failed")

	// ErrLedgerInconsistency indicates a rollover bug, e.g. a pool group
	// missing its paired member. Fatal for that group's heartbeat run.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")

	// ErrForbidden marks a transition attempted by the wrong actor.
	ErrForbidden = errors.New("actor not allowed to perform this action")

	// ErrInvalidTransition marks a state-machine transition that does not
	// exist from the request's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError is a user-facing submission failure. Message is shown
// verbatim to the submitting user, so exact wording matters.
type ValidationError struct {
	Field   string // optional: which input failed
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError with a formatted message.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError carries the ids of the overlapping requests.
type ConflictError struct {
	RequestID   string
	ConflictIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request overlaps %d existing request(s)", len(e.ConflictIDs))
}
func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotificationFailure records which side effect failed for a request.
// Permanent failures escalate the request to ERROR; retryable ones leave
// notified=false so the next poll retries.
type NotificationFailure struct {
	RequestID string
	Stage     string // "compose", "mail" or "calendar"
	Permanent bool
	Err       error
}

func (e *NotificationFailure) Error() string {
	return fmt.Sprintf("notification failure for request %s at %s stage: %v", e.RequestID, e.Stage, e.Err)
}
func (e *NotificationFailure) Unwrap() error { return ErrNotification }

// LedgerInconsistencyError aborts the heartbeat run for one pool group.
type LedgerInconsistencyError struct {
	PoolGroup string
	Detail    string
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency in pool group %s: %s", e.PoolGroup, e.Detail)
}
func (e *LedgerInconsistencyError) Unwrap() error { return ErrLedgerInconsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true for errors caused by invalid caller input,
// surfaced to the user with their message and never retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsRetryable returns true if the next poll may succeed.
func IsRetryable(err error) bool {
	var nf *NotificationFailure
	if errors.As(err, &nf) {
		return !nf.Permanent
	}
	return false
}
