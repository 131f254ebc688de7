/*
store.go - Persistence contracts for the leave engine

PURPOSE:
  Defines the interface between domain logic and the database. The store
  is the single source of truth and the only coordination point between
  the batch jobs, the poller and the workers. Implementations live in
  store/sqlite (production) and store/memory (tests).

TRANSACTIONS:
  TxStore.WithTx runs a closure against a transactional view of the
  store. Every multi-entity mutation (state transitions, pool-group
  rollover) must run inside one transaction so no caller observes a
  partial state.

APPEND-ONLY CONTRACT:
  pool entries and request history have no update or delete operations.
  Corrections happen through new rows.

CLAIMING:
  ClaimNotification performs the conditional update "set notified=true
  where id=? and notified=false" and reports whether the row was won.
  Workers claim before performing an externally visible side effect so
  two concurrent workers cannot both send the same mail.
*/
package leave

import (
	"context"
	"time"
)

// =============================================================================
// USER STORE
// =============================================================================

type UserStore interface {
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// =============================================================================
// VACATION TYPE STORE
// =============================================================================

type VacationTypeStore interface {
	SaveVacationType(ctx context.Context, vt VacationType) error
	GetVacationType(ctx context.Context, name string) (*VacationType, error)
	ListVacationTypes(ctx context.Context) ([]VacationType, error)
}

// =============================================================================
// POOL STORE
// =============================================================================

type PoolStore interface {
	SavePool(ctx context.Context, p Pool) error
	GetPool(ctx context.Context, id string) (*Pool, error)

	// PoolsByStatus returns pools with the given status. Read-only.
	PoolsByStatus(ctx context.Context, status PoolStatus) ([]Pool, error)

	// PoolsByGroup returns the members of a pool group. Read-only.
	PoolsByGroup(ctx context.Context, group string) ([]Pool, error)

	// ActivePools returns active pools for a (vacation type, country).
	ActivePools(ctx context.Context, vacationType string, country Country) ([]Pool, error)
}

// =============================================================================
// USER POOL STORE
// =============================================================================

type UserPoolStore interface {
	SaveUserPool(ctx context.Context, up UserPool) error
	GetUserPool(ctx context.Context, userID, poolID string) (*UserPool, error)
	UserPoolsByPool(ctx context.Context, poolID string) ([]UserPool, error)
	UserPoolsByUser(ctx context.Context, userID string) ([]UserPool, error)

	// IncrementUserPool adjusts the running balance and appends the
	// matching PoolEntry audit row in the same statement scope. The
	// balance is never set directly.
	IncrementUserPool(ctx context.Context, entry PoolEntry) error

	// PoolEntries returns the audit trail for one user pool. Read-only.
	PoolEntries(ctx context.Context, userPoolID string) ([]PoolEntry, error)
}

// =============================================================================
// REQUEST STORE
// =============================================================================

type RequestStore interface {
	SaveRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)

	RequestsByUser(ctx context.Context, userID string) ([]Request, error)
	RequestsByManager(ctx context.Context, managerID string) ([]Request, error)
	RequestsByStatus(ctx context.Context, status RequestStatus) ([]Request, error)

	// RequestsInRange returns the user's requests whose closed interval
	// intersects [from, to], regardless of status. Conflict semantics
	// (canceled exclusion, half-day labels) live in the request package.
	RequestsInRange(ctx context.Context, userID string, from, to time.Time) ([]Request, error)

	// RequestsApprovedInMonth returns APPROVED_ADMIN requests whose
	// DateFrom falls in the given month, for the CSV export.
	RequestsApprovedInMonth(ctx context.Context, year int, month time.Month) ([]Request, error)

	// ClaimNotification atomically sets notified=true if it was false.
	// Returns true if this caller won the claim.
	ClaimNotification(ctx context.Context, requestID string) (bool, error)

	// ReleaseNotification resets notified=false and records the failure
	// annotation so the next poll retries.
	ReleaseNotification(ctx context.Context, requestID, notifyError string) error
}

// =============================================================================
// REQUEST HISTORY STORE - Append-only
// =============================================================================

type HistoryStore interface {
	AppendHistory(ctx context.Context, h RequestHistory) error
	HistoryByRequest(ctx context.Context, requestID string) ([]RequestHistory, error)
}

// =============================================================================
// REMINDER STORE - Deduplication records for reminder workers
// =============================================================================

// ReminderKind distinguishes the reminder workers' dedup records.
type ReminderKind string

const (
	ReminderPendingRequest ReminderKind = "pending_request"
	ReminderTrialPeriod    ReminderKind = "trial_period"
)

// Reminder is a persisted send record. Pending-request reminders are
// deduplicated per day; trial-period reminders once per (user, milestone).
type Reminder struct {
	ID        string
	Kind      ReminderKind
	UserID    string
	RequestID string // empty for trial-period reminders
	Milestone string // e.g. "trial_6m", empty for request reminders
	SentAt    time.Time
}

type ReminderStore interface {
	SaveReminder(ctx context.Context, r Reminder) error
	LastReminder(ctx context.Context, kind ReminderKind, requestID string) (*Reminder, error)
	HasMilestoneReminder(ctx context.Context, userID, milestone string) (bool, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store aggregates every persistence contract the engine needs.
type Store interface {
	UserStore
	VacationTypeStore
	PoolStore
	UserPoolStore
	RequestStore
	HistoryStore
	ReminderStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
