/*
Package leave provides the core domain model for the leave engine.

PURPOSE:
  This package contains the entities shared by every other package:
  users, vacation types, balance pools, user balances, leave requests
  and their audit history. It holds no business logic beyond small
  invariant helpers; the ledger, policy, request and jobs packages
  operate on these types through the store interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: an employee with a country, a role and a manager
  - VacationType: a kind of leave, restricted per country and role
  - Pool: a time-boxed allotment bucket of a vacation type for a country
  - UserPool: one user's running balance inside one pool
  - Request: a leave request moving through the approval state machine
  - RequestHistory: append-only audit trail of request transitions

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every balance quantity, never float
  2. Auditability: balances move only through recorded increments
  3. Immutability: history rows and balance snapshots are never edited

SEE ALSO:
  - store.go: persistence contracts for these entities
  - errors.go: the error taxonomy shared across packages
  - snapshot.go: the versioned balance snapshot stored on requests
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// USERS
// =============================================================================

type Country string

const (
	CountryFR Country = "fr"
	CountryLU Country = "lu"
	CountryUS Country = "us"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// User is an employee. When the deployment sources users from an identity
// directory the directory adapter fills these fields; the core never looks
// past them.
type User struct {
	ID          string
	Login       string
	Firstname   string
	Lastname    string
	Email       string
	Country     Country
	Role        Role
	ManagerID   string
	ArrivalDate time.Time
}

// SeniorityMonths returns full months elapsed since the user's arrival.
func (u *User) SeniorityMonths(asOf time.Time) int {
	if u.ArrivalDate.IsZero() || asOf.Before(u.ArrivalDate) {
		return 0
	}
	months := (asOf.Year()-u.ArrivalDate.Year())*12 + int(asOf.Month()) - int(u.ArrivalDate.Month())
	if asOf.Day() < u.ArrivalDate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// =============================================================================
// VACATION TYPES
// =============================================================================

// VacationType describes one kind of leave. Which accrual and validation
// rules apply to it is decided by the policy registry, keyed on
// (Name, user country). Immutable after creation except for country
// applicability edits by an administrator.
type VacationType struct {
	Name       string
	Countries  []Country // countries where the type exists
	Visibility []Role    // empty = visible to every role
}

func (vt *VacationType) AvailableIn(c Country) bool {
	for _, cc := range vt.Countries {
		if cc == c {
			return true
		}
	}
	return false
}

func (vt *VacationType) VisibleTo(r Role) bool {
	if len(vt.Visibility) == 0 {
		return true
	}
	for _, rr := range vt.Visibility {
		if rr == r {
			return true
		}
	}
	return false
}

// Well-known vacation type names.
const (
	TypeCP            = "CP"
	TypeRTT           = "RTT"
	TypeCompensatoire = "Compensatoire"
	TypeRecovery      = "Recovery"
	TypeSickness      = "Sickness"
	TypeException     = "Exception"
)

// =============================================================================
// POOLS - Time-boxed allotment buckets
// =============================================================================

type PoolStatus string

const (
	PoolActive   PoolStatus = "active"
	PoolInactive PoolStatus = "inactive"
	PoolExpired  PoolStatus = "expired"
)

// Pool names for the paired acquis/restant cycle.
const (
	PoolNameAcquis  = "acquis"  // currently accruing
	PoolNameRestant = "restant" // carried over from the previous cycle
)

// Pool identifies a ledger bucket: an allotment of one vacation type for
// one country over [DateStart, DateEnd). Paired acquis/restant pools share
// a PoolGroup id and roll over together.
//
// Invariant: DateStart < DateEnd. At most one active pool exists per
// (vacation type, country, pool group or none) at any time; rollover
// atomically expires the old pool and activates a freshly cloned one.
type Pool struct {
	ID                string
	Name              string // e.g. "acquis", "restant", "default"
	Alias             string
	DateStart         time.Time
	DateEnd           time.Time // half-open accrual window
	Status            PoolStatus
	VacationType      string
	Country           Country
	PoolGroup         string // empty for ungrouped pools
	DateLastIncrement time.Time
}

func (p *Pool) Ended(asOf time.Time) bool { return !asOf.Before(p.DateEnd) }

// IncrementedThisMonth reports whether the monthly accrual step has
// already been applied within the calendar month of asOf.
func (p *Pool) IncrementedThisMonth(asOf time.Time) bool {
	return p.DateLastIncrement.Year() == asOf.Year() && p.DateLastIncrement.Month() == asOf.Month()
}

// =============================================================================
// USER POOLS - Per-user running balances
// =============================================================================

// UserPool is one user's balance within one pool. Amount is a running
// balance adjusted only through increments; the ledger never sets it
// directly and never drives it negative itself (usage is validated
// against the available balance before a request is created).
type UserPool struct {
	ID     string
	UserID string
	PoolID string
	Amount decimal.Decimal
}

// PoolEntry is the append-only audit record for one balance increment.
// Source is a traceability label such as "heartbeat" or "rollover".
type PoolEntry struct {
	ID         string
	UserPoolID string
	Delta      decimal.Decimal
	Source     string
	CreatedAt  time.Time
}

// =============================================================================
// REQUESTS
// =============================================================================

type RequestStatus string

const (
	StatusPending         RequestStatus = "PENDING"
	StatusAcceptedManager RequestStatus = "ACCEPTED_MANAGER"
	StatusDenied          RequestStatus = "DENIED"
	StatusApprovedAdmin   RequestStatus = "APPROVED_ADMIN"
	StatusCanceled        RequestStatus = "CANCELED"
	StatusError           RequestStatus = "ERROR"
)

// Terminal reports whether no further user-driven transition exists.
// APPROVED_ADMIN is quasi-terminal: it still awaits its notification
// side effect, and an admin may cancel it.
func (s RequestStatus) Terminal() bool {
	return s == StatusDenied || s == StatusCanceled
}

// HalfDay tags a fractional (0.5 day) request with its half of the day.
type HalfDay string

const (
	FullDay   HalfDay = ""
	HalfDayAM HalfDay = "AM"
	HalfDayPM HalfDay = "PM"
)

// Request is a leave request. It is created by submission (validated
// against the policy engine) and mutated only by the approval state
// machine.
//
// Invariant: Notified is reset to false on every status transition and
// only a notification worker may set it to true, and only after it has
// durably performed the side effect for the current status.
type Request struct {
	ID       string
	UserID   string
	DateFrom time.Time
	DateTo   time.Time
	Days     decimal.Decimal // may be fractional: 0.5 for a half day
	Label    HalfDay
	Type     string // vacation type name
	Status   RequestStatus
	Message  string // free-text reason, required for some types
	Reason   string // denial reason
	Notified bool

	LastActionUserID string
	PoolStatus       PoolSnapshot // balance state at submission, for audit/export
	ICSURL           string       // external calendar entry once synced

	// Side-effect failure annotations, kept separate so a mail success
	// is not undone by a later calendar failure.
	NotifyError   string
	CalendarError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether the closed intervals [DateFrom, DateTo] of the
// two requests intersect. All four interval cases are covered by the
// single comparison: containment either direction and partial overlap on
// either edge.
func (r *Request) Overlaps(other *Request) bool {
	return !r.DateFrom.After(other.DateTo) && !other.DateFrom.After(r.DateTo)
}

// SingleDay reports whether the request spans exactly one calendar day.
func (r *Request) SingleDay() bool {
	y1, m1, d1 := r.DateFrom.Date()
	y2, m2, d2 := r.DateTo.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// =============================================================================
// REQUEST HISTORY - Append-only audit trail
// =============================================================================

// RequestHistory records one state transition. Rows are never mutated or
// deleted.
type RequestHistory struct {
	ID         string
	RequestID  string
	PrevStatus RequestStatus
	NewStatus  RequestStatus
	ActorID    string
	At         time.Time
	PoolStatus PoolSnapshot
	Message    string
	Reason     string
	Automatic  bool // set by the auto-accept path
}
