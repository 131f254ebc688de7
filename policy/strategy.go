/*
Package policy implements the accrual policy engine: per-(vacation type,
country) strategies computing acquisition amounts, eligibility windows
and request validation rules.

PURPOSE:
  A strategy answers four questions for one vacation type in one country:
  - Acquired: total entitlement accrued to date, pro-rated by seniority
  - IncrementStep: the fixed periodic accrual unit used by the heartbeat
  - ConvertDays: unit conversion for types tracked in hours, not days
  - ValidateRequest: the type's eligibility rules for a submission

REGISTRY:
  Strategies are registered at startup in a lookup table keyed by
  (type name, country). Lookup falls back to the type's country-agnostic
  entry, then to a permissive generic strategy, so a type that only has
  country-specific rules in one country still works everywhere else.

VALIDATION MESSAGES:
  Validation errors are user-facing and their wording is part of the
  contract; tests assert the exact strings.

SEE ALSO:
  - cp.go, rtt.go, compensatoire.go: the country-specific strategies
  - generic.go: the fallback strategy
*/
package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// STRATEGY INTERFACE
// =============================================================================

// RequestInput carries the submission fields a strategy validates.
type RequestInput struct {
	Days     decimal.Decimal
	DateFrom time.Time
	DateTo   time.Time
	Label    leave.HalfDay
	Message  string
}

// Strategy is the capability set of one (vacation type, country) policy.
type Strategy interface {
	// TypeName returns the vacation type this strategy governs.
	TypeName() string

	// Acquired returns the total entitlement accrued up to asOf,
	// pro-rated by seniority when the user's arrival date falls within
	// the policy's truncation window.
	Acquired(asOf time.Time, user *leave.User) decimal.Decimal

	// IncrementStep returns the fixed periodic accrual unit applied by
	// the heartbeat's monthly pass.
	IncrementStep() decimal.Decimal

	// ConvertDays converts requested days into the unit the balance is
	// tracked in (identity for day-tracked types).
	ConvertDays(days decimal.Decimal) decimal.Decimal

	// ValidateRequest returns a *leave.ValidationError when the request
	// violates the type's rules, nil otherwise. It never mutates state.
	ValidateRequest(user *leave.User, snapshot leave.PoolSnapshot, in RequestInput) error
}

// =============================================================================
// REGISTRY - (type, country) -> strategy lookup table
// =============================================================================

type registryKey struct {
	typeName string
	country  leave.Country
}

// Registry resolves the strategy for a submission. Register all known
// variants at process start; no hidden global lookup.
type Registry struct {
	strategies map[registryKey]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[registryKey]Strategy)}
}

// Register binds a strategy to (typeName, country). An empty country
// registers the type's country-agnostic fallback.
func (r *Registry) Register(typeName string, country leave.Country, s Strategy) {
	r.strategies[registryKey{typeName: typeName, country: country}] = s
}

// Lookup returns the strategy for (typeName, country), falling back to
// the type's country-agnostic entry, then to a generic strategy.
func (r *Registry) Lookup(typeName string, country leave.Country) Strategy {
	if s, ok := r.strategies[registryKey{typeName: typeName, country: country}]; ok {
		return s
	}
	if s, ok := r.strategies[registryKey{typeName: typeName}]; ok {
		return s
	}
	return &Generic{Name: typeName}
}

// DefaultRegistry registers every known variant: CP has country-specific
// rules for France and Luxembourg, RTT exists only in France, the
// Compensatoire type only in Luxembourg, and Exception requires a
// justification everywhere.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(leave.TypeCP, leave.CountryFR, NewCPFR())
	r.Register(leave.TypeCP, leave.CountryLU, NewCPLU())
	r.Register(leave.TypeRTT, leave.CountryFR, NewRTT())
	r.Register(leave.TypeCompensatoire, leave.CountryLU, NewCompensatoire())
	r.Register(leave.TypeException, "", &Generic{Name: leave.TypeException, RequireMessage: true})
	r.Register(leave.TypeRecovery, "", &Generic{Name: leave.TypeRecovery})
	r.Register(leave.TypeSickness, "", &Generic{Name: leave.TypeSickness, SkipBalance: true})
	return r
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

var (
	two    = decimal.NewFromInt(2)
	twelve = decimal.NewFromInt(12)
)

// proRate linearly scales the annual entitlement by months since arrival
// when the user joined within the truncation window, rounding up to the
// nearest half unit.
func proRate(annual decimal.Decimal, user *leave.User, asOf time.Time, truncationMonths int) decimal.Decimal {
	if user == nil || user.ArrivalDate.IsZero() {
		return annual
	}
	months := leave.MonthsBetween(user.ArrivalDate, asOf)
	if months >= truncationMonths {
		return annual
	}
	scaled := annual.
		Mul(decimal.NewFromInt(int64(months))).
		Div(decimal.NewFromInt(int64(truncationMonths)))
	return scaled.Mul(two).Ceil().Div(two)
}

// checkBalance enforces "cannot request more than remains". typeName is
// interpolated into the user-facing messages verbatim.
func checkBalance(snapshot leave.PoolSnapshot, requested decimal.Decimal, typeName string) error {
	left := snapshot.Total()
	if !left.IsPositive() {
		return leave.Invalid("No %s left to take.", typeName)
	}
	if requested.GreaterThan(left) {
		return leave.Invalid("You only have %s %s to use.", left.String(), typeName)
	}
	return nil
}
