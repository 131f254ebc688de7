package policy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func frUser(arrivedMonthsAgo int, asOf time.Time) *leave.User {
	return &leave.User{
		ID:          "u-1",
		Firstname:   "Jeanne",
		Lastname:    "Doe",
		Country:     leave.CountryFR,
		Role:        leave.RoleUser,
		ArrivalDate: asOf.AddDate(0, -arrivedMonthsAgo, 0),
	}
}

func snapshotWith(entries ...leave.PoolSnapshotEntry) leave.PoolSnapshot {
	return leave.PoolSnapshot{Version: leave.SnapshotVersion, Pools: entries}
}

func cpEntry(pool string, amount int64, start, end time.Time) leave.PoolSnapshotEntry {
	return leave.PoolSnapshotEntry{
		PoolName:     pool,
		VacationType: leave.TypeCP,
		Amount:       decimal.NewFromInt(amount),
		DateStart:    start,
		DateEnd:      end,
	}
}

var (
	asOf      = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	poolStart = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	poolEnd   = time.Date(2026, time.May, 31, 0, 0, 0, 0, time.UTC)
)

func input(days float64, from, to time.Time) policy.RequestInput {
	return policy.RequestInput{
		Days:     decimal.NewFromFloat(days),
		DateFrom: from,
		DateTo:   to,
	}
}

// =============================================================================
// CP SENIORITY GATE
// =============================================================================

func TestCP_FR_SevenMonthsSeniority_Allowed(t *testing.T) {
	// GIVEN: A French employee with seven months of seniority and balance
	// WHEN: Requesting two days of CP
	// THEN: The request passes validation

	cp := policy.NewCPFR()
	user := frUser(7, asOf)
	snap := snapshotWith(cpEntry(leave.PoolNameAcquis, 10, poolStart, poolEnd))

	err := cp.ValidateRequest(user, snap, input(2, asOf, asOf.AddDate(0, 0, 1)))
	assert.NoError(t, err)
}

func TestCP_FR_TwoMonthsSeniority_Rejected(t *testing.T) {
	// GIVEN: A French employee with only two months of seniority
	// WHEN: Requesting CP
	// THEN: Rejected with the seniority message

	cp := policy.NewCPFR()
	user := frUser(2, asOf)
	snap := snapshotWith(cpEntry(leave.PoolNameAcquis, 10, poolStart, poolEnd))

	err := cp.ValidateRequest(user, snap, input(1, asOf, asOf))
	require.Error(t, err)
	assert.Equal(t, "You need at least 6 months of seniority to take CP.", err.Error())
	assert.ErrorIs(t, err, leave.ErrValidation)
}

// =============================================================================
// BALANCE RULES
// =============================================================================

func TestCP_FR_NoBalance_Rejected(t *testing.T) {
	// GIVEN: A CP balance of zero
	// WHEN: Requesting one day
	// THEN: Rejected with the empty-balance message

	cp := policy.NewCPFR()
	user := frUser(12, asOf)
	snap := snapshotWith(cpEntry(leave.PoolNameAcquis, 0, poolStart, poolEnd))

	err := cp.ValidateRequest(user, snap, input(1, asOf, asOf))
	require.Error(t, err)
	assert.Equal(t, "No CP left to take.", err.Error())
}

func TestCP_FR_OverBalance_Rejected(t *testing.T) {
	// GIVEN: Two CP days left
	// WHEN: Requesting five days
	// THEN: Rejected naming the remaining amount

	cp := policy.NewCPFR()
	user := frUser(12, asOf)
	snap := snapshotWith(cpEntry(leave.PoolNameAcquis, 2, poolStart, poolEnd))

	err := cp.ValidateRequest(user, snap, input(5, asOf, asOf.AddDate(0, 0, 6)))
	require.Error(t, err)
	assert.Equal(t, "You only have 2 CP to use.", err.Error())
}

func TestCP_FR_PastCarryoverExpiry_Rejected(t *testing.T) {
	// GIVEN: A paired acquis/restant balance expiring 31/05/2026
	// WHEN: Requesting days ending after that cutoff
	// THEN: Rejected with the cutoff in the message

	cp := policy.NewCPFR()
	user := frUser(24, asOf)
	snap := snapshotWith(
		cpEntry(leave.PoolNameAcquis, 10, poolStart, poolEnd.AddDate(1, 0, 0)),
		cpEntry(leave.PoolNameRestant, 5, poolStart, poolEnd),
	)

	after := poolEnd.AddDate(0, 0, 3)
	err := cp.ValidateRequest(user, snap, input(2, after, after.AddDate(0, 0, 1)))
	require.Error(t, err)
	assert.Equal(t, "CP can only be used until 31/05/2026.", err.Error())
}

func TestCP_LU_TracksHours(t *testing.T) {
	// GIVEN: A Luxembourg balance of 16 hours
	// WHEN: Requesting three days (24 hours)
	// THEN: Rejected because the converted amount exceeds the balance

	cp := policy.NewCPLU()
	user := &leave.User{ID: "u-2", Country: leave.CountryLU, ArrivalDate: asOf.AddDate(-2, 0, 0)}
	snap := snapshotWith(cpEntry(leave.PoolNameAcquis, 16, poolStart, poolEnd))

	err := cp.ValidateRequest(user, snap, input(3, asOf, asOf.AddDate(0, 0, 2)))
	require.Error(t, err)
	assert.Equal(t, "You only have 16 CP to use.", err.Error())

	// Two days (16 hours) fit exactly.
	assert.NoError(t, cp.ValidateRequest(user, snap, input(2, asOf, asOf.AddDate(0, 0, 1))))
}

// =============================================================================
// RTT
// =============================================================================

func TestRTT_NoCarryOver_PastPoolEnd_Rejected(t *testing.T) {
	// GIVEN: An RTT pool ending 31/05/2026
	// WHEN: Requesting days past the end
	// THEN: Rejected with the pool end date

	rtt := policy.NewRTT()
	user := frUser(12, asOf)
	snap := snapshotWith(leave.PoolSnapshotEntry{
		PoolName:     "default",
		VacationType: leave.TypeRTT,
		Amount:       decimal.NewFromInt(4),
		DateStart:    poolStart,
		DateEnd:      poolEnd,
	})

	after := poolEnd.AddDate(0, 0, 1)
	err := rtt.ValidateRequest(user, snap, input(1, after, after))
	require.Error(t, err)
	assert.Equal(t, "RTT can only be used until 31/05/2026.", err.Error())
}

func TestRTT_MonthlyStep(t *testing.T) {
	// GIVEN: The French RTT policy (10 days per year)
	// WHEN: Computing the monthly accrual step
	// THEN: 10/12 rounded to two decimals

	rtt := policy.NewRTT()
	assert.True(t, rtt.IncrementStep().Equal(decimal.RequireFromString("0.83")),
		"got %s", rtt.IncrementStep())
}

// =============================================================================
// COMPENSATOIRE
// =============================================================================

func compSnapshot(amount int64) leave.PoolSnapshot {
	return snapshotWith(leave.PoolSnapshotEntry{
		PoolName:     "default",
		VacationType: leave.TypeCompensatoire,
		Amount:       decimal.NewFromInt(amount),
		DateStart:    time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:      time.Date(2027, time.February, 1, 0, 0, 0, 0, time.UTC),
	})
}

func TestCompensatoire_HalfDay_Rejected(t *testing.T) {
	// GIVEN: A compensatory day balance
	// WHEN: Requesting half a day
	// THEN: Rejected: only exactly one full day is allowed

	comp := policy.NewCompensatoire()
	user := &leave.User{ID: "u-3", Country: leave.CountryLU}

	in := input(0.5, asOf, asOf)
	in.Label = leave.HalfDayAM
	err := comp.ValidateRequest(user, compSnapshot(2), in)
	require.Error(t, err)
	assert.Equal(t, "You can only use 1 Compensatory holiday at a time, for a full day.", err.Error())
}

func TestCompensatoire_TwoDays_Rejected(t *testing.T) {
	comp := policy.NewCompensatoire()
	user := &leave.User{ID: "u-3", Country: leave.CountryLU}

	err := comp.ValidateRequest(user, compSnapshot(2), input(2, asOf, asOf.AddDate(0, 0, 1)))
	require.Error(t, err)
	assert.Equal(t, "You can only use 1 Compensatory holiday at a time, for a full day.", err.Error())
}

func TestCompensatoire_BeforeEarned_Rejected(t *testing.T) {
	// GIVEN: A compensatory day earned on 01/02/2026
	// WHEN: Requesting a date before it was earned
	// THEN: Rejected with the earliest usable date

	comp := policy.NewCompensatoire()
	user := &leave.User{ID: "u-3", Country: leave.CountryLU}

	before := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	err := comp.ValidateRequest(user, compSnapshot(1), input(1, before, before))
	require.Error(t, err)
	assert.Equal(t, "You cannot take a Compensatory holiday before 01/02/2026.", err.Error())
}

func TestCompensatoire_OutsideWindow_Rejected(t *testing.T) {
	// GIVEN: A compensatory day earned on 01/02/2026 with a 3 month window
	// WHEN: Requesting a date in June
	// THEN: Rejected with the window in the message

	comp := policy.NewCompensatoire()
	user := &leave.User{ID: "u-3", Country: leave.CountryLU}

	late := time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC)
	err := comp.ValidateRequest(user, compSnapshot(1), input(1, late, late))
	require.Error(t, err)
	assert.Equal(t, "You can only take a Compensatory holiday within 3 months of 01/02/2026.", err.Error())
}

func TestCompensatoire_WithinWindow_Allowed(t *testing.T) {
	comp := policy.NewCompensatoire()
	user := &leave.User{ID: "u-3", Country: leave.CountryLU}

	day := time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, comp.ValidateRequest(user, compSnapshot(1), input(1, day, day)))
}

// =============================================================================
// GENERIC STRATEGY
// =============================================================================

func TestException_RequiresMessage(t *testing.T) {
	// GIVEN: The Exception type requiring a justification
	// WHEN: Submitting without a message
	// THEN: Rejected

	g := &policy.Generic{Name: leave.TypeException, RequireMessage: true}
	user := frUser(12, asOf)

	err := g.ValidateRequest(user, leave.PoolSnapshot{}, input(1, asOf, asOf))
	require.Error(t, err)
	assert.Equal(t, "You must provide a reason for Exception leave.", err.Error())

	in := input(1, asOf, asOf)
	in.Message = "Moving day"
	assert.NoError(t, g.ValidateRequest(user, leave.PoolSnapshot{}, in))
}

func TestException_MessageTooLong_Rejected(t *testing.T) {
	g := &policy.Generic{Name: leave.TypeException, RequireMessage: true}
	user := frUser(12, asOf)

	in := input(1, asOf, asOf)
	for len(in.Message) <= policy.MaxMessageLen {
		in.Message += "xxxxxxxxxx"
	}
	err := g.ValidateRequest(user, leave.PoolSnapshot{}, in)
	require.Error(t, err)
	assert.Equal(t, "Your reason must be at most 140 characters.", err.Error())
}

func TestSickness_SkipsBalance(t *testing.T) {
	// GIVEN: Sickness is not balance-tracked
	// WHEN: Requesting with a zero balance
	// THEN: Allowed

	g := &policy.Generic{Name: leave.TypeSickness, SkipBalance: true}
	user := frUser(1, asOf)
	snap := snapshotWith(leave.PoolSnapshotEntry{
		PoolName: "default", VacationType: leave.TypeSickness, Amount: decimal.Zero,
	})

	assert.NoError(t, g.ValidateRequest(user, snap, input(3, asOf, asOf.AddDate(0, 0, 2))))
}

// =============================================================================
// REGISTRY AND PRO-RATING
// =============================================================================

func TestRegistry_FallbackChain(t *testing.T) {
	// GIVEN: The default registry
	// WHEN: Looking up (CP, us) and an unknown type
	// THEN: CP falls back to a generic for an unregistered country;
	//       unknown types resolve to a permissive generic

	r := policy.DefaultRegistry()

	assert.Equal(t, leave.TypeCP, r.Lookup(leave.TypeCP, leave.CountryFR).TypeName())
	assert.Equal(t, leave.TypeCP, r.Lookup(leave.TypeCP, leave.CountryUS).TypeName())
	assert.Equal(t, "Sabbatical", r.Lookup("Sabbatical", leave.CountryFR).TypeName())
}

func TestProRate_RoundsUpToHalf(t *testing.T) {
	// GIVEN: 25 annual days, an employee who arrived three months ago
	// WHEN: Computing the acquired entitlement
	// THEN: 25*3/12 = 6.25, rounded up to 6.5

	cp := policy.NewCPFR()
	user := frUser(3, asOf)

	got := cp.Acquired(asOf, user)
	assert.True(t, got.Equal(decimal.NewFromFloat(6.5)), "got %s", got)
}

func TestProRate_FullYear_FullEntitlement(t *testing.T) {
	cp := policy.NewCPFR()
	user := frUser(18, asOf)

	got := cp.Acquired(asOf, user)
	assert.True(t, got.Equal(decimal.NewFromInt(25)), "got %s", got)
}
