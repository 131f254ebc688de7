/*
cp.go - CP ("congés payés") strategies

CP is the paid-vacation type with country-specific variants for France
and Luxembourg. Both share the seniority gate, the usage cutoff computed
from the carry-over pool's expiry, and the balance rule; Luxembourg
tracks the balance in hours instead of days.
*/
package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// CP implements the shared CP rules. Country variants are built by the
// NewCPFR / NewCPLU constructors.
type CP struct {
	country         leave.Country
	annual          decimal.Decimal // annual entitlement, in tracked units
	seniorityMonths int             // minimum months before first use
	hoursPerDay     decimal.Decimal // zero = balance tracked in days
}

// NewCPFR returns the French CP strategy: 25 days per year, tracked in
// days, usable after 6 months of seniority.
func NewCPFR() *CP {
	return &CP{
		country:         leave.CountryFR,
		annual:          decimal.NewFromInt(25),
		seniorityMonths: 6,
	}
}

// NewCPLU returns the Luxembourg CP strategy: 26 days per year tracked
// in hours (8 hours per day), usable after 6 months of seniority.
func NewCPLU() *CP {
	return &CP{
		country:         leave.CountryLU,
		annual:          decimal.NewFromInt(26 * 8),
		seniorityMonths: 6,
		hoursPerDay:     decimal.NewFromInt(8),
	}
}

func (c *CP) TypeName() string { return leave.TypeCP }

func (c *CP) Acquired(asOf time.Time, user *leave.User) decimal.Decimal {
	return proRate(c.annual, user, asOf, 12)
}

func (c *CP) IncrementStep() decimal.Decimal {
	return c.annual.Div(twelve).Round(2)
}

func (c *CP) ConvertDays(days decimal.Decimal) decimal.Decimal {
	if c.hoursPerDay.IsZero() {
		return days
	}
	return days.Mul(c.hoursPerDay)
}

func (c *CP) ValidateRequest(user *leave.User, snapshot leave.PoolSnapshot, in RequestInput) error {
	if user.SeniorityMonths(in.DateFrom) < c.seniorityMonths {
		return leave.Invalid("You need at least %d months of seniority to take CP.", c.seniorityMonths)
	}

	// CP stops being usable past the carry-over pool's expiry.
	if cutoff := c.usageCutoff(snapshot); !cutoff.IsZero() && in.DateTo.After(cutoff) {
		return leave.Invalid("CP can only be used until %s.", cutoff.Format("02/01/2006"))
	}

	return checkBalance(snapshot, c.ConvertDays(in.Days), leave.TypeCP)
}

// usageCutoff derives the yearly boundary from the pool the balance
// expires out of: the restant member when the group is paired, otherwise
// the single pool's end date.
func (c *CP) usageCutoff(snapshot leave.PoolSnapshot) time.Time {
	if e := snapshot.Entry(leave.PoolNameRestant); e != nil {
		return e.DateEnd
	}
	if len(snapshot.Pools) > 0 {
		return snapshot.Pools[0].DateEnd
	}
	return time.Time{}
}
