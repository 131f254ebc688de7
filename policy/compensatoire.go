package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// Compensatoire is the Luxembourg compensatory holiday earned for worked
// public holidays. It has a rigid shape: exactly one full day at a time,
// taken no earlier than the date it was earned and within a fixed number
// of months after it.
type Compensatoire struct {
	windowMonths int
}

func NewCompensatoire() *Compensatoire {
	return &Compensatoire{windowMonths: 3}
}

func (c *Compensatoire) TypeName() string { return leave.TypeCompensatoire }

// Acquired is always zero: compensatory days are granted ad hoc when a
// holiday is worked, never on a schedule.
func (c *Compensatoire) Acquired(asOf time.Time, user *leave.User) decimal.Decimal {
	return decimal.Zero
}

func (c *Compensatoire) IncrementStep() decimal.Decimal { return decimal.Zero }

func (c *Compensatoire) ConvertDays(days decimal.Decimal) decimal.Decimal { return days }

func (c *Compensatoire) ValidateRequest(user *leave.User, snapshot leave.PoolSnapshot, in RequestInput) error {
	one := decimal.NewFromInt(1)
	if !in.Days.Equal(one) || in.Label != leave.FullDay {
		return leave.Invalid("You can only use 1 Compensatory holiday at a time, for a full day.")
	}

	reference := c.referenceDate(snapshot)
	if !reference.IsZero() {
		if in.DateFrom.Before(reference) {
			return leave.Invalid("You cannot take a Compensatory holiday before %s.", reference.Format("02/01/2006"))
		}
		limit := reference.AddDate(0, c.windowMonths, 0)
		if in.DateTo.After(limit) {
			return leave.Invalid("You can only take a Compensatory holiday within %d months of %s.",
				c.windowMonths, reference.Format("02/01/2006"))
		}
	}

	return checkBalance(snapshot, in.Days, "Compensatory holiday")
}

// referenceDate is the start of the pool the day was earned in.
func (c *Compensatoire) referenceDate(snapshot leave.PoolSnapshot) time.Time {
	if len(snapshot.Pools) > 0 {
		return snapshot.Pools[0].DateStart
	}
	return time.Time{}
}
