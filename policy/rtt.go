package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// RTT is the French working-time-reduction day. It exists in no other
// country, accrues monthly and has no seniority gate.
type RTT struct {
	annual decimal.Decimal
}

func NewRTT() *RTT {
	return &RTT{annual: decimal.NewFromInt(10)}
}

func (r *RTT) TypeName() string { return leave.TypeRTT }

func (r *RTT) Acquired(asOf time.Time, user *leave.User) decimal.Decimal {
	return proRate(r.annual, user, asOf, 12)
}

func (r *RTT) IncrementStep() decimal.Decimal {
	return r.annual.Div(twelve).Round(2)
}

func (r *RTT) ConvertDays(days decimal.Decimal) decimal.Decimal { return days }

func (r *RTT) ValidateRequest(user *leave.User, snapshot leave.PoolSnapshot, in RequestInput) error {
	// RTT does not carry over: a request past the accruing pool's end
	// date would consume days that no longer exist.
	if len(snapshot.Pools) > 0 {
		end := snapshot.Pools[0].DateEnd
		if in.DateTo.After(end) {
			return leave.Invalid("RTT can only be used until %s.", end.Format("02/01/2006"))
		}
	}
	return checkBalance(snapshot, in.Days, leave.TypeRTT)
}
