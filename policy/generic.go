package policy

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// MaxMessageLen bounds the free-text justification for types that
// require one.
const MaxMessageLen = 140

// Generic is the fallback strategy used when no country-specific variant
// exists for a (type, country) pair. It accrues nothing periodically and
// only enforces the balance and, when configured, the justification rule.
type Generic struct {
	Name string

	// RequireMessage demands a non-empty justification of at most
	// MaxMessageLen characters (the Exception type).
	RequireMessage bool

	// SkipBalance disables the balance check for types that are not
	// balance-tracked (e.g. Sickness).
	SkipBalance bool
}

func (g *Generic) TypeName() string { return g.Name }

func (g *Generic) Acquired(asOf time.Time, user *leave.User) decimal.Decimal {
	return decimal.Zero
}

func (g *Generic) IncrementStep() decimal.Decimal { return decimal.Zero }

func (g *Generic) ConvertDays(days decimal.Decimal) decimal.Decimal { return days }

func (g *Generic) ValidateRequest(user *leave.User, snapshot leave.PoolSnapshot, in RequestInput) error {
	if g.RequireMessage {
		msg := strings.TrimSpace(in.Message)
		if msg == "" {
			return leave.Invalid("You must provide a reason for %s leave.", g.Name)
		}
		if len(msg) > MaxMessageLen {
			return leave.Invalid("Your reason must be at most %d characters.", MaxMessageLen)
		}
	}
	if !g.SkipBalance && !snapshot.Empty() {
		if err := checkBalance(snapshot, g.ConvertDays(in.Days), g.Name); err != nil {
			return err
		}
	}
	return nil
}
