/*
Package ledger implements the balance ledger: pool lifecycle operations
(clone, expire) and the only two ways a user balance ever moves
(increment with an audit tag, and the guarded monthly increment).

INVARIANTS:
  1. UserPool.Amount is adjusted only through Increment, never set
  2. Expire is idempotent: expiring an expired pool is a no-op
  3. Paired ledger mutations run in the caller's transaction so no
     intermediate state where balance is lost is ever visible

SEE ALSO:
  - jobs/heartbeat.go: drives rollover and monthly accrual
  - leave/snapshot.go: the snapshot shape built by Snapshot()
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// POOL LIFECYCLE
// =============================================================================

// CloneOverrides are the caller-supplied fields for Clone. Either the
// explicit dates or ShiftMonths is used; explicit dates win.
type CloneOverrides struct {
	DateStart   *time.Time
	DateEnd     *time.Time
	ShiftMonths int    // applied to both dates when explicit dates are absent
	PoolGroup   string // new group id for paired rollover; empty keeps the source's
}

// Clone builds a new active pool from source, copying vacation type,
// country and pool group and applying the overrides. The clone gets a
// fresh id and a zeroed DateLastIncrement.
func Clone(source leave.Pool, ov CloneOverrides) leave.Pool {
	next := source
	next.ID = uuid.NewString()
	next.Status = leave.PoolActive
	next.DateLastIncrement = time.Time{}

	if ov.DateStart != nil {
		next.DateStart = *ov.DateStart
	} else if ov.ShiftMonths != 0 {
		next.DateStart = source.DateStart.AddDate(0, ov.ShiftMonths, 0)
	}
	if ov.DateEnd != nil {
		next.DateEnd = *ov.DateEnd
	} else if ov.ShiftMonths != 0 {
		next.DateEnd = source.DateEnd.AddDate(0, ov.ShiftMonths, 0)
	}
	if ov.PoolGroup != "" {
		next.PoolGroup = ov.PoolGroup
	}
	return next
}

// Expire sets the pool's status to expired. Idempotent.
func Expire(ctx context.Context, s leave.Store, poolID string) error {
	pool, err := s.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.Status == leave.PoolExpired {
		return nil
	}
	pool.Status = leave.PoolExpired
	return s.SavePool(ctx, *pool)
}

// =============================================================================
// BALANCE INCREMENTS
// =============================================================================

// Increment adds amount to the user pool's running balance and records
// the append-only audit entry tagged with source.
func Increment(ctx context.Context, s leave.Store, userPoolID string, amount decimal.Decimal, source string) error {
	return s.IncrementUserPool(ctx, leave.PoolEntry{
		ID:         uuid.NewString(),
		UserPoolID: userPoolID,
		Delta:      amount,
		Source:     source,
		CreatedAt:  time.Now().UTC(),
	})
}

// IncrementMonth applies the monthly accrual step only when needIncrement
// is true. The guard belongs to the caller (the heartbeat checks the
// pool's DateLastIncrement against the current calendar month) so a
// re-run within the same month is a no-op.
func IncrementMonth(ctx context.Context, s leave.Store, userPoolID string, step decimal.Decimal, needIncrement bool) error {
	if !needIncrement {
		return nil
	}
	return Increment(ctx, s, userPoolID, step, "heartbeat")
}

// EnsureUserPool returns the user's balance row for the pool, creating a
// zero balance if none exists yet.
func EnsureUserPool(ctx context.Context, s leave.Store, userID, poolID string) (*leave.UserPool, error) {
	up, err := s.GetUserPool(ctx, userID, poolID)
	if err == nil {
		return up, nil
	}
	if !errors.Is(err, leave.ErrNotFound) {
		return nil, fmt.Errorf("get user pool: %w", err)
	}
	created := leave.UserPool{
		ID:     uuid.NewString(),
		UserID: userID,
		PoolID: poolID,
		Amount: decimal.Zero,
	}
	if err := s.SaveUserPool(ctx, created); err != nil {
		return nil, fmt.Errorf("create user pool: %w", err)
	}
	return &created, nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot captures the user's balance state across the active pools of
// one vacation type. The result is stored on requests at submission time
// and handed to policy strategies for validation.
func Snapshot(ctx context.Context, s leave.Store, userID, vacationType string, country leave.Country, asOf time.Time) (leave.PoolSnapshot, error) {
	pools, err := s.ActivePools(ctx, vacationType, country)
	if err != nil {
		return leave.PoolSnapshot{}, err
	}

	snap := leave.PoolSnapshot{Version: leave.SnapshotVersion, TakenAt: asOf}
	for _, pool := range pools {
		amount := decimal.Zero
		up, err := s.GetUserPool(ctx, userID, pool.ID)
		switch {
		case err == nil:
			amount = up.Amount
		case !errors.Is(err, leave.ErrNotFound):
			// Only a missing row means a zero balance.
			return leave.PoolSnapshot{}, fmt.Errorf("user pool for %s: %w", pool.Name, err)
		}
		snap.Pools = append(snap.Pools, leave.PoolSnapshotEntry{
			PoolName:     pool.Name,
			VacationType: pool.VacationType,
			Amount:       amount,
			DateStart:    pool.DateStart,
			DateEnd:      pool.DateEnd,
		})
	}
	return snap, nil
}
