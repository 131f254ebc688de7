/*
heartbeat.go - Periodic accrual job

PURPOSE:
  The heartbeat keeps the balance ledger moving: it rolls expired pools
  over into their next cycle and applies each type's monthly accrual
  step. It runs on a fixed external schedule (daily is sufficient) and
  every pass is idempotent per run.

TWO INDEPENDENT PASSES over all active pools:
  1. Cycle rollover. An active pool whose end date has passed is cloned
     forward by one year. Paired acquis/restant pools roll over together
     under a fresh group id: every balance on the old acquis moves into
     the new restant, the type's fresh entitlement lands in the new
     acquis, and both old members expire - all inside one transaction so
     no user ever observes a state where balance disappeared. A group
     missing its paired member is a ledger inconsistency: that group's
     rollover aborts loudly and the run continues with the next pool.
  2. Monthly increment. Pools not yet incremented in the current
     calendar month grant every holder the type's step and stamp
     date_last_increment; pools already stamped this month are skipped,
     so re-running the job within a month changes nothing.

SEE ALSO:
  - ledger/pools.go: clone, expire and increment primitives
  - policy package: per-type increment steps
*/
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// Heartbeat performs rollover and monthly accrual.
type Heartbeat struct {
	Store    leave.TxStore
	Policies *policy.Registry
	Now      func() time.Time
}

func NewHeartbeat(store leave.TxStore, policies *policy.Registry) *Heartbeat {
	return &Heartbeat{Store: store, Policies: policies, Now: time.Now}
}

// Run executes both passes. Errors from individual pools or groups are
// collected so one broken group never starves the others.
func (h *Heartbeat) Run(ctx context.Context) error {
	var errs []error
	if err := h.rolloverPass(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.incrementPass(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// =============================================================================
// PASS 1 - CYCLE ROLLOVER
// =============================================================================

func (h *Heartbeat) rolloverPass(ctx context.Context) error {
	now := h.Now()
	active, err := h.Store.PoolsByStatus(ctx, leave.PoolActive)
	if err != nil {
		return fmt.Errorf("list active pools: %w", err)
	}

	var errs []error
	processed := 0
	seenGroups := make(map[string]bool)

	for _, pool := range active {
		if !pool.Ended(now) {
			continue
		}
		if pool.PoolGroup == "" {
			if err := h.rolloverStandalone(ctx, pool); err != nil {
				errs = append(errs, err)
				continue
			}
			processed++
			continue
		}
		if seenGroups[pool.PoolGroup] {
			continue
		}
		seenGroups[pool.PoolGroup] = true
		if err := h.rolloverGroup(ctx, pool.PoolGroup); err != nil {
			errs = append(errs, err)
			continue
		}
		processed++
	}

	if processed > 0 {
		log.Printf("[Heartbeat] rollover: %d pool(s) rolled over", processed)
	}
	return errors.Join(errs...)
}

// rolloverStandalone clones an ungrouped pool forward one cycle and
// grants the fresh entitlement directly.
func (h *Heartbeat) rolloverStandalone(ctx context.Context, pool leave.Pool) error {
	strategy := h.Policies.Lookup(pool.VacationType, pool.Country)
	step := strategy.IncrementStep()

	return h.Store.WithTx(ctx, func(tx leave.Store) error {
		next := ledger.Clone(pool, ledger.CloneOverrides{ShiftMonths: 12})
		if err := tx.SavePool(ctx, next); err != nil {
			return err
		}

		holders, err := tx.UserPoolsByPool(ctx, pool.ID)
		if err != nil {
			return err
		}
		for _, up := range holders {
			target, err := ledger.EnsureUserPool(ctx, tx, up.UserID, next.ID)
			if err != nil {
				return err
			}
			if !step.IsZero() {
				if err := ledger.Increment(ctx, tx, target.ID, step, "rollover"); err != nil {
					return err
				}
			}
		}
		return ledger.Expire(ctx, tx, pool.ID)
	})
}

// rolloverGroup rolls a paired acquis/restant group over under a new
// group id. The whole group's moves run inside one transaction.
func (h *Heartbeat) rolloverGroup(ctx context.Context, group string) error {
	members, err := h.Store.PoolsByGroup(ctx, group)
	if err != nil {
		return fmt.Errorf("list pool group %s: %w", group, err)
	}

	var acquis, restant *leave.Pool
	for i := range members {
		if members[i].Status != leave.PoolActive {
			continue
		}
		switch members[i].Name {
		case leave.PoolNameAcquis:
			acquis = &members[i]
		case leave.PoolNameRestant:
			restant = &members[i]
		}
	}
	if acquis == nil || restant == nil {
		return &leave.LedgerInconsistencyError{
			PoolGroup: group,
			Detail:    "active acquis/restant pair incomplete",
		}
	}

	strategy := h.Policies.Lookup(acquis.VacationType, acquis.Country)
	step := strategy.IncrementStep()
	newGroup := uuid.NewString()

	return h.Store.WithTx(ctx, func(tx leave.Store) error {
		newAcquis := ledger.Clone(*acquis, ledger.CloneOverrides{ShiftMonths: 12, PoolGroup: newGroup})
		newRestant := ledger.Clone(*restant, ledger.CloneOverrides{ShiftMonths: 12, PoolGroup: newGroup})
		if err := tx.SavePool(ctx, newAcquis); err != nil {
			return err
		}
		if err := tx.SavePool(ctx, newRestant); err != nil {
			return err
		}

		// Move every balance on the old acquis into the new restant and
		// grant the fresh entitlement into the new acquis.
		holders, err := tx.UserPoolsByPool(ctx, acquis.ID)
		if err != nil {
			return err
		}
		for _, up := range holders {
			carried, err := ledger.EnsureUserPool(ctx, tx, up.UserID, newRestant.ID)
			if err != nil {
				return err
			}
			if !up.Amount.IsZero() {
				if err := ledger.Increment(ctx, tx, carried.ID, up.Amount, "rollover"); err != nil {
					return err
				}
			}
			fresh, err := ledger.EnsureUserPool(ctx, tx, up.UserID, newAcquis.ID)
			if err != nil {
				return err
			}
			if !step.IsZero() {
				if err := ledger.Increment(ctx, tx, fresh.ID, step, "rollover"); err != nil {
					return err
				}
			}
		}

		if err := ledger.Expire(ctx, tx, acquis.ID); err != nil {
			return err
		}
		return ledger.Expire(ctx, tx, restant.ID)
	})
}

// =============================================================================
// PASS 2 - MONTHLY INCREMENT
// =============================================================================

func (h *Heartbeat) incrementPass(ctx context.Context) error {
	now := h.Now()
	active, err := h.Store.PoolsByStatus(ctx, leave.PoolActive)
	if err != nil {
		return fmt.Errorf("list active pools: %w", err)
	}

	var errs []error
	processed, skipped := 0, 0

	for _, pool := range active {
		// Carried-over pools never accrue; only the accruing member of
		// a group (and ungrouped pools) takes the monthly step.
		if pool.Name == leave.PoolNameRestant {
			continue
		}
		// Idempotency guard: at most one increment per calendar month.
		if pool.IncrementedThisMonth(now) {
			skipped++
			continue
		}

		strategy := h.Policies.Lookup(pool.VacationType, pool.Country)
		step := strategy.IncrementStep()

		pool := pool
		err := h.Store.WithTx(ctx, func(tx leave.Store) error {
			if !step.IsZero() {
				holders, err := tx.UserPoolsByPool(ctx, pool.ID)
				if err != nil {
					return err
				}
				for _, up := range holders {
					if err := ledger.IncrementMonth(ctx, tx, up.ID, step, true); err != nil {
						return err
					}
				}
			}
			pool.DateLastIncrement = now
			return tx.SavePool(ctx, pool)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("monthly increment for pool %s: %w", pool.ID, err))
			continue
		}
		processed++
	}

	if processed > 0 || skipped > 0 {
		log.Printf("[Heartbeat] monthly increment: %d processed, %d skipped (already done)", processed, skipped)
	}
	return errors.Join(errs...)
}
