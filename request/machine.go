/*
machine.go - Approval state machine

The machine is the only writer of Request.Status after creation. Every
transition, inside one store transaction:
  - rewrites the request with the new status and notified=false
  - appends exactly one RequestHistory row carrying the previous and new
    status, the actor, a balance snapshot, and any reason or message

Transition table (actor-gated):
  PENDING          -> ACCEPTED_MANAGER   manager accept
  PENDING          -> APPROVED_ADMIN     admin accept (bypasses manager)
  PENDING          -> DENIED             manager/admin refuse
  ACCEPTED_MANAGER -> APPROVED_ADMIN     admin approve, or auto-accept
                                         after 3 notified days
  ACCEPTED_MANAGER -> DENIED             manager/admin refuse
  PENDING/ACCEPTED_MANAGER -> CANCELED   owner while start date is in the
                                         future; admin at any time, also
                                         from APPROVED_ADMIN
  any non-terminal -> ERROR              worker escalation only
*/
package request

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

// AutoApproveAfter is how long a notified ACCEPTED_MANAGER request waits
// for an admin before the system approves it automatically.
const AutoApproveAfter = 3 * 24 * time.Hour

// Machine performs the status transitions.
type Machine struct {
	Store    leave.TxStore
	Calendar calendar.Calendar // best-effort entry removal on cancel
	Now      func() time.Time
}

func NewMachine(store leave.TxStore, cal calendar.Calendar) *Machine {
	if cal == nil {
		cal = calendar.Disabled{}
	}
	return &Machine{Store: store, Calendar: cal, Now: time.Now}
}

// =============================================================================
// USER-FACING TRANSITIONS
// =============================================================================

// Accept moves a request forward: a manager accepts PENDING, an admin
// approves from either PENDING or ACCEPTED_MANAGER.
func (m *Machine) Accept(ctx context.Context, requestID string, actor *leave.User) (*leave.Request, error) {
	req, owner, err := m.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var next leave.RequestStatus
	switch {
	case actor.Role == leave.RoleAdmin:
		if req.Status != leave.StatusPending && req.Status != leave.StatusAcceptedManager {
			return nil, m.badTransition(req, leave.StatusApprovedAdmin)
		}
		next = leave.StatusApprovedAdmin
	case m.managerOf(actor, owner):
		if req.Status != leave.StatusPending {
			return nil, m.badTransition(req, leave.StatusAcceptedManager)
		}
		next = leave.StatusAcceptedManager
	default:
		return nil, fmt.Errorf("%w: %s cannot accept request %s", leave.ErrForbidden, actor.ID, req.ID)
	}

	return m.transition(ctx, req, owner, next, actor.ID, transitionOpts{})
}

// Refuse denies a PENDING or ACCEPTED_MANAGER request with an optional
// reason shown to the owner.
func (m *Machine) Refuse(ctx context.Context, requestID string, actor *leave.User, reason string) (*leave.Request, error) {
	req, owner, err := m.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role != leave.RoleAdmin && !m.managerOf(actor, owner) {
		return nil, fmt.Errorf("%w: %s cannot refuse request %s", leave.ErrForbidden, actor.ID, req.ID)
	}
	if req.Status != leave.StatusPending && req.Status != leave.StatusAcceptedManager {
		return nil, m.badTransition(req, leave.StatusDenied)
	}
	return m.transition(ctx, req, owner, leave.StatusDenied, actor.ID, transitionOpts{reason: reason})
}

// Cancel withdraws a request. The owner may cancel PENDING or
// ACCEPTED_MANAGER while the start date is still in the future; an admin
// may cancel at any time, including APPROVED_ADMIN. Cancelling a request
// with a synced calendar entry also removes that entry, best-effort.
func (m *Machine) Cancel(ctx context.Context, requestID string, actor *leave.User, calendarURL string) (*leave.Request, error) {
	req, owner, err := m.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.Role == leave.RoleAdmin:
		if req.Status.Terminal() {
			return nil, m.badTransition(req, leave.StatusCanceled)
		}
	case actor.ID == owner.ID:
		if req.Status != leave.StatusPending && req.Status != leave.StatusAcceptedManager {
			return nil, m.badTransition(req, leave.StatusCanceled)
		}
		if !req.DateFrom.After(leave.Day(m.Now())) {
			return nil, leave.Invalid("You can no longer cancel a request that has started.")
		}
	default:
		return nil, fmt.Errorf("%w: %s cannot cancel request %s", leave.ErrForbidden, actor.ID, req.ID)
	}

	canceled, err := m.transition(ctx, req, owner, leave.StatusCanceled, actor.ID, transitionOpts{})
	if err != nil {
		return nil, err
	}

	// Best-effort: a failed removal never blocks the cancellation.
	if req.ICSURL != "" {
		if _, err := m.Calendar.RemoveEntry(ctx, calendarURL, req.ICSURL); err != nil {
			log.Printf("[Machine] calendar entry removal failed for request %s: %v", req.ID, err)
		}
	}
	return canceled, nil
}

// =============================================================================
// SYSTEM TRANSITIONS
// =============================================================================

// SystemActorID tags transitions performed by the engine itself.
const SystemActorID = "system"

// AutoApprove promotes a notified ACCEPTED_MANAGER request that has
// waited at least AutoApproveAfter with no admin action. The history row
// is tagged automatic so the notification content can say so.
func (m *Machine) AutoApprove(ctx context.Context, requestID string) (*leave.Request, error) {
	req, owner, err := m.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != leave.StatusAcceptedManager || !req.Notified {
		return nil, m.badTransition(req, leave.StatusApprovedAdmin)
	}
	if m.Now().Sub(req.UpdatedAt) < AutoApproveAfter {
		return nil, fmt.Errorf("%w: request %s not yet eligible for auto-approval", leave.ErrInvalidTransition, req.ID)
	}
	return m.transition(ctx, req, owner, leave.StatusApprovedAdmin, SystemActorID, transitionOpts{automatic: true})
}

// MarkError escalates a request whose side effect failed unrecoverably.
// Only workers call this; the status requires operator intervention.
func (m *Machine) MarkError(ctx context.Context, requestID, detail string) (*leave.Request, error) {
	req, owner, err := m.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, m.badTransition(req, leave.StatusError)
	}
	return m.transition(ctx, req, owner, leave.StatusError, SystemActorID, transitionOpts{reason: detail})
}

// =============================================================================
// INTERNALS
// =============================================================================

type transitionOpts struct {
	reason    string
	automatic bool
}

func (m *Machine) transition(ctx context.Context, req *leave.Request, owner *leave.User, next leave.RequestStatus, actorID string, opts transitionOpts) (*leave.Request, error) {
	now := m.Now()

	snapshot, err := ledger.Snapshot(ctx, m.Store, owner.ID, req.Type, owner.Country, now)
	if err != nil {
		return nil, fmt.Errorf("build balance snapshot: %w", err)
	}

	prev := req.Status
	req.Status = next
	req.Notified = false
	req.LastActionUserID = actorID
	req.UpdatedAt = now
	if opts.reason != "" {
		req.Reason = opts.reason
	}

	history := leave.RequestHistory{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		PrevStatus: prev,
		NewStatus:  next,
		ActorID:    actorID,
		At:         now,
		PoolStatus: snapshot,
		Reason:     opts.reason,
		Automatic:  opts.automatic,
	}

	err = m.Store.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.SaveRequest(ctx, *req); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, history)
	})
	if err != nil {
		return nil, fmt.Errorf("persist transition %s -> %s: %w", prev, next, err)
	}
	return req, nil
}

func (m *Machine) load(ctx context.Context, requestID string) (*leave.Request, *leave.User, error) {
	req, err := m.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: request %s", leave.ErrNotFound, requestID)
	}
	owner, err := m.Store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: user %s", leave.ErrNotFound, req.UserID)
	}
	return req, owner, nil
}

func (m *Machine) managerOf(actor, owner *leave.User) bool {
	return actor.Role == leave.RoleManager && owner.ManagerID == actor.ID
}

func (m *Machine) badTransition(req *leave.Request, next leave.RequestStatus) error {
	return fmt.Errorf("%w: %s -> %s for request %s", leave.ErrInvalidTransition, req.Status, next, req.ID)
}
