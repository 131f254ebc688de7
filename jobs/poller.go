/*
poller.go - Notification dispatch

PURPOSE:
  The poller scans for requests needing action and dispatches one worker
  task per row. It mutates nothing itself: dispatch is at-least-once and
  workers tolerate duplicate dispatch, so the poller is safe to run
  concurrently with itself.

DISPATCH CONDITIONS:
  PENDING, DENIED, APPROVED_ADMIN   un-notified -> the status's worker
  ACCEPTED_MANAGER                  un-notified -> accepted worker
  ACCEPTED_MANAGER + notified       awaiting auto-accept -> auto worker
*/
package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/warp/leave-engine/leave"
)

// TaskKind selects the worker a task is dispatched to.
type TaskKind string

const (
	TaskNotifyPending  TaskKind = "notify_pending"
	TaskNotifyAccepted TaskKind = "notify_accepted"
	TaskNotifyDenied   TaskKind = "notify_denied"
	TaskNotifyApproved TaskKind = "notify_approved"
	TaskAutoApprove    TaskKind = "auto_approve"
)

// Task carries one unit of worker work.
type Task struct {
	Kind      TaskKind
	RequestID string
}

// Poller scans and dispatches. Dispatch is typically Workers.Process via
// a queue or a direct call; it must be safe to invoke more than once for
// the same request.
type Poller struct {
	Store    leave.Store
	Dispatch func(Task)
}

func NewPoller(store leave.Store, dispatch func(Task)) *Poller {
	return &Poller{Store: store, Dispatch: dispatch}
}

// Run performs one scan.
func (p *Poller) Run(ctx context.Context) error {
	dispatched := 0

	for _, status := range []leave.RequestStatus{
		leave.StatusPending,
		leave.StatusDenied,
		leave.StatusApprovedAdmin,
		leave.StatusAcceptedManager,
	} {
		requests, err := p.Store.RequestsByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("list %s requests: %w", status, err)
		}
		for _, req := range requests {
			task, ok := taskFor(&req)
			if !ok {
				continue
			}
			p.Dispatch(task)
			dispatched++
		}
	}

	if dispatched > 0 {
		log.Printf("[Poller] dispatched %d task(s)", dispatched)
	}
	return nil
}

func taskFor(req *leave.Request) (Task, bool) {
	switch req.Status {
	case leave.StatusPending:
		if !req.Notified {
			return Task{Kind: TaskNotifyPending, RequestID: req.ID}, true
		}
	case leave.StatusDenied:
		if !req.Notified {
			return Task{Kind: TaskNotifyDenied, RequestID: req.ID}, true
		}
	case leave.StatusApprovedAdmin:
		if !req.Notified {
			return Task{Kind: TaskNotifyApproved, RequestID: req.ID}, true
		}
	case leave.StatusAcceptedManager:
		if !req.Notified {
			return Task{Kind: TaskNotifyAccepted, RequestID: req.ID}, true
		}
		// Notified and still awaiting an admin: auto-accept candidate.
		return Task{Kind: TaskAutoApprove, RequestID: req.ID}, true
	}
	return Task{}, false
}
