/*
workers.go - Idempotent notification workers

PURPOSE:
  One worker per request status performs that status's side effects
  (mail, calendar) and closes the loop by leaving notified=true. The
  poller dispatches at-least-once, so every worker is idempotent.

CLAIMING:
  A worker first claims the row with the conditional update "set
  notified=true where id=? and notified=false". Losing the claim means a
  concurrent worker (or an earlier run) already owns the side effect, so
  the task is dropped without sending anything: no duplicate mail, no
  duplicate calendar entry.

FAILURE HANDLING:
  Any failure between winning the claim and the mail send (owner lookup,
  message composition) releases the claim so nothing is lost. A
  retryable mail failure releases the claim and records the error on
  the request, so the next poll retries. A permanent failure escalates
  the request to ERROR for operator attention. A calendar failure after
  a mail success is recorded separately and does NOT release the claim:
  the mail must not be re-sent because the calendar was down.
*/
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/request"
)

// Workers executes notification tasks.
type Workers struct {
	Store       leave.TxStore
	Machine     *request.Machine
	Mailer      notify.Mailer
	Calendar    calendar.Calendar
	Composer    *notify.Composer
	CalendarURL string
	Now         func() time.Time
}

func NewWorkers(store leave.TxStore, machine *request.Machine, mailer notify.Mailer, cal calendar.Calendar, composer *notify.Composer, calendarURL string) *Workers {
	if cal == nil {
		cal = calendar.Disabled{}
	}
	return &Workers{
		Store:       store,
		Machine:     machine,
		Mailer:      mailer,
		Calendar:    cal,
		Composer:    composer,
		CalendarURL: calendarURL,
		Now:         time.Now,
	}
}

// Process runs one task. Duplicate dispatch for the same request is
// harmless: the claim decides.
func (w *Workers) Process(ctx context.Context, task Task) error {
	switch task.Kind {
	case TaskNotifyPending:
		return w.notify(ctx, task.RequestID, leave.StatusPending)
	case TaskNotifyAccepted:
		return w.notify(ctx, task.RequestID, leave.StatusAcceptedManager)
	case TaskNotifyDenied:
		return w.notify(ctx, task.RequestID, leave.StatusDenied)
	case TaskNotifyApproved:
		return w.notify(ctx, task.RequestID, leave.StatusApprovedAdmin)
	case TaskAutoApprove:
		return w.autoApprove(ctx, task.RequestID)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// =============================================================================
// NOTIFICATION WORKERS
// =============================================================================

func (w *Workers) notify(ctx context.Context, requestID string, forStatus leave.RequestStatus) error {
	req, err := w.Store.GetRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("%w: request %s", leave.ErrNotFound, requestID)
	}
	// The status may have moved since dispatch; the next poll will
	// dispatch the right worker for the new status.
	if req.Status != forStatus {
		return nil
	}

	claimed, err := w.Store.ClaimNotification(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("claim request %s: %w", req.ID, err)
	}
	if !claimed {
		return nil
	}
	req.Notified = true

	// Past this point the claim is owned: every failure before the send
	// must give it back or the notification is lost for good.
	owner, err := w.Store.GetUser(ctx, req.UserID)
	if err != nil {
		return w.abandonClaim(ctx, req, fmt.Errorf("owner %s: %w", req.UserID, err))
	}

	messages, err := w.compose(ctx, req, owner)
	if err != nil {
		return w.abandonClaim(ctx, req, err)
	}

	for _, msg := range messages {
		if err := w.Mailer.Send(ctx, msg); err != nil {
			return w.mailFailed(ctx, req, err)
		}
	}

	// The approved worker additionally syncs the calendar entry. A
	// failure here is recorded apart from mail failures so the mail
	// success is not undone.
	if req.Status == leave.StatusApprovedAdmin && req.ICSURL == "" {
		if err := w.syncCalendar(ctx, req, owner); err != nil {
			log.Printf("[Worker] calendar sync failed for request %s: %v", req.ID, err)
		}
	}

	return nil
}

func (w *Workers) compose(ctx context.Context, req *leave.Request, owner *leave.User) ([]notify.Message, error) {
	switch req.Status {
	case leave.StatusPending:
		manager := w.managerOf(ctx, owner)
		return []notify.Message{w.Composer.Pending(req, owner, manager)}, nil
	case leave.StatusAcceptedManager:
		return []notify.Message{w.Composer.Accepted(req, owner)}, nil
	case leave.StatusDenied:
		return []notify.Message{w.Composer.Denied(req, owner)}, nil
	case leave.StatusApprovedAdmin:
		automatic, err := w.wasAutomatic(ctx, req)
		if err != nil {
			return nil, err
		}
		return []notify.Message{w.Composer.Approved(req, owner, automatic)}, nil
	default:
		return nil, fmt.Errorf("no notification defined for status %s", req.Status)
	}
}

// abandonClaim releases a won claim when the side effect never ran
// (owner lookup or message composition failed), so the next poll
// retries from scratch.
func (w *Workers) abandonClaim(ctx context.Context, req *leave.Request, cause error) error {
	if err := w.Store.ReleaseNotification(ctx, req.ID, cause.Error()); err != nil {
		log.Printf("[Worker] failed to release claim on request %s: %v", req.ID, err)
	}
	return &leave.NotificationFailure{RequestID: req.ID, Stage: "compose", Err: cause}
}

// mailFailed handles a send error after a won claim. Retryable failures
// release the claim so the next poll retries; permanent ones move the
// request to ERROR.
func (w *Workers) mailFailed(ctx context.Context, req *leave.Request, sendErr error) error {
	if notify.IsPermanent(sendErr) {
		if _, err := w.Machine.MarkError(ctx, req.ID, sendErr.Error()); err != nil {
			log.Printf("[Worker] failed to mark request %s as errored: %v", req.ID, err)
		}
		return &leave.NotificationFailure{RequestID: req.ID, Stage: "mail", Permanent: true, Err: sendErr}
	}
	if err := w.Store.ReleaseNotification(ctx, req.ID, sendErr.Error()); err != nil {
		log.Printf("[Worker] failed to release claim on request %s: %v", req.ID, err)
	}
	return &leave.NotificationFailure{RequestID: req.ID, Stage: "mail", Err: sendErr}
}

func (w *Workers) syncCalendar(ctx context.Context, req *leave.Request, owner *leave.User) error {
	summary := fmt.Sprintf("%s %s - %s", owner.Firstname, owner.Lastname, req.Type)
	url, err := w.Calendar.AddEntry(ctx, w.CalendarURL, req.DateFrom, req.DateTo, summary)
	if err != nil {
		req.CalendarError = err.Error()
		if saveErr := w.Store.SaveRequest(ctx, *req); saveErr != nil {
			return saveErr
		}
		return &leave.NotificationFailure{RequestID: req.ID, Stage: "calendar", Err: err}
	}
	req.ICSURL = url
	req.CalendarError = ""
	return w.Store.SaveRequest(ctx, *req)
}

// wasAutomatic reports whether the approval was the auto-accept path,
// read from the latest history row.
func (w *Workers) wasAutomatic(ctx context.Context, req *leave.Request) (bool, error) {
	history, err := w.Store.HistoryByRequest(ctx, req.ID)
	if err != nil {
		return false, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].NewStatus == leave.StatusApprovedAdmin {
			return history[i].Automatic, nil
		}
	}
	return false, nil
}

func (w *Workers) managerOf(ctx context.Context, owner *leave.User) *leave.User {
	if owner.ManagerID == "" {
		return nil
	}
	manager, err := w.Store.GetUser(ctx, owner.ManagerID)
	if err != nil {
		return nil
	}
	return manager
}

// =============================================================================
// AUTO-ACCEPT WORKER
// =============================================================================

// autoApprove promotes a notified ACCEPTED_MANAGER request that has sat
// for the machine's grace period. The transition leaves notified=false,
// so the next poll schedules the approved worker for it.
func (w *Workers) autoApprove(ctx context.Context, requestID string) error {
	req, err := w.Store.GetRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("%w: request %s", leave.ErrNotFound, requestID)
	}
	if req.Status != leave.StatusAcceptedManager || !req.Notified {
		return nil
	}
	if w.Now().Sub(req.UpdatedAt) < request.AutoApproveAfter {
		return nil
	}
	if _, err := w.Machine.AutoApprove(ctx, req.ID); err != nil {
		return fmt.Errorf("auto-approve request %s: %w", req.ID, err)
	}
	log.Printf("[Worker] auto-approved request %s after %v without admin action", req.ID, request.AutoApproveAfter)
	return nil
}
