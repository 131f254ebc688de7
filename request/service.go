/*
Package request implements the request ledger: submission with its
ordered validation chain, conflict detection, and the approval state
machine that is the only writer of Request.Status.

SUBMISSION VALIDATION ORDER (first failing rule wins, no side effects
before all pass):
  1. period sanity (end not before start, sane day count)
  2. working-day exclusion (weekends and country holidays)
  3. half-day exclusivity (half-day flag only on single-day spans)
  4. overlap against the user's own pending/approved requests
  5. type visibility and country applicability
  6. the policy strategy's ValidateRequest

On success the balance state observed BEFORE the request is persisted on
it as an immutable snapshot for audit and export.

SEE ALSO:
  - machine.go: status transitions
  - conflict.go: overlap semantics
  - policy package: per-(type, country) validation rules
*/
package request

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// Service handles request submission and read queries.
type Service struct {
	Store    leave.TxStore
	Policies *policy.Registry
	Holidays leave.HolidayCalendar
	Calendar calendar.Calendar // used by the sudo path's synchronous sync
	Now      func() time.Time
}

func NewService(store leave.TxStore, policies *policy.Registry, holidays leave.HolidayCalendar) *Service {
	return &Service{
		Store:    store,
		Policies: policies,
		Holidays: holidays,
		Calendar: calendar.Disabled{},
		Now:      time.Now,
	}
}

// SubmitInput carries one submission.
type SubmitInput struct {
	UserID   string
	Type     string
	DateFrom time.Time
	DateTo   time.Time
	Label    leave.HalfDay
	Message  string
}

// Submit validates and creates a PENDING request for the user.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*leave.Request, error) {
	return s.submit(ctx, in, nil)
}

// SubmitFor is the sudo path: an admin submits on behalf of another
// user. The request is created directly in APPROVED_ADMIN, skipping the
// manager step. The calendar entry is synced synchronously; notified is
// pre-set true only when that sync succeeds, so the notification
// pipeline has nothing left to do for it.
func (s *Service) SubmitFor(ctx context.Context, admin *leave.User, calendarURL string, in SubmitInput) (*leave.Request, error) {
	if admin == nil || admin.Role != leave.RoleAdmin {
		return nil, fmt.Errorf("%w: sudo submission requires an admin", leave.ErrForbidden)
	}
	return s.submit(ctx, in, &sudo{admin: admin, calendarURL: calendarURL})
}

type sudo struct {
	admin       *leave.User
	calendarURL string
}

func (s *Service) submit(ctx context.Context, in SubmitInput, su *sudo) (*leave.Request, error) {
	user, err := s.Store.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s", leave.ErrNotFound, in.UserID)
	}
	vt, err := s.Store.GetVacationType(ctx, in.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: vacation type %s", leave.ErrNotFound, in.Type)
	}

	now := s.Now()
	from, to := leave.Day(in.DateFrom), leave.Day(in.DateTo)

	// 1. Period sanity.
	if to.Before(from) {
		return nil, leave.Invalid("The end date must not be before the start date.")
	}

	// 2. Working-day exclusion: weekends and country holidays never
	// count toward the requested days.
	days := leave.WorkingDays(s.Holidays, user.Country, from, to)
	if days.IsZero() {
		return nil, leave.Invalid("The requested period contains no working days.")
	}
	if leave.SameDay(from, to) && days.GreaterThan(decimal.NewFromInt(1)) {
		return nil, leave.Invalid("A single day cannot count as more than one working day.")
	}

	// 3. Half-day exclusivity.
	if in.Label != leave.FullDay {
		if !leave.SameDay(from, to) {
			return nil, leave.Invalid("A half day can only be requested for a single date.")
		}
		days = decimal.NewFromFloat(0.5)
	}

	req := &leave.Request{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		DateFrom: from,
		DateTo:   to,
		Days:     days,
		Label:    in.Label,
		Type:     vt.Name,
		Status:   leave.StatusPending,
		Message:  in.Message,
	}

	// 4. Overlap against the user's own pending/approved requests.
	conflicts, err := InConflict(ctx, s.Store, req)
	if err != nil {
		return nil, err
	}
	if blocking := blocksSubmission(futureOnly(conflicts, now)); len(blocking) > 0 {
		ids := make([]string, len(blocking))
		for i, c := range blocking {
			ids[i] = c.ID
		}
		return nil, &leave.ConflictError{RequestID: req.ID, ConflictIDs: ids}
	}

	// 5. Type visibility and country applicability.
	if !vt.AvailableIn(user.Country) {
		return nil, leave.Invalid("%s does not exist in your country.", vt.Name)
	}
	if !vt.VisibleTo(user.Role) {
		return nil, leave.Invalid("You are not allowed to request %s.", vt.Name)
	}

	// 6. Policy validation against the balance state before the request.
	snapshot, err := ledger.Snapshot(ctx, s.Store, user.ID, vt.Name, user.Country, now)
	if err != nil {
		return nil, fmt.Errorf("build balance snapshot: %w", err)
	}
	strategy := s.Policies.Lookup(vt.Name, user.Country)
	if err := strategy.ValidateRequest(user, snapshot, policy.RequestInput{
		Days:     days,
		DateFrom: from,
		DateTo:   to,
		Label:    in.Label,
		Message:  in.Message,
	}); err != nil {
		return nil, err
	}

	req.PoolStatus = snapshot
	req.CreatedAt = now
	req.UpdatedAt = now

	actorID := user.ID
	if su != nil {
		req.Status = leave.StatusApprovedAdmin
		actorID = su.admin.ID
	}
	req.LastActionUserID = actorID

	history := leave.RequestHistory{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		PrevStatus: "",
		NewStatus:  req.Status,
		ActorID:    actorID,
		At:         now,
		PoolStatus: snapshot,
		Message:    in.Message,
	}

	err = s.Store.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.SaveRequest(ctx, *req); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, history)
	})
	if err != nil {
		return nil, fmt.Errorf("persist request: %w", err)
	}

	// Sudo creations sync the calendar entry synchronously; only a
	// successful sync pre-sets notified, otherwise the approved worker
	// picks the request up on the next poll.
	if su != nil {
		if url, err := s.Calendar.AddEntry(ctx, su.calendarURL, from, to, calendarSummary(user, req)); err == nil {
			req.ICSURL = url
			req.Notified = true
			if err := s.Store.SaveRequest(ctx, *req); err != nil {
				return nil, fmt.Errorf("record calendar entry: %w", err)
			}
		}
	}

	return req, nil
}

func calendarSummary(user *leave.User, req *leave.Request) string {
	return fmt.Sprintf("%s %s - %s (%s)", user.Firstname, user.Lastname, req.Type, req.Days.String())
}

// =============================================================================
// READ QUERIES
// =============================================================================

func (s *Service) ByUser(ctx context.Context, userID string) ([]leave.Request, error) {
	return s.Store.RequestsByUser(ctx, userID)
}

func (s *Service) ByManager(ctx context.Context, managerID string) ([]leave.Request, error) {
	return s.Store.RequestsByManager(ctx, managerID)
}

func (s *Service) ByStatus(ctx context.Context, status leave.RequestStatus) ([]leave.Request, error) {
	return s.Store.RequestsByStatus(ctx, status)
}

func (s *Service) History(ctx context.Context, requestID string) ([]leave.RequestHistory, error) {
	return s.Store.HistoryByRequest(ctx, requestID)
}
