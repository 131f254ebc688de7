/*
reminders.go - Reminder batch jobs

Two reminder jobs run on their own schedules:

  ReminderJob re-sends the manager notification for PENDING requests
  starting within two days, at most once per calendar day per request.

  TrialReminderJob finds users past their country's trial window since
  arrival who have not yet received the milestone reminder, deduplicated
  by a persisted record keyed on (user, milestone), and sends one mail
  per match.
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
	"github.com/warp/leave-engine/notify"
)

// ReminderLeadDays is how close to its start date a pending request must
// be before the manager is re-notified.
const ReminderLeadDays = 2

// ReminderJob nags managers about pending requests starting soon.
type ReminderJob struct {
	Store    leave.Store
	Mailer   notify.Mailer
	Composer *notify.Composer
	Now      func() time.Time
}

func (j *ReminderJob) Run(ctx context.Context) error {
	now := j.Now()
	pending, err := j.Store.RequestsByStatus(ctx, leave.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending requests: %w", err)
	}

	var errs []error
	sent := 0
	deadline := leave.Day(now).AddDate(0, 0, ReminderLeadDays)

	for _, req := range pending {
		if req.DateFrom.Before(leave.Day(now)) || req.DateFrom.After(deadline) {
			continue
		}

		// At most one reminder per request per day.
		last, err := j.Store.LastReminder(ctx, leave.ReminderPendingRequest, req.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if last != nil && leave.SameDay(last.SentAt, now) {
			continue
		}

		owner, err := j.Store.GetUser(ctx, req.UserID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var manager *leave.User
		if owner.ManagerID != "" {
			manager, _ = j.Store.GetUser(ctx, owner.ManagerID)
		}

		if err := j.Mailer.Send(ctx, j.Composer.Reminder(&req, owner, manager)); err != nil {
			errs = append(errs, fmt.Errorf("reminder for request %s: %w", req.ID, err))
			continue
		}
		err = j.Store.SaveReminder(ctx, leave.Reminder{
			ID:        uuid.NewString(),
			Kind:      leave.ReminderPendingRequest,
			UserID:    req.UserID,
			RequestID: req.ID,
			SentAt:    now,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}

	if sent > 0 {
		log.Printf("[Reminder] sent %d pending-request reminder(s)", sent)
	}
	return errors.Join(errs...)
}

// TrialReminderJob notifies managers when a report crosses the trial
// window for their country.
type TrialReminderJob struct {
	Store    leave.Store
	Mailer   notify.Mailer
	Composer *notify.Composer

	// Windows maps a country to its trial window in months. Countries
	// absent from the map get no reminders.
	Windows map[leave.Country]int

	Now func() time.Time
}

func (j *TrialReminderJob) Run(ctx context.Context) error {
	now := j.Now()
	users, err := j.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var errs []error
	sent := 0

	for _, user := range users {
		window, ok := j.Windows[user.Country]
		if !ok || window <= 0 || user.ArrivalDate.IsZero() {
			continue
		}
		if leave.MonthsBetween(user.ArrivalDate, now) < window {
			continue
		}

		milestone := fmt.Sprintf("trial_%dm", window)
		already, err := j.Store.HasMilestoneReminder(ctx, user.ID, milestone)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if already {
			continue
		}

		var manager *leave.User
		if user.ManagerID != "" {
			manager, _ = j.Store.GetUser(ctx, user.ManagerID)
		}

		user := user
		if err := j.Mailer.Send(ctx, j.Composer.TrialPeriod(&user, manager, window)); err != nil {
			errs = append(errs, fmt.Errorf("trial reminder for user %s: %w", user.ID, err))
			continue
		}
		err = j.Store.SaveReminder(ctx, leave.Reminder{
			ID:        uuid.NewString(),
			Kind:      leave.ReminderTrialPeriod,
			UserID:    user.ID,
			Milestone: milestone,
			SentAt:    now,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}

	if sent > 0 {
		log.Printf("[TrialReminder] sent %d trial-period reminder(s)", sent)
	}
	return errors.Join(errs...)
}
