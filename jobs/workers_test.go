package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/jobs"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/request"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var workerNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type fakeMailer struct {
	sent []notify.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeCal struct {
	added int
	fail  bool
}

func (f *fakeCal) AddEntry(_ context.Context, _ string, _, _ time.Time, _ string) (string, error) {
	if f.fail {
		return "", errors.New("caldav unreachable")
	}
	f.added++
	return "https://cal.example.com/entry-9.ics", nil
}

func (f *fakeCal) RemoveEntry(_ context.Context, _, _ string) (bool, error) { return true, nil }

type workerFixture struct {
	workers *jobs.Workers
	machine *request.Machine
	store   *memory.Memory
	mailer  *fakeMailer
	cal     *fakeCal
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, leave.User{
		ID: "alice", Login: "alice", Firstname: "Alice", Lastname: "Durand",
		Email: "alice@example.com", Country: leave.CountryFR, Role: leave.RoleUser,
		ManagerID: "bob",
	}))
	require.NoError(t, store.SaveUser(ctx, leave.User{
		ID: "bob", Login: "bob", Firstname: "Bob", Lastname: "Martin",
		Email: "bob@example.com", Country: leave.CountryFR, Role: leave.RoleManager,
	}))

	machine := request.NewMachine(store, nil)
	machine.Now = func() time.Time { return workerNow }

	mailer := &fakeMailer{}
	cal := &fakeCal{}
	composer := &notify.Composer{Sender: "leave@example.com", HRAddress: "hr@example.com"}
	workers := jobs.NewWorkers(store, machine, mailer, cal, composer, "https://cal.example.com/team/")
	workers.Now = func() time.Time { return workerNow }

	return &workerFixture{workers: workers, machine: machine, store: store, mailer: mailer, cal: cal}
}

// seedRequest stores a request in the given status with notified=false.
func (f *workerFixture) seedRequest(t *testing.T, status leave.RequestStatus) *leave.Request {
	t.Helper()
	req := &leave.Request{
		ID:     "req-1",
		UserID: "alice",
		Type:   leave.TypeRecovery,
		Status: status,
		DateFrom: time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2026, time.March, 17, 0, 0, 0, 0, time.UTC),
		CreatedAt: workerNow.Add(-time.Hour),
		UpdatedAt: workerNow.Add(-time.Hour),
	}
	require.NoError(t, f.store.SaveRequest(context.Background(), *req))
	return req
}

// =============================================================================
// CLAIM IDEMPOTENCY
// =============================================================================

func TestWorker_NotifyPending_SendsOnceUnderDuplicateDispatch(t *testing.T) {
	// GIVEN: An un-notified pending request dispatched twice
	// WHEN: Both tasks are processed
	// THEN: Exactly one mail goes to the manager

	f := newWorkerFixture(t)
	f.seedRequest(t, leave.StatusPending)
	ctx := context.Background()
	task := jobs.Task{Kind: jobs.TaskNotifyPending, RequestID: "req-1"}

	require.NoError(t, f.workers.Process(ctx, task))
	require.NoError(t, f.workers.Process(ctx, task))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "bob@example.com", f.mailer.sent[0].To)

	req, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, req.Notified)
}

func TestWorker_StatusMovedSinceDispatch_DoesNothing(t *testing.T) {
	// GIVEN: A task dispatched for PENDING after the request moved on
	// WHEN: Processing
	// THEN: No mail, no claim; the next poll handles the new status

	f := newWorkerFixture(t)
	f.seedRequest(t, leave.StatusDenied)

	err := f.workers.Process(context.Background(), jobs.Task{Kind: jobs.TaskNotifyPending, RequestID: "req-1"})
	require.NoError(t, err)
	assert.Empty(t, f.mailer.sent)

	req, err := f.store.GetRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.False(t, req.Notified)
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

func TestWorker_RetryableFailure_ReleasesClaim(t *testing.T) {
	// GIVEN: A mailer that fails transiently
	// WHEN: Processing a pending notification
	// THEN: The claim is released with the error recorded, status unchanged

	f := newWorkerFixture(t)
	f.seedRequest(t, leave.StatusPending)
	f.mailer.err = errors.New("smtp timeout")
	ctx := context.Background()

	err := f.workers.Process(ctx, jobs.Task{Kind: jobs.TaskNotifyPending, RequestID: "req-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrNotification)
	assert.True(t, leave.IsRetryable(err))

	req, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, req.Notified, "claim must be released for the next poll")
	assert.Equal(t, "smtp timeout", req.NotifyError)
	assert.Equal(t, leave.StatusPending, req.Status)
}

func TestWorker_OwnerLookupFailure_ReleasesClaim(t *testing.T) {
	// GIVEN: A pending request whose owner row is missing from the store
	// WHEN: Processing the notification, then again after the owner appears
	// THEN: The first run releases the claim with no mail; the second sends

	f := newWorkerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveRequest(ctx, leave.Request{
		ID:        "req-ghost",
		UserID:    "ghost",
		Type:      leave.TypeRecovery,
		Status:    leave.StatusPending,
		DateFrom:  time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2026, time.March, 17, 0, 0, 0, 0, time.UTC),
		CreatedAt: workerNow.Add(-time.Hour),
		UpdatedAt: workerNow.Add(-time.Hour),
	}))

	err := f.workers.Process(ctx, jobs.Task{Kind: jobs.TaskNotifyPending, RequestID: "req-ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrNotification)
	assert.True(t, leave.IsRetryable(err))
	assert.Empty(t, f.mailer.sent)

	req, err := f.store.GetRequest(ctx, "req-ghost")
	require.NoError(t, err)
	assert.False(t, req.Notified, "claim must be released when no mail went out")
	assert.NotEmpty(t, req.NotifyError)
	assert.Equal(t, leave.StatusPending, req.Status)

	require.NoError(t, f.store.SaveUser(ctx, leave.User{
		ID: "ghost", Login: "ghost", Firstname: "Gaspard", Lastname: "Hote",
		Email: "ghost@example.com", Country: leave.CountryFR, Role: leave.RoleUser,
		ManagerID: "bob",
	}))

	require.NoError(t, f.workers.Process(ctx, jobs.Task{Kind: jobs.TaskNotifyPending, RequestID: "req-ghost"}))
	assert.Len(t, f.mailer.sent, 1)

	req, err = f.store.GetRequest(ctx, "req-ghost")
	require.NoError(t, err)
	assert.True(t, req.Notified)
}

func TestWorker_PermanentFailure_EscalatesToError(t *testing.T) {
	// GIVEN: A mailer rejecting the message permanently
	// WHEN: Processing
	// THEN: The request moves to ERROR for operator intervention

	f := newWorkerFixture(t)
	f.seedRequest(t, leave.StatusPending)
	f.mailer.err = &notify.PermanentError{Err: errors.New("recipient rejected")}
	ctx := context.Background()

	err := f.workers.Process(ctx, jobs.Task{Kind: jobs.TaskNotifyPending, RequestID: "req-1"})
	require.Error(t, err)
	assert.False(t, leave.IsRetryable(err))

	req, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusError, req.Status)
}

// =============================================================================
// APPROVED WORKER - MAIL PLUS CALENDAR
// =============================================================================

func TestWorker_Approved_SyncsCalendar(t *testing.T) {
	// GIVEN: An un-notified approved request
	// WHEN: The approved worker runs
	// THEN: The owner is mailed and the calendar entry is created

	f := newWorkerFixture(t)
	f.seedRequest(t, leave.StatusApprovedAdmin)
	ctx := context.Background()

	require.NoError(t, f.workers.Process(ctx, jobs.Task{Kind: jobs.TaskNotifyApproved, RequestID: "req-1"}))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "alice@example.com", f.mailer.sent[0].To)
	assert.Equal(t, 1, f.cal.added)

	req, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, req.Notified)
	assert.Equal(t, "https://cal.example.com/entry-9.ics", req.ICSURL)
	assert.Empty(t, req.CalendarError)
}

func TestWorker_CalendarFailure_KeepsMailClaim(t *testing.T) {
	// GIVEN: A working mailer and a failing calendar
	// WHEN: The approved worker runs twice
	// THEN: The mail is sent once; the calendar failure is recorded
	//       without undoing the notification

	f := newWorkerFixture(t)
	f.seedRequest(t, leave.StatusApprovedAdmin)
	f.cal.fail = true
	ctx := context.Background()
	task := jobs.Task{Kind: jobs.TaskNotifyApproved, RequestID: "req-1"}

	require.NoError(t, f.workers.Process(ctx, task))
	require.NoError(t, f.workers.Process(ctx, task))

	require.Len(t, f.mailer.sent, 1, "the mail must not be re-sent for a calendar failure")

	req, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, req.Notified)
	assert.Equal(t, "caldav unreachable", req.CalendarError)
	assert.Empty(t, req.ICSURL)
}

// =============================================================================
// AUTO-ACCEPT WORKER
// =============================================================================

func TestWorker_AutoApprove_PromotesStaleAcceptedRequest(t *testing.T) {
	// GIVEN: A manager-accepted request notified four days ago
	// WHEN: The auto-approve worker runs
	// THEN: APPROVED_ADMIN, un-notified, with an automatic history row

	f := newWorkerFixture(t)
	req := f.seedRequest(t, leave.StatusAcceptedManager)
	ctx := context.Background()

	req.Notified = true
	req.UpdatedAt = workerNow.Add(-4 * 24 * time.Hour)
	require.NoError(t, f.store.SaveRequest(ctx, *req))

	require.NoError(t, f.workers.Process(ctx, jobs.Task{Kind: jobs.TaskAutoApprove, RequestID: "req-1"}))

	got, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApprovedAdmin, got.Status)
	assert.False(t, got.Notified, "the approved worker still owes the owner a mail")

	history, err := f.store.HistoryByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.True(t, history[len(history)-1].Automatic)
}

func TestWorker_AutoApprove_TooRecent_Noop(t *testing.T) {
	f := newWorkerFixture(t)
	req := f.seedRequest(t, leave.StatusAcceptedManager)
	ctx := context.Background()

	req.Notified = true
	req.UpdatedAt = workerNow.Add(-24 * time.Hour)
	require.NoError(t, f.store.SaveRequest(ctx, *req))

	require.NoError(t, f.workers.Process(ctx, jobs.Task{Kind: jobs.TaskAutoApprove, RequestID: "req-1"}))

	got, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusAcceptedManager, got.Status)
}

// =============================================================================
// POLLER DISPATCH
// =============================================================================

func TestPoller_DispatchesByStatusAndNotified(t *testing.T) {
	// GIVEN: Requests across the notification-relevant statuses
	// WHEN: The poller scans
	// THEN: Un-notified requests get their notify task; a notified
	//       ACCEPTED_MANAGER request gets an auto-approve task

	f := newWorkerFixture(t)
	ctx := context.Background()

	seed := func(id string, status leave.RequestStatus, notified bool) {
		req := leave.Request{
			ID: id, UserID: "alice", Type: leave.TypeRecovery, Status: status,
			Notified: notified,
			DateFrom: workerNow, DateTo: workerNow,
			CreatedAt: workerNow, UpdatedAt: workerNow,
		}
		require.NoError(t, f.store.SaveRequest(ctx, req))
	}
	seed("p1", leave.StatusPending, false)
	seed("p2", leave.StatusPending, true)
	seed("a1", leave.StatusAcceptedManager, false)
	seed("a2", leave.StatusAcceptedManager, true)
	seed("d1", leave.StatusDenied, false)
	seed("v1", leave.StatusApprovedAdmin, false)
	seed("c1", leave.StatusCanceled, false)

	var tasks []jobs.Task
	poller := jobs.NewPoller(f.store, func(task jobs.Task) { tasks = append(tasks, task) })
	require.NoError(t, poller.Run(ctx))

	byRequest := make(map[string]jobs.TaskKind)
	for _, task := range tasks {
		byRequest[task.RequestID] = task.Kind
	}
	assert.Equal(t, map[string]jobs.TaskKind{
		"p1": jobs.TaskNotifyPending,
		"a1": jobs.TaskNotifyAccepted,
		"a2": jobs.TaskAutoApprove,
		"d1": jobs.TaskNotifyDenied,
		"v1": jobs.TaskNotifyApproved,
	}, byRequest)
}

// =============================================================================
// NOTIFIED FLAG MONOTONICITY
// =============================================================================

func TestClaim_ConditionalUpdateSemantics(t *testing.T) {
	// GIVEN: An un-notified request
	// WHEN: Claiming twice, then releasing, then claiming again
	// THEN: Only the first and the post-release claims win

	f := newWorkerFixture(t)
	f.seedRequest(t, leave.StatusPending)
	ctx := context.Background()

	won, err := f.store.ClaimNotification(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = f.store.ClaimNotification(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, f.store.ReleaseNotification(ctx, "req-1", "smtp timeout"))
	req, err := f.store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, req.Notified)
	assert.Equal(t, "smtp timeout", req.NotifyError)

	won, err = f.store.ClaimNotification(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, won)
}
