package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/request"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestMachine(t *testing.T) (*request.Machine, *request.Service, *memory.Memory) {
	t.Helper()
	svc, store := newTestService(t)
	machine := request.NewMachine(store, nil)
	machine.Now = func() time.Time { return now }
	return machine, svc, store
}

func user(t *testing.T, store *memory.Memory, id string) *leave.User {
	t.Helper()
	u, err := store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func pendingRequest(t *testing.T, svc *request.Service) *leave.Request {
	t.Helper()
	req, err := svc.Submit(context.Background(), submitInput(2))
	require.NoError(t, err)
	return req
}

// =============================================================================
// ACCEPT
// =============================================================================

func TestAccept_ManagerMovesToAcceptedManager(t *testing.T) {
	// GIVEN: A pending request owned by alice, managed by bob
	// WHEN: Bob accepts it
	// THEN: ACCEPTED_MANAGER, notified reset, history appended

	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	got, err := machine.Accept(ctx, req.ID, user(t, store, "bob"))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusAcceptedManager, got.Status)
	assert.False(t, got.Notified)
	assert.Equal(t, "bob", got.LastActionUserID)

	history, err := store.HistoryByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, leave.StatusPending, history[1].PrevStatus)
	assert.Equal(t, leave.StatusAcceptedManager, history[1].NewStatus)
	assert.Equal(t, "bob", history[1].ActorID)
	assert.False(t, history[1].Automatic)
}

func TestAccept_AdminSkipsManagerStep(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: An admin accepts it directly
	// THEN: APPROVED_ADMIN without the manager step

	machine, svc, store := newTestMachine(t)
	req := pendingRequest(t, svc)

	got, err := machine.Accept(context.Background(), req.ID, user(t, store, "carol"))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApprovedAdmin, got.Status)
	assert.False(t, got.Notified)
}

func TestAccept_AdminFromAcceptedManager(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	_, err := machine.Accept(ctx, req.ID, user(t, store, "bob"))
	require.NoError(t, err)

	got, err := machine.Accept(ctx, req.ID, user(t, store, "carol"))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApprovedAdmin, got.Status)
}

func TestAccept_UnrelatedUser_Forbidden(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	req := pendingRequest(t, svc)

	_, err := machine.Accept(context.Background(), req.ID, user(t, store, "alice"))
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

func TestAccept_ManagerTwice_InvalidTransition(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	_, err := machine.Accept(ctx, req.ID, user(t, store, "bob"))
	require.NoError(t, err)

	_, err = machine.Accept(ctx, req.ID, user(t, store, "bob"))
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

// =============================================================================
// REFUSE
// =============================================================================

func TestRefuse_RecordsReason(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: The manager refuses with a reason
	// THEN: DENIED with the reason on request and history

	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	got, err := machine.Refuse(ctx, req.ID, user(t, store, "bob"), "Team is short-staffed that week")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusDenied, got.Status)
	assert.Equal(t, "Team is short-staffed that week", got.Reason)
	assert.False(t, got.Notified)

	history, err := store.HistoryByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Team is short-staffed that week", history[len(history)-1].Reason)
}

func TestRefuse_Owner_Forbidden(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	req := pendingRequest(t, svc)

	_, err := machine.Refuse(context.Background(), req.ID, user(t, store, "alice"), "no")
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_OwnerFutureRequest(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	req := pendingRequest(t, svc)

	got, err := machine.Cancel(context.Background(), req.ID, user(t, store, "alice"), "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCanceled, got.Status)
}

func TestCancel_OwnerAfterStart_Rejected(t *testing.T) {
	// GIVEN: A request whose span already started
	// WHEN: The owner cancels
	// THEN: Rejected with the too-late message

	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	machine.Now = func() time.Time { return req.DateFrom.AddDate(0, 0, 1) }
	_, err := machine.Cancel(ctx, req.ID, user(t, store, "alice"), "")
	require.Error(t, err)
	assert.Equal(t, "You can no longer cancel a request that has started.", err.Error())

	// An admin still can.
	got, err := machine.Cancel(ctx, req.ID, user(t, store, "carol"), "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCanceled, got.Status)
}

func TestCancel_OwnerApprovedRequest_Rejected(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	_, err := machine.Accept(ctx, req.ID, user(t, store, "carol"))
	require.NoError(t, err)

	_, err = machine.Cancel(ctx, req.ID, user(t, store, "alice"), "")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestCancel_RemovesCalendarEntry(t *testing.T) {
	// GIVEN: An approved request with a synced calendar entry
	// WHEN: An admin cancels it
	// THEN: The entry removal is attempted

	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	req.Status = leave.StatusApprovedAdmin
	req.ICSURL = "https://cal.example.com/entry-1.ics"
	require.NoError(t, store.SaveRequest(ctx, *req))

	cal := &fakeCalendar{}
	machine.Calendar = cal

	_, err := machine.Cancel(ctx, req.ID, user(t, store, "carol"), "https://cal.example.com/team/")
	require.NoError(t, err)
	assert.Equal(t, 1, cal.removed)
}

// =============================================================================
// AUTO-APPROVAL
// =============================================================================

func TestAutoApprove_AfterThreeNotifiedDays(t *testing.T) {
	// GIVEN: A manager-accepted request notified three days ago
	// WHEN: The system auto-approves
	// THEN: APPROVED_ADMIN with an automatic history row, notified reset
	//       so the approved worker picks it up

	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	accepted, err := machine.Accept(ctx, req.ID, user(t, store, "bob"))
	require.NoError(t, err)

	accepted.Notified = true
	require.NoError(t, store.SaveRequest(ctx, *accepted))

	machine.Now = func() time.Time { return now.Add(request.AutoApproveAfter + time.Hour) }
	got, err := machine.AutoApprove(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApprovedAdmin, got.Status)
	assert.Equal(t, request.SystemActorID, got.LastActionUserID)
	assert.False(t, got.Notified)

	history, err := store.HistoryByRequest(ctx, req.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.True(t, last.Automatic)
	assert.Equal(t, request.SystemActorID, last.ActorID)
}

func TestAutoApprove_TooEarly_Rejected(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	accepted, err := machine.Accept(ctx, req.ID, user(t, store, "bob"))
	require.NoError(t, err)
	accepted.Notified = true
	require.NoError(t, store.SaveRequest(ctx, *accepted))

	machine.Now = func() time.Time { return now.Add(24 * time.Hour) }
	_, err = machine.AutoApprove(ctx, req.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestAutoApprove_Unnotified_Rejected(t *testing.T) {
	// GIVEN: A manager-accepted request whose HR mail has not gone out
	// WHEN: Attempting auto-approval
	// THEN: Rejected; the clock only runs once the mail is sent

	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	_, err := machine.Accept(ctx, req.ID, user(t, store, "bob"))
	require.NoError(t, err)

	machine.Now = func() time.Time { return now.Add(request.AutoApproveAfter + time.Hour) }
	_, err = machine.AutoApprove(ctx, req.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

// =============================================================================
// ERROR ESCALATION
// =============================================================================

func TestMarkError_FromNonTerminal(t *testing.T) {
	machine, svc, _ := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	got, err := machine.MarkError(ctx, req.ID, "mail rejected: bad recipient")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusError, got.Status)
	assert.Equal(t, "mail rejected: bad recipient", got.Reason)
}

func TestMarkError_FromCanceled_Rejected(t *testing.T) {
	machine, svc, store := newTestMachine(t)
	ctx := context.Background()
	req := pendingRequest(t, svc)

	_, err := machine.Cancel(ctx, req.ID, user(t, store, "alice"), "")
	require.NoError(t, err)

	_, err = machine.MarkError(ctx, req.ID, "late failure")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}
