package request

import (
	"context"
	"time"

	"github.com/warp/leave-engine/leave"
)

// conflictable reports whether two requests are a real conflict: their
// closed intervals intersect, neither is canceled, and they are not two
// opposite half days on the same single date.
func conflictable(a, b *leave.Request) bool {
	if a.ID == b.ID {
		return false
	}
	if a.Status == leave.StatusCanceled || b.Status == leave.StatusCanceled {
		return false
	}
	if !a.Overlaps(b) {
		return false
	}
	// An AM and a PM half day on the same single date coexist.
	if a.Label != leave.FullDay && b.Label != leave.FullDay &&
		a.Label != b.Label &&
		a.SingleDay() && b.SingleDay() &&
		leave.SameDay(a.DateFrom, b.DateFrom) {
		return false
	}
	return true
}

// InConflict returns the user's requests that conflict with req:
// containment either direction and partial overlap on either edge all
// count, canceled requests never do.
func InConflict(ctx context.Context, s leave.Store, req *leave.Request) ([]leave.Request, error) {
	others, err := s.RequestsInRange(ctx, req.UserID, req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}
	var conflicts []leave.Request
	for i := range others {
		if conflictable(req, &others[i]) {
			conflicts = append(conflicts, others[i])
		}
	}
	return conflicts, nil
}

// blocksSubmission narrows a conflict set to the statuses that block a
// new submission: a denied or errored request does not reserve its dates.
func blocksSubmission(conflicts []leave.Request) []leave.Request {
	var blocking []leave.Request
	for _, c := range conflicts {
		switch c.Status {
		case leave.StatusPending, leave.StatusAcceptedManager, leave.StatusApprovedAdmin:
			blocking = append(blocking, c)
		}
	}
	return blocking
}

// futureOnly keeps conflicts whose span has not fully elapsed.
func futureOnly(conflicts []leave.Request, now time.Time) []leave.Request {
	var kept []leave.Request
	for _, c := range conflicts {
		if !c.DateTo.Before(leave.Day(now)) {
			kept = append(kept, c)
		}
	}
	return kept
}
