// Package calendar defines the calendar transport contract. The core
// only ever adds and removes entries; the CalDAV wire protocol lives in
// the caldav subpackage.
package calendar

import (
	"context"
	"time"
)

// Calendar syncs approved leave into an external calendar.
type Calendar interface {
	// AddEntry creates an all-day event spanning [from, to] and returns
	// the external entry URL for later removal.
	AddEntry(ctx context.Context, calendarURL string, from, to time.Time, summary string) (string, error)

	// RemoveEntry deletes a previously created entry. Returns false when
	// the entry no longer exists.
	RemoveEntry(ctx context.Context, calendarURL, entryURL string) (bool, error)
}

// Disabled is the no-op calendar used when no CalDAV endpoint is
// configured.
type Disabled struct{}

func (Disabled) AddEntry(ctx context.Context, calendarURL string, from, to time.Time, summary string) (string, error) {
	return "", nil
}

func (Disabled) RemoveEntry(ctx context.Context, calendarURL, entryURL string) (bool, error) {
	return false, nil
}
