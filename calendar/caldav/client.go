// Package caldav implements the calendar transport against a CalDAV
// server (Nextcloud, Radicale, iCloud). One leave request maps to one
// all-day VEVENT identified by the request id.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/warp/leave-engine/calendar"
)

// Client talks to one CalDAV endpoint with basic auth.
type Client struct {
	username string
	password string
	timeout  time.Duration
}

var _ calendar.Calendar = (*Client)(nil)

func New(username, password string) *Client {
	return &Client{username: username, password: password, timeout: 30 * time.Second}
}

// AddEntry creates an all-day event on [from, to] and returns its URL.
func (c *Client) AddEntry(ctx context.Context, calendarURL string, from, to time.Time, summary string) (string, error) {
	client, base, err := c.client(calendarURL)
	if err != nil {
		return "", err
	}

	uid := uuid.NewString()
	eventPath := base + uid + ".ics"

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Warp//Leave Engine//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	// DTEND is exclusive, so the entry covers the closed span [from, to].
	event.Props.SetDateTime(ical.PropDateTimeStart, day(from))
	event.Props.SetDateTime(ical.PropDateTimeEnd, day(to).AddDate(0, 0, 1))
	event.Props.SetText(ical.PropSummary, summary)
	cal.Children = append(cal.Children, event.Component)

	if _, err := client.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return "", fmt.Errorf("put calendar object: %w", err)
	}
	return eventPath, nil
}

// RemoveEntry deletes an entry created by AddEntry. A missing entry is
// not an error: the result is the desired state either way.
func (c *Client) RemoveEntry(ctx context.Context, calendarURL, entryURL string) (bool, error) {
	client, _, err := c.client(calendarURL)
	if err != nil {
		return false, err
	}
	if _, err := client.GetCalendarObject(ctx, entryURL); err != nil {
		return false, nil
	}
	if err := client.RemoveAll(ctx, entryURL); err != nil {
		return false, fmt.Errorf("remove calendar object: %w", err)
	}
	return true, nil
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (c *Client) client(calendarURL string) (*caldav.Client, string, error) {
	httpClient := &http.Client{Timeout: c.timeout}
	client, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, c.username, c.password),
		calendarURL,
	)
	if err != nil {
		return nil, "", fmt.Errorf("caldav client: %w", err)
	}
	base := calendarURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return client, base, nil
}
