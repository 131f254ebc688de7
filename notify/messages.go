package notify

import (
	"fmt"
	"strings"

	"github.com/warp/leave-engine/leave"
)

// Composer builds the notification messages for each request status.
// Recipients depend on the status: the manager for new requests, the HR
// address for manager-accepted and approved ones, the owner for denials
// and approvals.
type Composer struct {
	Sender    string // From address for every mail
	HRAddress string
}

func span(req *leave.Request) string {
	from := req.DateFrom.Format("02/01/2006")
	to := req.DateTo.Format("02/01/2006")
	if from == to {
		if req.Label != leave.FullDay {
			return fmt.Sprintf("%s (%s)", from, req.Label)
		}
		return from
	}
	return fmt.Sprintf("%s - %s", from, to)
}

func fullName(u *leave.User) string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// Pending notifies the owner's manager that a request awaits review.
// Falls back to the HR address for users without a manager.
func (c *Composer) Pending(req *leave.Request, owner, manager *leave.User) Message {
	to := c.HRAddress
	if manager != nil {
		to = manager.Email
	}
	return Message{
		From:    c.Sender,
		To:      to,
		Subject: fmt.Sprintf("Leave request from %s", fullName(owner)),
		Body: fmt.Sprintf("%s requested %s %s on %s.\nMessage: %s",
			fullName(owner), req.Days.String(), req.Type, span(req), req.Message),
	}
}

// Accepted notifies HR (copy to the owner) after a manager accepts.
func (c *Composer) Accepted(req *leave.Request, owner *leave.User) Message {
	return Message{
		From:    c.Sender,
		To:      c.HRAddress,
		Cc:      []string{owner.Email},
		Subject: fmt.Sprintf("Leave request from %s accepted by manager", fullName(owner)),
		Body: fmt.Sprintf("The request for %s %s on %s was accepted by the manager and awaits HR approval.",
			req.Days.String(), req.Type, span(req)),
	}
}

// Denied notifies the owner, including the refusal reason when given.
func (c *Composer) Denied(req *leave.Request, owner *leave.User) Message {
	body := fmt.Sprintf("Your request for %s %s on %s was denied.", req.Days.String(), req.Type, span(req))
	if req.Reason != "" {
		body += "\nReason: " + req.Reason
	}
	return Message{
		From:    c.Sender,
		To:      owner.Email,
		Subject: "Your leave request was denied",
		Body:    body,
	}
}

// Approved notifies the owner (copy to HR). automatic marks requests
// approved by the system after the manager-acceptance grace period.
func (c *Composer) Approved(req *leave.Request, owner *leave.User, automatic bool) Message {
	body := fmt.Sprintf("Your request for %s %s on %s is approved.", req.Days.String(), req.Type, span(req))
	if automatic {
		body += "\nThis request was approved automatically after manager acceptance."
	}
	return Message{
		From:    c.Sender,
		To:      owner.Email,
		Cc:      []string{c.HRAddress},
		Subject: "Your leave request is approved",
		Body:    body,
	}
}

// Reminder re-notifies the manager of a pending request about to start.
func (c *Composer) Reminder(req *leave.Request, owner, manager *leave.User) Message {
	to := c.HRAddress
	if manager != nil {
		to = manager.Email
	}
	return Message{
		From:    c.Sender,
		To:      to,
		Subject: fmt.Sprintf("Reminder: pending leave request from %s", fullName(owner)),
		Body: fmt.Sprintf("The request from %s for %s on %s starts soon and still awaits your review.",
			fullName(owner), req.Type, span(req)),
	}
}

// TrialPeriod notifies the manager that a report's trial period ends.
func (c *Composer) TrialPeriod(user, manager *leave.User, months int) Message {
	to := c.HRAddress
	if manager != nil {
		to = manager.Email
	}
	return Message{
		From:    c.Sender,
		To:      to,
		Subject: fmt.Sprintf("Trial period reminder for %s", fullName(user)),
		Body: fmt.Sprintf("%s reaches %d months since arrival (%s).",
			fullName(user), months, user.ArrivalDate.Format("02/01/2006")),
	}
}
