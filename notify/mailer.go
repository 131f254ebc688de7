// Package notify defines the mail transport contract and composes the
// notification messages the workers send. SMTP mechanics live in the
// smtp subpackage; the core treats sending as fire-and-forget and lets
// errors bubble to the worker's error handling.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Message is one outbound mail.
type Message struct {
	From    string
	To      string
	Cc      []string
	Subject string
	Body    string
}

// Mailer sends mail. Implementations: smtp.Mailer (production),
// test fakes.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer logs messages instead of sending them. Used when no SMTP
// transport is configured, so the pipeline still marks notifications
// done in development setups.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Printf("[Mail] to=%s subject=%q (transport disabled)", msg.To, msg.Subject)
	return nil
}

// PermanentError wraps a send failure that retrying will never fix
// (malformed recipient, rejected sender). Workers escalate these to the
// ERROR status instead of leaving the request for the next poll.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent mail failure: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is unrecoverable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
