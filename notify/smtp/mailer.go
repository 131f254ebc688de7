// Package smtp implements notify.Mailer over SMTP using wneessen/go-mail.
package smtp

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/warp/leave-engine/notify"
)

// Mailer sends through one SMTP endpoint. A nil TLS policy defaults to
// opportunistic STARTTLS.
type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

func New(host string, port int, username, password string) *Mailer {
	return &Mailer{Host: host, Port: port, Username: username, Password: password}
}

func (m *Mailer) Send(ctx context.Context, msg notify.Message) error {
	mail := gomail.NewMsg()
	if err := mail.From(msg.From); err != nil {
		return &notify.PermanentError{Err: fmt.Errorf("invalid sender %q: %w", msg.From, err)}
	}
	if err := mail.To(msg.To); err != nil {
		return &notify.PermanentError{Err: fmt.Errorf("invalid recipient %q: %w", msg.To, err)}
	}
	for _, cc := range msg.Cc {
		if err := mail.Cc(cc); err != nil {
			return &notify.PermanentError{Err: fmt.Errorf("invalid cc %q: %w", cc, err)}
		}
	}
	mail.Subject(msg.Subject)
	mail.SetBodyString(gomail.TypeTextPlain, msg.Body)

	opts := []gomail.Option{
		gomail.WithPort(m.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.Username),
			gomail.WithPassword(m.Password),
		)
	}

	client, err := gomail.NewClient(m.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, mail); err != nil {
		var sendErr *gomail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return &notify.PermanentError{Err: err}
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
