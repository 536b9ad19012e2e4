// Package messaging sends e-mail through SendGrid and SMS through Twilio.
package messaging

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kirinyoku/parkgo/internal/service/notify"
)

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides the API host, e.g. https://api.eu.sendgrid.com.
	Host string
}

// SendGridMailer builds a client per message: the SDK client keeps the
// request body on itself and cannot be shared between goroutines.
type SendGridMailer struct {
	key  string
	host string
	from *mail.Email
}

var _ notify.Mailer = (*SendGridMailer)(nil)

func NewSendGridMailer(cfg SendGridConfig) *SendGridMailer {
	name := cfg.FromName
	if name == "" {
		name = "ParkGo"
	}

	return &SendGridMailer{
		key:  cfg.APIKey,
		host: cfg.Host,
		from: mail.NewEmail(name, cfg.FromEmail),
	}
}

func (m *SendGridMailer) SendEmail(ctx context.Context, e notify.Email) error {
	const op = "messaging.SendGridMailer.SendEmail"

	msg := mail.NewSingleEmail(m.from, e.Subject, mail.NewEmail(e.ToName, e.ToEmail), e.Text, e.HTML)

	req := sendgrid.GetRequest(m.key, "/v3/mail/send", m.host)
	req.Method = "POST"
	client := &sendgrid.Client{Request: req}

	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, resp.Body)
	}

	return nil
}
