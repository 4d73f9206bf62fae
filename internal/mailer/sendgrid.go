package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridMailer struct {
	fromName string
	fromMail string
	client   *sendgrid.Client
}

func NewSendGridMailer(apiKey, fromName, fromMail string) *SendGridMailer {
	return &SendGridMailer{
		fromName: fromName,
		fromMail: fromMail,
		client:   sendgrid.NewSendClient(apiKey),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, e Email) error {
	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail(m.fromName, m.fromMail))
	msg.Subject = e.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", e.To))
	msg.AddPersonalizations(p)

	// The API rejects empty content parts, so only present bodies go in.
	if e.Text != "" {
		msg.AddContent(mail.NewContent("text/plain", e.Text))
	}
	if e.HTML != "" {
		msg.AddContent(mail.NewContent("text/html", e.HTML))
	}

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid api status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
