package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Mailer sends plain-text e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ResendMailer delivers through Resend. In dev mode nothing leaves the
// process; the message is logged instead.
type ResendMailer struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
}

func NewResendMailer(apiKey, fromEmail string, isDev bool) *ResendMailer {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}
	return &ResendMailer{client: client, fromEmail: fromEmail, isDev: isDev}
}

func (m *ResendMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.isDev {
		slog.Info("email sent (dev mode)", "to", to, "subject", subject)
		return nil
	}
	if m.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    m.fromEmail,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}
	_, err := m.client.Emails.SendWithContext(ctx, params)
	if err == nil {
		slog.Info("email sent", "to", to, "subject", subject)
	}
	return err
}

func notificationEmailTemplate(name, title, message, appURL string) (string, string) {
	subject := fmt.Sprintf("[Case Manager] %s", title)
	body := fmt.Sprintf(`Hi %s,

%s

Open the case manager to see the details:
%s/notifications

You are receiving this because you have an account on the case manager.`, name, message, appURL)

	return subject, body
}
