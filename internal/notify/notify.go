// Package notify delivers plain-text operator notifications, used only for
// fatal failures.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"gitlab.com/yelinaung/tipbot/internal/logger"
)

// Notifier sends a message to the operator.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// SMTPNotifier sends mail through a plain SMTP endpoint.
type SMTPNotifier struct {
	host     string
	username string
	password string
	from     string
	to       string
}

// NewSMTPNotifier creates an SMTPNotifier. host is host:port.
func NewSMTPNotifier(host, username, password, from, to string) *SMTPNotifier {
	return &SMTPNotifier{host: host, username: username, password: password, from: from, to: to}
}

// Notify sends the message.
func (n *SMTPNotifier) Notify(_ context.Context, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + n.to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if n.username != "" {
		hostname := n.host
		if idx := strings.Index(hostname, ":"); idx != -1 {
			hostname = hostname[:idx]
		}
		auth = smtp.PlainAuth("", n.username, n.password, hostname)
	}

	if err := smtp.SendMail(n.host, auth, n.from, []string{n.to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send operator mail: %w", err)
	}
	return nil
}

// LogNotifier only logs. Used when operator mail is disabled.
type LogNotifier struct{}

// Notify logs the notification at error level.
func (LogNotifier) Notify(_ context.Context, subject, body string) error {
	logger.Log.Error().Str("subject", subject).Str("body", body).Msg("Operator notification")
	return nil
}

var (
	_ Notifier = (*SMTPNotifier)(nil)
	_ Notifier = LogNotifier{}
)
