// Package notify holds the thin email and Trello sinks behind
// external.Notifier: both are registered as event-consumer handlers
// (internal/services/notify), so a failed send is just a Failed consumer
// row, never a crashed dispatcher goroutine.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/b2pix/engine/internal/apperr"
)

// EmailSink sends plaintext notifications over SMTP.
type EmailSink struct {
	Host string
	Port int
	From string
	Auth smtp.Auth
	to   []string
}

// NewEmailSink builds an EmailSink authenticating with apiKey as the SMTP
// password, addressed to recipients.
func NewEmailSink(host string, port int, from, apiKey string, recipients []string) *EmailSink {
	return &EmailSink{
		Host: host,
		Port: port,
		From: from,
		Auth: smtp.PlainAuth("", from, apiKey, host),
		to:   recipients,
	}
}

func (s *EmailSink) Notify(_ context.Context, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.From, joinAddrs(s.to), subject, body)
	if err := smtp.SendMail(addr, s.Auth, s.From, s.to, []byte(msg)); err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "send email %q", subject)
	}
	return nil
}

func joinAddrs(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
