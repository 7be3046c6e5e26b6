package email

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Sender is the email delivery collaborator. Delivery is external to the
// invitation machine, failures are transient and retryable.
type Sender interface {
	Send(to, subject, body string) error
}

type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(addr, from string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// LogSender writes mail to the log instead of sending it. Used when no smtp
// relay is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: slog.Default().With("logger", "mail")}
}

func (s *LogSender) Send(to, subject, body string) error {
	s.logger.Info("mail", slog.String("to", to), slog.String("subject", subject), slog.String("body", body))

	return nil
}
