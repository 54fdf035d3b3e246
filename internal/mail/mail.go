// Package mail sends plain-text email over SMTP. The email tool and
// appointment notifications go through the Sender interface so tests can
// substitute a recorder.
package mail

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"regexp"
)

// Sender delivers one plain-text message.
type Sender interface {
	Send(to, subject, body string) error
}

// Config holds SMTP connection settings.
type Config struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPSender implements Sender over net/smtp. When no host is configured it
// logs the message instead of failing, so dev environments work without a
// mail server.
type SMTPSender struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an SMTP sender.
func New(cfg Config, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateAddress checks the basic shape of an email address.
func ValidateAddress(addr string) error {
	if !emailRegex.MatchString(addr) {
		return fmt.Errorf("mail: invalid address %q", addr)
	}
	return nil
}

// Send delivers one message.
func (s *SMTPSender) Send(to, subject, body string) error {
	if err := ValidateAddress(to); err != nil {
		return err
	}

	if s.cfg.Host == "" {
		s.logger.Info("mail: message not sent (dev mode, SMTP not configured)",
			"to", to, "subject", subject)
		return nil
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.cfg.From, to, subject, body,
	)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var smtpAuth smtp.Auth
	if s.cfg.User != "" {
		smtpAuth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, smtpAuth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}
