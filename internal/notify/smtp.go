package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the relay settings. Port 587 negotiates STARTTLS.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     Sender
}

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPNotifier creates a new SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send dials the relay and delivers the message. gomail has no context
// support, so the dial runs in its own goroutine and Send returns as soon as
// ctx is done.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.cfg.Host == "" || n.cfg.From.Address == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", n.cfg.From.Address, n.cfg.From.Name)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		log.Info().Str("to", to).Str("subject", subject).Msg("Email sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}
