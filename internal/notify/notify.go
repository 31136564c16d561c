// Package notify delivers verification messages over email transports.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned by a notifier whose transport settings are
// incomplete. It is never retried.
var ErrNotConfigured = errors.New("notifier not configured")

// Notifier sends one message to one address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Sender describes the From header of outgoing mail.
type Sender struct {
	Address string
	Name    string
}

// String formats the sender as `Name <address>`.
func (s Sender) String() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// LogNotifier writes messages to the log instead of sending them. It is the
// development default.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}
	log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("Notification (log transport)")
	return nil
}
