package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/oops"

	"github.com/isdelr/turbinix-be/internal/metrics"
	"github.com/isdelr/turbinix-be/internal/notify"
	"github.com/isdelr/turbinix-be/internal/store"
)

// Deliverer hands a message to the notification gateway. *notify.Dispatcher
// implements it.
type Deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) error
}

// VerificationServiceProvider defines the interface for the code workflows.
type VerificationServiceProvider interface {
	RequestCode(ctx context.Context, email string) error
	RequestResetCode(ctx context.Context, email string) error
	ConfirmCode(ctx context.Context, email, code string) (VerifyResult, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// VerificationService issues and checks email verification and password
// reset codes.
type VerificationService struct {
	registry *CodeRegistry
	users    store.UserRepository
	hasher   PasswordHasher
	sender   Deliverer
	events   EventServiceProvider
	metrics  *metrics.Metrics
}

// NewVerificationService creates a new VerificationService. events and m may be nil.
func NewVerificationService(registry *CodeRegistry, users store.UserRepository, hasher PasswordHasher, sender Deliverer, events EventServiceProvider, m *metrics.Metrics) *VerificationService {
	return &VerificationService{
		registry: registry,
		users:    users,
		hasher:   hasher,
		sender:   sender,
		events:   events,
		metrics:  m,
	}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestCode issues a verification code for email and sends it. A failed
// send does not revoke the issued code.
func (s *VerificationService) RequestCode(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return missingField("email")
	}
	return s.issueAndSend(ctx, email, metrics.PurposeVerify)
}

// RequestResetCode is RequestCode for password resets; the address must
// belong to a registered user.
func (s *VerificationService) RequestResetCode(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return missingField("email")
	}

	if _, err := s.users.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.CodeIssued(metrics.PurposeReset, metrics.OutcomeNotFound)
			return oops.Code("USER_NOT_FOUND").With("email", email).Wrap(ErrUserNotFound)
		}
		return oops.Code("USER_LOOKUP_FAILED").With("email", email).Wrap(err)
	}
	return s.issueAndSend(ctx, email, metrics.PurposeReset)
}

func (s *VerificationService) issueAndSend(ctx context.Context, email, purpose string) error {
	code, err := s.registry.Issue(ctx, email)
	if err != nil {
		if errors.Is(err, ErrThrottled) {
			s.metrics.CodeIssued(purpose, metrics.OutcomeThrottled)
		} else {
			s.metrics.CodeIssued(purpose, metrics.OutcomeFailure)
		}
		return err
	}
	s.metrics.CodeIssued(purpose, metrics.OutcomeSuccess)
	s.record(ctx, EventCodeIssued, LevelInfo, purpose+" code issued", email)

	msg := notify.Message{To: email, Kind: purpose, Subject: verifySubject, Body: verifyBody(code)}
	if purpose == metrics.PurposeReset {
		msg.Subject, msg.Body = resetSubject, resetBody(code)
	}
	if err := s.sender.Deliver(ctx, msg); err != nil {
		return oops.
			Code("DELIVERY_FAILED").
			With("address", email).
			With("purpose", purpose).
			Wrap(fmt.Errorf("%w: %w", ErrDeliveryFailed, err))
	}
	return nil
}

// ConfirmCode reports whether code is the live code for email. A valid code
// stays usable until it expires or is consumed by a reset.
func (s *VerificationService) ConfirmCode(ctx context.Context, email, code string) (VerifyResult, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return VerifyNotFound, missingField("email")
	}
	if code == "" {
		return VerifyNotFound, missingField("code")
	}

	res, err := s.registry.Verify(ctx, email, code)
	if err != nil {
		return VerifyNotFound, err
	}
	s.metrics.CodeVerified(res.String())
	return res, nil
}

// ResetPassword replaces the password of the user owning email. The code is
// consumed only when the update succeeds, so a reset for an unknown user
// leaves it in place.
func (s *VerificationService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	switch {
	case email == "":
		return missingField("email")
	case code == "":
		return missingField("code")
	case newPassword == "":
		return missingField("new_password")
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}

	err = s.registry.ConsumeWith(ctx, email, code, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, email, digest); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return oops.Code("USER_NOT_FOUND").With("email", email).Wrap(ErrUserNotFound)
			}
			return oops.Code("PASSWORD_UPDATE_FAILED").With("email", email).Wrap(err)
		}
		return nil
	})
	switch {
	case err == nil:
		s.metrics.PasswordReset(metrics.OutcomeSuccess)
		s.record(ctx, EventPasswordReset, LevelInfo, "password reset", email)
		return nil
	case errors.Is(err, ErrCodeExpired):
		s.metrics.PasswordReset(metrics.OutcomeExpired)
	case errors.Is(err, ErrCodeNotFound):
		s.metrics.PasswordReset(metrics.OutcomeInvalid)
	case errors.Is(err, ErrUserNotFound):
		s.metrics.PasswordReset(metrics.OutcomeNotFound)
	default:
		s.metrics.PasswordReset(metrics.OutcomeFailure)
	}
	return err
}

func (s *VerificationService) record(ctx context.Context, eventType, level, message, subject string) {
	recordEvent(ctx, s.events, eventType, level, message, subject)
}

// DeliveryReporter returns a notify.StatusFunc that records every delivery
// outcome as an event and a metric.
func DeliveryReporter(events EventServiceProvider, m *metrics.Metrics) notify.StatusFunc {
	return func(ctx context.Context, res notify.Result) {
		if res.Err != nil {
			m.NotificationSent(metrics.OutcomeFailure)
			recordEvent(ctx, events, EventNotificationFailed, LevelError,
				fmt.Sprintf("%s notification failed after %d attempt(s): %v", res.Message.Kind, res.Attempts, res.Err),
				res.Message.To)
			return
		}
		m.NotificationSent(metrics.OutcomeSuccess)
		recordEvent(ctx, events, EventNotificationSent, LevelInfo,
			fmt.Sprintf("%s notification delivered", res.Message.Kind), res.Message.To)
	}
}

// recordEvent appends an event, logging instead of failing when the log
// cannot be written.
func recordEvent(ctx context.Context, events EventServiceProvider, eventType, level, message, subject string) {
	if events == nil {
		return
	}
	if err := events.CreateEvent(ctx, eventType, level, message, subject); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
}

func missingField(field string) error {
	return oops.Code("VALIDATION_FAILED").With("field", field).Wrapf(ErrValidation, "%s is required", field)
}
