package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/turbinix-be/internal/metrics"
	"github.com/isdelr/turbinix-be/internal/notify"
)

type verificationFixture struct {
	verify *VerificationService
	users  *UserService
	events *EventService
	sender *fakeDeliverer
	clock  *fakeClock
}

func newVerificationFixture(t *testing.T) *verificationFixture {
	t.Helper()
	st := newTestStore(t)
	clock := newFakeClock()
	registry := NewCodeRegistry(st.Codes())
	registry.now = clock.Now

	events := NewEventService(st.Events())
	m := metrics.New(prometheus.NewRegistry())
	sender := &fakeDeliverer{}
	hasher := SHA256Hasher{}

	return &verificationFixture{
		verify: NewVerificationService(registry, st.Users(), hasher, sender, events, m),
		users:  NewUserService(st.Users(), hasher, events, m),
		events: events,
		sender: sender,
		clock:  clock,
	}
}

func (f *verificationFixture) registerAlice(t *testing.T) {
	t.Helper()
	_, err := f.users.Register(context.Background(), RegisterParams{
		Email: "a@x.com", Username: "alice", Password: "pw", FirstName: "A", LastName: "L",
	})
	require.NoError(t, err)
}

func TestVerificationService_RequestAndConfirm(t *testing.T) {
	ctx := context.Background()
	f := newVerificationFixture(t)

	require.NoError(t, f.verify.RequestCode(ctx, "  A@X.com "))
	msg := f.sender.last(t)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, metrics.PurposeVerify, msg.Kind)
	code := codeFrom(t, msg)

	res, err := f.verify.ConfirmCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.Equal(t, VerifyValid, res)

	f.clock.Advance(10 * time.Second)
	assert.ErrorIs(t, f.verify.RequestCode(ctx, "a@x.com"), ErrThrottled)
	assert.Equal(t, 1, f.sender.count(), "a throttled request sends nothing")

	f.clock.Advance(591 * time.Second)
	res, err = f.verify.ConfirmCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.Equal(t, VerifyExpired, res)

	res, err = f.verify.ConfirmCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.Equal(t, VerifyNotFound, res)
}

func TestVerificationService_DeliveryFailureKeepsCode(t *testing.T) {
	ctx := context.Background()
	f := newVerificationFixture(t)
	f.sender.err = errors.New("smtp down")

	err := f.verify.RequestCode(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrDeliveryFailed)

	code := codeFrom(t, f.sender.last(t))
	res, err := f.verify.ConfirmCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.Equal(t, VerifyValid, res)
}

func TestVerificationService_RequestResetCodeUnknownEmail(t *testing.T) {
	f := newVerificationFixture(t)

	err := f.verify.RequestResetCode(context.Background(), "ghost@x.com")
	require.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 0, f.sender.count())
}

func TestVerificationService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newVerificationFixture(t)
	f.registerAlice(t)

	require.NoError(t, f.verify.RequestResetCode(ctx, "a@x.com"))
	msg := f.sender.last(t)
	assert.Equal(t, metrics.PurposeReset, msg.Kind)
	code := codeFrom(t, msg)

	require.NoError(t, f.verify.ResetPassword(ctx, "a@x.com", code, "new"))

	_, err := f.users.Authenticate(ctx, "alice", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	user, err := f.users.Authenticate(ctx, "alice", "new")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	err = f.verify.ResetPassword(ctx, "a@x.com", code, "again")
	assert.ErrorIs(t, err, ErrCodeNotFound, "a reset code is single use")
}

func TestVerificationService_ResetPasswordExpired(t *testing.T) {
	ctx := context.Background()
	f := newVerificationFixture(t)
	f.registerAlice(t)

	require.NoError(t, f.verify.RequestResetCode(ctx, "a@x.com"))
	code := codeFrom(t, f.sender.last(t))

	f.clock.Advance(CodeTTL + time.Second)
	assert.ErrorIs(t, f.verify.ResetPassword(ctx, "a@x.com", code, "new"), ErrCodeExpired)
}

func TestVerificationService_ResetPasswordUnknownUserKeepsCode(t *testing.T) {
	ctx := context.Background()
	f := newVerificationFixture(t)

	require.NoError(t, f.verify.RequestCode(ctx, "ghost@x.com"))
	code := codeFrom(t, f.sender.last(t))

	err := f.verify.ResetPassword(ctx, "ghost@x.com", code, "new")
	require.ErrorIs(t, err, ErrUserNotFound)

	res, err := f.verify.ConfirmCode(ctx, "ghost@x.com", code)
	require.NoError(t, err)
	assert.Equal(t, VerifyValid, res)
}

func TestVerificationService_Validation(t *testing.T) {
	ctx := context.Background()
	f := newVerificationFixture(t)

	assert.ErrorIs(t, f.verify.RequestCode(ctx, " "), ErrValidation)
	assert.ErrorIs(t, f.verify.RequestResetCode(ctx, ""), ErrValidation)

	_, err := f.verify.ConfirmCode(ctx, "a@x.com", "")
	assert.ErrorIs(t, err, ErrValidation)

	assert.ErrorIs(t, f.verify.ResetPassword(ctx, "a@x.com", "123456", ""), ErrValidation)
	assert.ErrorIs(t, f.verify.ResetPassword(ctx, "", "123456", "pw"), ErrValidation)
}

func TestVerificationService_RecordsEvents(t *testing.T) {
	ctx := context.Background()
	f := newVerificationFixture(t)
	f.registerAlice(t)

	require.NoError(t, f.verify.RequestResetCode(ctx, "a@x.com"))
	require.NoError(t, f.verify.ResetPassword(ctx, "a@x.com", codeFrom(t, f.sender.last(t)), "new"))

	events, err := f.events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{EventPasswordReset, EventCodeIssued, EventUserRegistered}, types)
}

func TestDeliveryReporter(t *testing.T) {
	ctx := context.Background()
	events := NewEventService(newTestStore(t).Events())
	report := DeliveryReporter(events, nil)

	report(ctx, notify.Result{Message: notify.Message{To: "a@x.com", Kind: "verify"}, Attempts: 1})
	report(ctx, notify.Result{Message: notify.Message{To: "b@x.com", Kind: "reset"}, Attempts: 3, Err: errors.New("smtp down")})

	got, err := events.GetRecentEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, EventNotificationFailed, got[0].Type)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, "b@x.com", got[0].Subject)
	assert.Contains(t, got[0].Message, "3 attempt(s)")

	assert.Equal(t, EventNotificationSent, got[1].Type)
	assert.Equal(t, "a@x.com", got[1].Subject)
}
