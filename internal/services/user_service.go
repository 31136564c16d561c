package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/oops"

	"github.com/isdelr/turbinix-be/internal/metrics"
	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	Register(ctx context.Context, params RegisterParams) (models.PublicUser, error)
	Authenticate(ctx context.Context, identifier, password string) (models.PublicUser, error)
}

// RegisterParams carries the fields of a registration request.
type RegisterParams struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// UserService provides business logic for user management.
type UserService struct {
	users   store.UserRepository
	hasher  PasswordHasher
	events  EventServiceProvider
	metrics *metrics.Metrics

	// dummyDigest is verified against when no user matches, so unknown
	// identifiers cost the same as wrong passwords.
	dummyDigest string
}

// NewUserService creates a new UserService. events and m may be nil.
func NewUserService(users store.UserRepository, hasher PasswordHasher, events EventServiceProvider, m *metrics.Metrics) *UserService {
	dummy, err := hasher.Hash("turbinix-timing-equalizer")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to compute dummy password digest")
	}
	return &UserService{
		users:       users,
		hasher:      hasher,
		events:      events,
		metrics:     m,
		dummyDigest: dummy,
	}
}

// UsernameAvailable reports whether no user holds username. It never mutates state.
func (s *UserService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		return true, nil
	default:
		return false, oops.Code("USER_LOOKUP_FAILED").With("username", username).Wrap(err)
	}
}

// Register creates a new user, hashing their password. A taken username is
// reported before a taken email.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (models.PublicUser, error) {
	user := models.User{
		Username:  strings.TrimSpace(params.Username),
		Email:     NormalizeEmail(params.Email),
		FirstName: strings.TrimSpace(params.FirstName),
		LastName:  strings.TrimSpace(params.LastName),
	}
	switch {
	case user.Email == "":
		return models.PublicUser{}, missingField("email")
	case user.Username == "":
		return models.PublicUser{}, missingField("username")
	case params.Password == "":
		return models.PublicUser{}, missingField("password")
	}

	digest, err := s.hasher.Hash(params.Password)
	if err != nil {
		return models.PublicUser{}, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	user.PasswordDigest = digest

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			s.metrics.Registration(metrics.OutcomeConflict)
			return models.PublicUser{}, oops.Code("USERNAME_TAKEN").With("username", user.Username).Wrap(ErrUsernameTaken)
		case errors.Is(err, store.ErrEmailTaken):
			s.metrics.Registration(metrics.OutcomeConflict)
			return models.PublicUser{}, oops.Code("EMAIL_TAKEN").With("email", user.Email).Wrap(ErrEmailTaken)
		default:
			s.metrics.Registration(metrics.OutcomeFailure)
			return models.PublicUser{}, oops.Code("USER_CREATE_FAILED").With("username", user.Username).Wrap(err)
		}
	}

	s.metrics.Registration(metrics.OutcomeSuccess)
	recordEvent(ctx, s.events, EventUserRegistered, LevelInfo, "user registered", user.Username)
	return user.Public(), nil
}

// Authenticate verifies a user's credentials. identifier is matched against
// usernames and emails; a username match is tried first. Every failure is
// ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (models.PublicUser, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.PublicUser{}, missingField("identifier")
	}
	if password == "" {
		return models.PublicUser{}, missingField("password")
	}

	candidates, err := s.candidates(ctx, identifier)
	if err != nil {
		return models.PublicUser{}, err
	}

	if len(candidates) == 0 {
		s.hasher.Verify(password, s.dummyDigest)
		s.metrics.Login(metrics.OutcomeFailure)
		return models.PublicUser{}, oops.Code("INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	for _, user := range candidates {
		ok, err := s.hasher.Verify(password, user.PasswordDigest)
		if err != nil {
			log.Warn().Err(err).Str("username", user.Username).Msg("Stored password digest could not be verified")
			continue
		}
		if !ok {
			continue
		}
		s.upgradeDigest(ctx, user, password)
		s.metrics.Login(metrics.OutcomeSuccess)
		return user.Public(), nil
	}

	s.metrics.Login(metrics.OutcomeFailure)
	return models.PublicUser{}, oops.Code("INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

// candidates returns the users matching identifier as given, followed by
// email matches on its normalized form.
func (s *UserService) candidates(ctx context.Context, identifier string) ([]models.User, error) {
	users, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").Wrap(err)
	}

	normalized := NormalizeEmail(identifier)
	if normalized == identifier {
		return users, nil
	}
	byEmail, err := s.users.FindByEmail(ctx, normalized)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return users, nil
	case err != nil:
		return nil, oops.Code("USER_LOOKUP_FAILED").Wrap(err)
	}
	for _, u := range users {
		if u.Username == byEmail.Username {
			return users, nil
		}
	}
	return append(users, byEmail), nil
}

// upgradeDigest re-hashes a legacy digest after a successful login. Failures
// are logged; the login still succeeds.
func (s *UserService) upgradeDigest(ctx context.Context, user models.User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordDigest) {
		return
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("Failed to hash password for upgrade")
		return
	}
	if err := s.users.UpdatePassword(ctx, user.Email, digest); err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("Failed to upgrade password digest")
		return
	}
	recordEvent(ctx, s.events, EventPasswordUpgraded, LevelInfo, "password digest upgraded", user.Username)
}
