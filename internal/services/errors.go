package services

import "errors"

// Domain errors returned by the services. Handlers classify them with
// errors.Is; most are wrapped with an oops code carrying extra context.
var (
	ErrValidation         = errors.New("validation failed")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrThrottled          = errors.New("code requested too recently")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrCodeNotFound       = errors.New("invalid verification code")
	ErrDeliveryFailed     = errors.New("failed to deliver verification code")
	ErrInvalidIndex       = errors.New("invalid index")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrEmptyPassword      = errors.New("password cannot be empty")
)
