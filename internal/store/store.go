// Package store defines the persistence contracts for users, verification
// codes, entries and events. Implementations live in the jsonfile and sqlite
// subpackages; each one serializes its own read-modify-write sequences.
package store

import (
	"context"
	"errors"

	"github.com/isdelr/turbinix-be/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken is returned by Create when the username is in use.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrEmailTaken is returned by Create when the email is in use.
	ErrEmailTaken = errors.New("email already registered")

	// ErrIndexOutOfRange is returned when a positional entry reference
	// does not address any of the owner's entries.
	ErrIndexOutOfRange = errors.New("entry index out of range")
)

// Store groups the repositories backed by one storage medium.
type Store interface {
	Users() UserRepository
	Codes() CodeRepository
	Entries() EntryRepository
	Events() EventRepository
	Close() error
}

// UserRepository persists user accounts.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)

	// FindByIdentifier returns every user whose username or email equals id.
	// A username match is always ordered before an email match.
	FindByIdentifier(ctx context.Context, id string) ([]models.User, error)

	// Create inserts the user, checking the username before the email.
	Create(ctx context.Context, user models.User) error

	UpdatePassword(ctx context.Context, email, digest string) error
}

// CodeRepository holds at most one verification code per address.
type CodeRepository interface {
	Get(ctx context.Context, address string) (models.VerificationCode, error)

	// Put stores the code, replacing any record for the same address.
	Put(ctx context.Context, code models.VerificationCode) error

	Delete(ctx context.Context, address string) error
}

// EntryRef addresses one entry of an owner, either by its stable ID or by
// its position in the owner's ordered list.
type EntryRef struct {
	ID    string
	Index int
}

// ByIndex reports whether the reference is positional.
func (r EntryRef) ByIndex() bool {
	return r.ID == ""
}

// EntryRepository persists user-owned entries in insertion order.
type EntryRepository interface {
	ListByOwner(ctx context.Context, owner string) ([]models.Entry, error)
	Append(ctx context.Context, entry models.Entry) error

	// Replace swaps the fields of the referenced entry and returns the stored entry.
	Replace(ctx context.Context, owner string, ref EntryRef, fields map[string]any) (models.Entry, error)

	Remove(ctx context.Context, owner string, ref EntryRef) error
}

// EventRepository is an append-only audit log.
type EventRepository interface {
	Append(ctx context.Context, event models.Event) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}
