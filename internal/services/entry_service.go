package services

import (
	"context"
	"errors"
	"maps"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

// EntryServiceProvider defines the interface for entry services.
type EntryServiceProvider interface {
	List(ctx context.Context, owner string) ([]models.Entry, error)
	Create(ctx context.Context, owner string, fields map[string]any) (models.Entry, error)
	Update(ctx context.Context, owner, ref string, fields map[string]any) (models.Entry, error)
	Delete(ctx context.Context, owner, ref string) error
}

// EntryService manages user-owned entries.
type EntryService struct {
	entries store.EntryRepository
}

// NewEntryService creates a new EntryService.
func NewEntryService(entries store.EntryRepository) *EntryService {
	return &EntryService{entries: entries}
}

// ParseEntryRef accepts either an entry id or a non-negative position in
// the owner's list.
func ParseEntryRef(raw string) (store.EntryRef, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return store.EntryRef{}, oops.Code("INVALID_INDEX").With("ref", raw).Wrap(ErrInvalidIndex)
		}
		return store.EntryRef{Index: n}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return store.EntryRef{}, oops.Code("INVALID_INDEX").With("ref", raw).Wrap(ErrInvalidIndex)
	}
	return store.EntryRef{ID: id.String()}, nil
}

// List returns the owner's entries in insertion order.
func (s *EntryService) List(ctx context.Context, owner string) ([]models.Entry, error) {
	entries, err := s.entries.ListByOwner(ctx, owner)
	if err != nil {
		return nil, oops.Code("ENTRY_LIST_FAILED").With("owner", owner).Wrap(err)
	}
	return entries, nil
}

// Create appends a new entry for owner. Client-supplied "id" and "user"
// keys are replaced.
func (s *EntryService) Create(ctx context.Context, owner string, fields map[string]any) (models.Entry, error) {
	if strings.TrimSpace(owner) == "" {
		return models.Entry{}, missingField("user")
	}
	entry := models.Entry{
		ID:     uuid.New().String(),
		User:   owner,
		Fields: sanitizeFields(fields),
	}
	if err := s.entries.Append(ctx, entry); err != nil {
		return models.Entry{}, oops.Code("ENTRY_CREATE_FAILED").With("owner", owner).Wrap(err)
	}
	return entry, nil
}

// Update replaces the fields of the referenced entry. Its id and owner are kept.
func (s *EntryService) Update(ctx context.Context, owner, ref string, fields map[string]any) (models.Entry, error) {
	r, err := ParseEntryRef(ref)
	if err != nil {
		return models.Entry{}, err
	}
	entry, err := s.entries.Replace(ctx, owner, r, sanitizeFields(fields))
	if err != nil {
		return models.Entry{}, mapEntryError(err, owner, ref)
	}
	return entry, nil
}

// Delete removes the referenced entry.
func (s *EntryService) Delete(ctx context.Context, owner, ref string) error {
	r, err := ParseEntryRef(ref)
	if err != nil {
		return err
	}
	if err := s.entries.Remove(ctx, owner, r); err != nil {
		return mapEntryError(err, owner, ref)
	}
	return nil
}

func sanitizeFields(fields map[string]any) map[string]any {
	out := maps.Clone(fields)
	if out == nil {
		out = map[string]any{}
	}
	delete(out, "id")
	delete(out, "user")
	return out
}

func mapEntryError(err error, owner, ref string) error {
	switch {
	case errors.Is(err, store.ErrIndexOutOfRange):
		return oops.Code("INVALID_INDEX").With("owner", owner).With("ref", ref).Wrap(ErrInvalidIndex)
	case errors.Is(err, store.ErrNotFound):
		return oops.Code("ENTRY_NOT_FOUND").With("owner", owner).With("ref", ref).Wrap(ErrEntryNotFound)
	default:
		return oops.Code("ENTRY_WRITE_FAILED").With("owner", owner).With("ref", ref).Wrap(err)
	}
}
