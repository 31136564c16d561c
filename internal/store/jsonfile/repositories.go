package jsonfile

import (
	"context"
	"maps"
	"slices"

	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

type userRepo struct{ s *Store }

func (r *userRepo) FindByUsername(_ context.Context, username string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (r *userRepo) FindByIdentifier(_ context.Context, id string) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var byUsername, byEmail []models.User
	for _, u := range r.s.users {
		switch {
		case u.Username == id:
			byUsername = append(byUsername, u)
		case u.Email == id:
			byEmail = append(byEmail, u)
		}
	}
	return append(byUsername, byEmail...), nil
}

func (r *userRepo) Create(_ context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Username == user.Username {
			return store.ErrUsernameTaken
		}
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return store.ErrEmailTaken
		}
	}

	next := append(slices.Clone(r.s.users), user)
	if err := r.s.save(usersFile, next); err != nil {
		return err
	}
	r.s.users = next
	return nil
}

func (r *userRepo) UpdatePassword(_ context.Context, email, digest string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i := slices.IndexFunc(r.s.users, func(u models.User) bool { return u.Email == email })
	if i < 0 {
		return store.ErrNotFound
	}

	next := slices.Clone(r.s.users)
	next[i].PasswordDigest = digest
	if err := r.s.save(usersFile, next); err != nil {
		return err
	}
	r.s.users = next
	return nil
}

type codeRepo struct{ s *Store }

func (r *codeRepo) Get(_ context.Context, address string) (models.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, c := range r.s.codes {
		if c.Address == address {
			return c, nil
		}
	}
	return models.VerificationCode{}, store.ErrNotFound
}

func (r *codeRepo) Put(_ context.Context, code models.VerificationCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	next := slices.DeleteFunc(slices.Clone(r.s.codes), func(c models.VerificationCode) bool {
		return c.Address == code.Address
	})
	next = append(next, code)
	if err := r.s.save(codesFile, next); err != nil {
		return err
	}
	r.s.codes = next
	return nil
}

func (r *codeRepo) Delete(_ context.Context, address string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	next := slices.DeleteFunc(slices.Clone(r.s.codes), func(c models.VerificationCode) bool {
		return c.Address == address
	})
	if len(next) == len(r.s.codes) {
		return nil
	}
	if err := r.s.save(codesFile, next); err != nil {
		return err
	}
	r.s.codes = next
	return nil
}

type entryRepo struct{ s *Store }

func (r *entryRepo) ListByOwner(_ context.Context, owner string) ([]models.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []models.Entry{}
	for _, e := range r.s.entries {
		if e.User == owner {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (r *entryRepo) Append(_ context.Context, entry models.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	next := append(slices.Clone(r.s.entries), entry.Clone())
	if err := r.s.save(entriesFile, next); err != nil {
		return err
	}
	r.s.entries = next
	return nil
}

func (r *entryRepo) Replace(_ context.Context, owner string, ref store.EntryRef, fields map[string]any) (models.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i, err := r.locate(owner, ref)
	if err != nil {
		return models.Entry{}, err
	}

	updated := models.Entry{ID: r.s.entries[i].ID, User: owner, Fields: maps.Clone(fields)}
	next := slices.Clone(r.s.entries)
	next[i] = updated
	if err := r.s.save(entriesFile, next); err != nil {
		return models.Entry{}, err
	}
	r.s.entries = next
	return updated.Clone(), nil
}

func (r *entryRepo) Remove(_ context.Context, owner string, ref store.EntryRef) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i, err := r.locate(owner, ref)
	if err != nil {
		return err
	}

	next := slices.Delete(slices.Clone(r.s.entries), i, i+1)
	if err := r.s.save(entriesFile, next); err != nil {
		return err
	}
	r.s.entries = next
	return nil
}

// locate maps an owner-relative reference to a position in the global slice.
func (r *entryRepo) locate(owner string, ref store.EntryRef) (int, error) {
	seen := 0
	for i, e := range r.s.entries {
		if e.User != owner {
			continue
		}
		if ref.ByIndex() {
			if seen == ref.Index {
				return i, nil
			}
			seen++
			continue
		}
		if e.ID == ref.ID {
			return i, nil
		}
	}
	if ref.ByIndex() {
		return -1, store.ErrIndexOutOfRange
	}
	return -1, store.ErrNotFound
}

type eventRepo struct{ s *Store }

func (r *eventRepo) Append(_ context.Context, event models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	next := append(slices.Clone(r.s.events), event)
	if len(next) > MaxEvents {
		next = next[len(next)-MaxEvents:]
	}
	if err := r.s.save(eventsFile, next); err != nil {
		return err
	}
	r.s.events = next
	return nil
}

func (r *eventRepo) Recent(_ context.Context, limit int) ([]models.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if limit <= 0 {
		return []models.Event{}, nil
	}
	out := make([]models.Event, 0, min(limit, len(r.s.events)))
	for i := len(r.s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.s.events[i])
	}
	return out, nil
}
