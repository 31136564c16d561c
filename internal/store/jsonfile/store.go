// Package jsonfile implements store.Store on top of flat JSON files. Every
// mutation rewrites the affected file as a whole through an atomic rename
// before the in-memory copy is updated, so a failed write leaves both the
// file and the process state untouched.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/sys/atomicwriter"
	"github.com/samber/oops"

	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

const (
	usersFile   = "users.json"
	codesFile   = "codes.json"
	entriesFile = "entries.json"
	eventsFile  = "events.json"

	// MaxEvents bounds the audit log kept in events.json.
	MaxEvents = 1000
)

// Store keeps all collections in memory behind a single mutex.
type Store struct {
	dir string

	mu      sync.Mutex
	users   []models.User
	codes   []models.VerificationCode
	entries []models.Entry
	events  []models.Event
}

var _ store.Store = (*Store)(nil)

// Open loads the collections found in dir, creating the directory if needed.
// Missing or empty files are treated as empty collections.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("dir", dir).Wrap(err)
	}

	s := &Store{dir: dir}
	files := []struct {
		name string
		dst  any
	}{
		{usersFile, &s.users},
		{codesFile, &s.codes},
		{entriesFile, &s.entries},
		{eventsFile, &s.events},
	}
	for _, f := range files {
		if err := loadJSON(filepath.Join(dir, f.name), f.dst); err != nil {
			return nil, oops.Code("STORE_OPEN_FAILED").With("file", f.name).Wrap(err)
		}
	}
	return s, nil
}

// Dir returns the directory holding the data files.
func (s *Store) Dir() string { return s.dir }

func (s *Store) Users() store.UserRepository { return &userRepo{s: s} }
func (s *Store) Codes() store.CodeRepository { return &codeRepo{s: s} }
func (s *Store) Entries() store.EntryRepository { return &entryRepo{s: s} }
func (s *Store) Events() store.EventRepository { return &eventRepo{s: s} }

// Close is a no-op; every mutation is already flushed.
func (s *Store) Close() error { return nil }

// save serializes v and atomically replaces the named file. Callers hold s.mu.
func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return oops.Code("STORE_ENCODE_FAILED").With("file", name).Wrap(err)
	}
	if err := atomicwriter.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("file", name).Wrap(err)
	}
	return nil
}

func loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
