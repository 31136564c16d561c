// Package sqlite implements store.Store on an SQLite database opened through
// the database package. Read-modify-write sequences run inside transactions;
// the single-connection pool serializes them.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/isdelr/turbinix-be/internal/database"
	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

// Store wraps an open *sql.DB.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := database.New(path)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, oops.Code("STORE_MIGRATE_FAILED").With("path", path).Wrap(err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Users() store.UserRepository { return &userRepo{db: s.db} }
func (s *Store) Codes() store.CodeRepository { return &codeRepo{db: s.db} }
func (s *Store) Entries() store.EntryRepository { return &entryRepo{db: s.db} }
func (s *Store) Events() store.EventRepository { return &eventRepo{db: s.db} }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// withTx runs fn in a transaction, committing only when fn succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("STORE_TX_FAILED").Wrap(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return oops.Code("STORE_TX_FAILED").Wrap(err)
	}
	return nil
}

type userRepo struct{ db *sql.DB }

const userColumns = "username, email, password_digest, first_name, last_name"

func scanUser(scanner interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := scanner.Scan(&u.Username, &u.Email, &u.PasswordDigest, &u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, store.ErrNotFound
	}
	return u, err
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

func (r *userRepo) FindByIdentifier(ctx context.Context, id string) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE username = ? OR email = ?
		ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END`, id, id, id)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) Create(ctx context.Context, user models.User) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", user.Username).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return store.ErrUsernameTaken
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", user.Email).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return store.ErrEmailTaken
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO users("+userColumns+") VALUES(?, ?, ?, ?, ?)",
			user.Username, user.Email, user.PasswordDigest, user.FirstName, user.LastName)
		return err
	})
}

func (r *userRepo) UpdatePassword(ctx context.Context, email, digest string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password_digest = ? WHERE email = ?", digest, email)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrap(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type codeRepo struct{ db *sql.DB }

func (r *codeRepo) Get(ctx context.Context, address string) (models.VerificationCode, error) {
	var c models.VerificationCode
	var issued int64
	err := r.db.QueryRowContext(ctx,
		"SELECT address, code, issued_at FROM verification_codes WHERE address = ?", address).
		Scan(&c.Address, &c.Code, &issued)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VerificationCode{}, store.ErrNotFound
	}
	if err != nil {
		return models.VerificationCode{}, oops.Code("STORE_QUERY_FAILED").Wrap(err)
	}
	c.IssuedAt = time.Unix(0, issued)
	return c, nil
}

func (r *codeRepo) Put(ctx context.Context, code models.VerificationCode) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO verification_codes (address, code, issued_at) VALUES (?, ?, ?)",
		code.Address, code.Code, code.IssuedAt.UnixNano())
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrap(err)
	}
	return nil
}

func (r *codeRepo) Delete(ctx context.Context, address string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM verification_codes WHERE address = ?", address); err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrap(err)
	}
	return nil
}

type entryRepo struct{ db *sql.DB }

func (r *entryRepo) ListByOwner(ctx context.Context, owner string) ([]models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, fields_json FROM entries WHERE owner = ? ORDER BY seq", owner)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		var id, fieldsJSON string
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			return nil, err
		}
		e := models.Entry{ID: id, User: owner}
		if err := json.Unmarshal([]byte(fieldsJSON), &e.Fields); err != nil {
			return nil, oops.Code("STORE_DECODE_FAILED").With("entry_id", id).Wrap(err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *entryRepo) Append(ctx context.Context, entry models.Entry) error {
	fieldsJSON, err := json.Marshal(entry.Fields)
	if err != nil {
		return oops.Code("STORE_ENCODE_FAILED").Wrap(err)
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO entries (id, owner, fields_json) VALUES (?, ?, ?)",
		entry.ID, entry.User, string(fieldsJSON))
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrap(err)
	}
	return nil
}

func (r *entryRepo) Replace(ctx context.Context, owner string, ref store.EntryRef, fields map[string]any) (models.Entry, error) {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return models.Entry{}, oops.Code("STORE_ENCODE_FAILED").Wrap(err)
	}

	var updated models.Entry
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := locate(ctx, tx, owner, ref)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE entries SET fields_json = ? WHERE id = ?", string(fieldsJSON), id); err != nil {
			return err
		}
		updated = models.Entry{ID: id, User: owner, Fields: fields}
		return nil
	})
	if err != nil {
		return models.Entry{}, err
	}
	return updated.Clone(), nil
}

func (r *entryRepo) Remove(ctx context.Context, owner string, ref store.EntryRef) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := locate(ctx, tx, owner, ref)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
		return err
	})
}

// locate resolves an owner-relative reference to an entry id inside tx.
func locate(ctx context.Context, tx *sql.Tx, owner string, ref store.EntryRef) (string, error) {
	var id string
	var err error
	if ref.ByIndex() {
		if ref.Index < 0 {
			return "", store.ErrIndexOutOfRange
		}
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM entries WHERE owner = ? ORDER BY seq LIMIT 1 OFFSET ?", owner, ref.Index).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrIndexOutOfRange
		}
		return id, err
	}

	err = tx.QueryRowContext(ctx, "SELECT id FROM entries WHERE owner = ? AND id = ?", owner, ref.ID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return id, err
}

type eventRepo struct{ db *sql.DB }

func (r *eventRepo) Append(ctx context.Context, event models.Event) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO events (id, type, level, message, subject, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		event.ID, event.Type, event.Level, event.Message, event.Subject, event.CreatedAt.UnixNano())
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrap(err)
	}
	return nil
}

func (r *eventRepo) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		return []models.Event{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, type, level, message, subject, created_at FROM events ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var ev models.Event
		var subject sql.NullString
		var created int64
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Level, &ev.Message, &subject, &created); err != nil {
			return nil, err
		}
		ev.Subject = subject.String
		ev.CreatedAt = time.Unix(0, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}
