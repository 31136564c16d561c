package database

import (
	"database/sql"

	_ "modernc.org/sqlite" // SQLite driver
)

// New opens the SQLite database at path. The pool is limited to a single
// connection so writes are serialized by database/sql itself.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT NOT NULL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_digest TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- One live code per address; issuing replaces the row.
	CREATE TABLE IF NOT EXISTS verification_codes (
		address TEXT NOT NULL PRIMARY KEY,
		code TEXT NOT NULL,
		issued_at INTEGER NOT NULL -- unix nanoseconds
	);

	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		fields_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_owner ON entries(owner, seq);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		subject TEXT,
		created_at INTEGER NOT NULL -- unix nanoseconds
	);
	`
	_, err := db.Exec(sqlStmt)
	return err
}
