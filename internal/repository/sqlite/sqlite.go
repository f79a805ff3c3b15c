// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code: no C compiler needed.
//
// ONE CONNECTION:
// SQLite allows a single writer at a time. Instead of letting database/sql open
// several connections that then fight over the file lock (SQLITE_BUSY), the
// pool is capped at one connection. Every statement and transaction is
// serialized through it, which is what makes "page_views = page_views + 1"
// and the multi-row transactions linearizable per creator. It also keeps a
// ":memory:" database alive: each new connection would otherwise get its own
// empty in-memory database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/payapp.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight (no-op for :memory:).
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection is still usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     INTEGER UNIQUE,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// payment_id is NULL when unset so UNIQUE only applies to real identifiers.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			payment_id TEXT UNIQUE,
			bio        TEXT NOT NULL DEFAULT '',
			avatar_key TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS analytics (
			user_id        TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			page_views     INTEGER NOT NULL DEFAULT 0 CHECK (page_views >= 0),
			qr_generations INTEGER NOT NULL DEFAULT 0 CHECK (qr_generations >= 0)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating analytics table: %w", err)
	}

	// The amount bound mirrors model.MaxAmount.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS donation_attempts (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount     INTEGER NOT NULL CHECK (amount > 0 AND amount <= 1000000000),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_donation_attempts_user_id ON donation_attempts(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating donation_attempts table: %w", err)
	}

	// Databases created before avatars existed lack the column.
	if err := db.addColumnIfNotExists("profiles", "avatar_key", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding avatar_key to profiles: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent: safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// withTx runs fn inside a transaction, committing on nil and rolling back otherwise.
// fn must only use tx: the pool has a single connection, so touching db.conn
// inside fn would block forever.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// uniqueViolation reports which unique column a failed statement collided with.
// SQLite's message names it as "table.column", e.g.
// "UNIQUE constraint failed: users.username".
func uniqueViolation(err error) (column string, ok bool) {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	msg := se.Error()
	for _, col := range []string{"users.username", "users.email", "users.github_id", "profiles.payment_id"} {
		if strings.Contains(msg, col) {
			return col[strings.IndexByte(col, '.')+1:], true
		}
	}
	return "", true
}

// duplicateError converts a unique violation into the user-facing conflict.
func duplicateError(column string) *apperror.AppError {
	switch column {
	case "username":
		return apperror.DuplicateField("username", "This username is already taken.")
	case "email":
		return apperror.DuplicateField("email", "This email address is already in use.")
	case "github_id":
		return apperror.DuplicateField("github_id", "This GitHub account is already linked.")
	case "payment_id":
		return apperror.DuplicateField("payment_id", "This UPI ID is already used by another creator.")
	default:
		return apperror.DuplicateField("", "A record with these details already exists.")
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func clamp(opts repository.ListOptions, def, max int) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset = opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
