package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLite is a Store backed by a single settings table.
type SQLite struct {
	db    *sql.DB
	watch watchers
}

// OpenSQLite opens (or creates) the settings database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: settings path cannot be empty", types.ErrInvalidArgument)
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("%w: create settings directory: %w", types.ErrPersistence, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open settings: %w", types.ErrPersistence, err)
	}

	// One writer at a time; an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %w", types.ErrPersistence, p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create settings table: %w", types.ErrPersistence, err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ContainsKey reports whether key is present
func (s *SQLite) ContainsKey(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM settings WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("contains", key, err)
	}
	return true, nil
}

// Get returns the value stored under key
func (s *SQLite) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", key, err)
	}
	return value, true, nil
}

// Set upserts value under key
func (s *SQLite) Set(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return wrap("set", key, err)
	}
	s.watch.notify(Change{Key: key, Value: clone(value)})
	return nil
}

// Remove deletes key and reports whether it existed
func (s *SQLite) Remove(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return false, wrap("remove", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("remove", key, err)
	}
	if n > 0 {
		s.watch.notify(Change{Key: key, Removed: true})
	}
	return n > 0, nil
}

// Watch registers a change handler
func (s *SQLite) Watch(handler ChangeHandler) func() {
	return s.watch.add(handler)
}

// IsBusy reports whether err is a transient SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", types.ErrPersistence, op, key, err)
}
