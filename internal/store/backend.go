// Package store keeps the client's local state in SQLite: the session token
// with its last-refresh marker, and user preferences. Nothing fetched from
// the backend is stored here.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/capture/internal/session"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "capture.db"

// Preference keys.
const (
	PrefOutput = "output"
	PrefTheme  = "theme"
)

// Store lifecycle errors.
var (
	ErrDetached        = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Backend is the SQLite state store. Attach before use; Detach releases the
// database. It is safe for concurrent use.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	dataDir  string
	db       *sql.DB
}

var _ session.Store = (*Backend)(nil)

// NewBackend returns a detached Backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach opens (creating if needed) the database in dataDir.
func (b *Backend) Attach(dataDir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return ErrAlreadyAttached
	}
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	// A single connection serializes writers from the refresh loop and
	// commands.
	db.SetMaxOpenConns(1)

	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("create schema: %w", err)
		}
	}

	b.db = db
	b.dataDir = dataDir
	b.attached = true
	return nil
}

// Detach closes the database. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	return err
}

// Path returns the database file path, or "" when detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return ""
	}
	return filepath.Join(b.dataDir, DBFileName)
}

func (b *Backend) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, ErrDetached
	}
	return b.db, nil
}

// LoadSession implements session.Store.
func (b *Backend) LoadSession() (session.Record, bool, error) {
	db, err := b.conn()
	if err != nil {
		return session.Record{}, false, err
	}

	var (
		userID               int64
		token, created, last string
	)
	err = db.QueryRow(`SELECT user_id, token, created, last_refresh FROM session WHERE id = 1`).
		Scan(&userID, &token, &created, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, false, nil
	}
	if err != nil {
		return session.Record{}, false, fmt.Errorf("load session: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return session.Record{}, false, fmt.Errorf("parse session created: %w", err)
	}
	lastRefresh, err := time.Parse(time.RFC3339Nano, last)
	if err != nil {
		return session.Record{}, false, fmt.Errorf("parse session last_refresh: %w", err)
	}
	return session.Record{
		Token:       types.Token{User: userID, Token: token, Created: createdAt},
		LastRefresh: lastRefresh,
	}, true, nil
}

// SaveSession implements session.Store. There is at most one stored session.
func (b *Backend) SaveSession(rec session.Record) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO session (id, user_id, token, created, last_refresh)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    user_id = excluded.user_id,
    token = excluded.token,
    created = excluded.created,
    last_refresh = excluded.last_refresh`,
		rec.Token.User,
		rec.Token.Token,
		rec.Token.Created.UTC().Format(time.RFC3339Nano),
		rec.LastRefresh.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ClearSession implements session.Store.
func (b *Backend) ClearSession() error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Preference returns the value stored under key. ok is false when unset.
func (b *Backend) Preference(key string) (value string, ok bool, err error) {
	db, err := b.conn()
	if err != nil {
		return "", false, err
	}
	err = db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load preference %q: %w", key, err)
	}
	return value, true, nil
}

// SetPreference stores value under key.
func (b *Backend) SetPreference(key, value string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save preference %q: %w", key, err)
	}
	return nil
}

// Preferences returns every stored preference.
func (b *Backend) Preferences() (map[string]string, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT key, value FROM preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[k] = v
	}
	return prefs, rows.Err()
}
