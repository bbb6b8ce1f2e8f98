// Package statedb persists session metadata and activity transitions in
// SQLite so session history survives restarts of the host process.
package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// StateDB wraps a SQLite database for session persistence.
// Thread-safe for concurrent use from multiple goroutines within one
// process; WAL mode plus a busy timeout keeps cross-process access safe.
type StateDB struct {
	db *sql.DB
}

// SessionRow is one persisted session.
type SessionRow struct {
	Key        string
	Cwd        string
	Command    string
	Agent      bool
	CreatedAt  time.Time
	LastStatus string
	LastSeenAt time.Time
}

// TransitionRow is one working/idle transition.
type TransitionRow struct {
	SessionKey string
	Status     string
	At         time.Time
}

// Open creates or opens a SQLite database at dbPath with WAL mode and a
// busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: foreign keys: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			key          TEXT PRIMARY KEY,
			cwd          TEXT NOT NULL DEFAULT '',
			command      TEXT NOT NULL DEFAULT '',
			agent        INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			last_status  TEXT NOT NULL DEFAULT 'idle',
			last_seen_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL REFERENCES sessions(key) ON DELETE CASCADE,
			status      TEXT NOT NULL,
			at          INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create transitions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transitions_session
		ON transitions(session_key, at DESC)
	`); err != nil {
		return fmt.Errorf("statedb: index transitions: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("statedb: commit migrate: %w", err)
	}
	return nil
}

// UpsertSession records session metadata, refreshing last_seen_at.
// Implements the controller's Recorder interface.
func (s *StateDB) UpsertSession(key, cwd, command string, agent bool) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO sessions (key, cwd, command, agent, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			cwd=excluded.cwd,
			command=excluded.command,
			agent=excluded.agent,
			last_seen_at=excluded.last_seen_at
	`, key, cwd, command, boolToInt(agent), now, now)
	if err != nil {
		return fmt.Errorf("statedb: upsert session: %w", err)
	}
	return nil
}

// RecordTransition appends one working/idle transition and refreshes the
// session's last_status. Implements the controller's Recorder interface.
func (s *StateDB) RecordTransition(key, status string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO transitions (session_key, status, at) VALUES (?, ?, ?)
	`, key, status, at.Unix()); err != nil {
		return fmt.Errorf("statedb: insert transition: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE sessions SET last_status=?, last_seen_at=? WHERE key=?
	`, status, at.Unix(), key); err != nil {
		return fmt.Errorf("statedb: update last_status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("statedb: commit transition: %w", err)
	}
	return nil
}

// ListSessions returns all persisted sessions, most recently seen first.
func (s *StateDB) ListSessions() ([]SessionRow, error) {
	rows, err := s.db.Query(`
		SELECT key, cwd, command, agent, created_at, last_status, last_seen_at
		FROM sessions ORDER BY last_seen_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("statedb: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var agent int
		var created, seen int64
		if err := rows.Scan(&r.Key, &r.Cwd, &r.Command, &agent, &created, &r.LastStatus, &seen); err != nil {
			return nil, fmt.Errorf("statedb: scan session: %w", err)
		}
		r.Agent = agent != 0
		r.CreatedAt = time.Unix(created, 0)
		r.LastSeenAt = time.Unix(seen, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentTransitions returns up to limit transitions for one session,
// newest first.
func (s *StateDB) RecentTransitions(key string, limit int) ([]TransitionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT session_key, status, at FROM transitions
		WHERE session_key = ? ORDER BY at DESC, id DESC LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("statedb: recent transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var r TransitionRow
		var at int64
		if err := rows.Scan(&r.SessionKey, &r.Status, &at); err != nil {
			return nil, fmt.Errorf("statedb: scan transition: %w", err)
		}
		r.At = time.Unix(at, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its transitions.
func (s *StateDB) DeleteSession(key string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE key=?`, key); err != nil {
		return fmt.Errorf("statedb: delete session: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
