// Package history records locally each terminal ID a client has created,
// until that session ends gracefully or is confirmed reaped, so `rossh
// sessions` can report on sessions regardless of whether their orphan
// marker still exists. It is not part of the wire
// protocol: the daemon and endpoint know nothing about it.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the local session-history database.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the history database at path, enabling WAL mode for
// the same reason a single-writer, many-reader local database always wants
// it: the client that's actively attached to a session shouldn't block a
// concurrent `rossh sessions` listing.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: enable WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection, checkpointing the WAL first.
func (db *DB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		term_id TEXT PRIMARY KEY,
		host TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_attached_at DATETIME NOT NULL,
		orphaned INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_host ON sessions(host);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_attached ON sessions(last_attached_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Session is one row of local session history.
type Session struct {
	TermID         string
	Host           string
	CreatedAt      time.Time
	LastAttachedAt time.Time
	Orphaned       bool
}

// RecordCreated inserts a new session row the first time a terminal ID is
// created against host.
func (db *DB) RecordCreated(termID, host string) error {
	now := time.Now()
	_, err := db.conn.Exec(
		`INSERT OR IGNORE INTO sessions (term_id, host, created_at, last_attached_at, orphaned)
		 VALUES (?, ?, ?, ?, 0)`,
		termID, host, now, now,
	)
	return err
}

// RecordAttached bumps last_attached_at and clears the orphaned flag for an
// existing session row.
func (db *DB) RecordAttached(termID string) error {
	_, err := db.conn.Exec(
		`UPDATE sessions SET last_attached_at = ?, orphaned = 0 WHERE term_id = ?`,
		time.Now(), termID,
	)
	return err
}

// RecordOrphaned marks a session row as orphaned (the client gave up
// without a graceful end).
func (db *DB) RecordOrphaned(termID string) error {
	_, err := db.conn.Exec(`UPDATE sessions SET orphaned = 1 WHERE term_id = ?`, termID)
	return err
}

// RecordReaped deletes a session's row once the session is gone: after a
// graceful end, or after the remote confirms a KILLed acknowledgment.
func (db *DB) RecordReaped(termID string) error {
	_, err := db.conn.Exec(`DELETE FROM sessions WHERE term_id = ?`, termID)
	return err
}

// List returns all known sessions, most recently attached first.
func (db *DB) List() ([]Session, error) {
	rows, err := db.conn.Query(
		`SELECT term_id, host, created_at, last_attached_at, orphaned
		 FROM sessions ORDER BY last_attached_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var orphaned int
		if err := rows.Scan(&s.TermID, &s.Host, &s.CreatedAt, &s.LastAttachedAt, &orphaned); err != nil {
			return nil, err
		}
		s.Orphaned = orphaned != 0
		out = append(out, s)
	}
	return out, rows.Err()
}
