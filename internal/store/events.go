// Package store persists component lifecycle events to a local SQLite
// database (modernc.org/sqlite driver, CGO-free). The event log survives
// agent restarts and is what the status API serves as recent history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one recorded component lifecycle transition.
type Event struct {
	ID        int64     `json:"id"`
	Component string    `json:"component"`
	PID       int       `json:"pid"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// DB is a SQLite-backed event log. Safe for concurrent use.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the event database at path. Use ":memory:" for
// an in-memory database in tests.
func Open(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	s := &DB{db: d}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS component_event(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			component TEXT NOT NULL,
			pid INTEGER NOT NULL,
			event TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_component_event_component ON component_event(component);`,
		`CREATE INDEX IF NOT EXISTS idx_component_event_at ON component_event(at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

// RecordEvent appends one lifecycle event. Satisfies the supervisor's
// event recorder; failures are returned but callers treat them as
// best-effort.
func (s *DB) RecordEvent(ctx context.Context, component string, pid int, event, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO component_event(component, pid, event, detail, at)
		VALUES(?, ?, ?, ?, ?);`,
		component, pid, event, detail, time.Now().UTC())
	return err
}

// Recent returns up to limit events, newest first.
func (s *DB) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, component, pid, event, detail, at
		FROM component_event
		ORDER BY id DESC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Component, &e.PID, &e.Event, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ComponentEvents returns up to limit events for one component, newest first.
func (s *DB) ComponentEvents(ctx context.Context, component string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, component, pid, event, detail, at
		FROM component_event
		WHERE component = ?
		ORDER BY id DESC
		LIMIT ?;`, component, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Component, &e.PID, &e.Event, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes events older than keep, returning the number removed.
func (s *DB) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM component_event WHERE at < ?;`,
		time.Now().UTC().Add(-keep))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
