// Package audit persists a trail of every exec invocation handled by
// the sandbox: what was asked, whether policy allowed it, and how it
// ended. The store is optional; a nil *Store is a no-op recorder.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Entry is one recorded exec invocation.
type Entry struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Command    string    `json:"command"`
	Verdict    string    `json:"verdict"` // completed, blocked, timeout, canceled, spawn_error
	ExitCode   int       `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Options configure the audit store.
type Options struct {
	// DBPath is the sqlite database file
	DBPath string

	// Retention bounds how long entries are kept; 0 keeps forever
	Retention time.Duration

	// SweepSchedule is a cron expression for the retention sweep;
	// defaults to daily
	SweepSchedule string
}

// Store is a sqlite-backed audit trail. Safe for concurrent use.
type Store struct {
	db        *sql.DB
	retention time.Duration
	sweeper   *cron.Cron
}

// Open opens (creating if needed) an audit store and starts its
// retention sweep when a retention bound is configured.
func Open(opts Options) (*Store, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent writers from parallel exec calls.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS exec_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			command TEXT NOT NULL,
			verdict TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_exec_audit_created_at ON exec_audit(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, retention: opts.Retention}

	if opts.Retention > 0 {
		schedule := opts.SweepSchedule
		if schedule == "" {
			schedule = "@daily"
		}
		s.sweeper = cron.New()
		if _, err := s.sweeper.AddFunc(schedule, s.sweep); err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid sweep schedule: %w", err)
		}
		s.sweeper.Start()
	}

	log.Info().Str("path", opts.DBPath).Msg("Audit store opened")

	return s, nil
}

// Close stops the retention sweep and closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	return s.db.Close()
}

// RecordExec implements sandbox.Recorder.
func (s *Store) RecordExec(requestID, cmd, verdict string, exitCode int, duration time.Duration) {
	if s == nil {
		return
	}

	_, err := s.db.Exec(
		`INSERT INTO exec_audit (request_id, command, verdict, exit_code, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		requestID, cmd, verdict, exitCode, duration.Milliseconds(),
	)
	if err != nil {
		// Auditing must never fail the exec path.
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to record audit entry")
	}
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, request_id, command, verdict, exit_code, duration_ms, created_at
		 FROM exec_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Command, &e.Verdict, &e.ExitCode, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exec_audit`).Scan(&count)
	return count, err
}

// sweep deletes entries older than the retention bound.
func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.retention)

	result, err := s.db.Exec(`DELETE FROM exec_audit WHERE created_at < ?`, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Audit retention sweep failed")
		return
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Audit retention sweep completed")
	}
}

// Sweep runs the retention sweep immediately. Exposed for callers that
// want a deterministic sweep (the scheduler calls sweep on its own).
func (s *Store) Sweep() {
	s.sweep()
}
