// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package catalog maintains a SQLite index of closed sessions.
//
// The catalog is an acceleration structure for session listing; the NDJSON
// segment files remain the source of truth. The writer updates it
// best-effort at session close, and every caller must tolerate it being
// stale or absent.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/record"
)

// Store provides SQLite-backed session indexing.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER NOT NULL,
	duration_ms   REAL NOT NULL,
	total_agents  INTEGER NOT NULL,
	succeeded     INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	final_status  TEXT NOT NULL,
	bytes         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);
`

// Open creates or opens a catalog database. The special path ":memory:"
// creates an in-memory catalog.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	connStr := path
	if path != ":memory:" {
		// WAL keeps the writer's close path from blocking concurrent reads.
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Entry is one indexed session.
type Entry struct {
	SessionID   string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMS  float64
	TotalAgents int
	Succeeded   int
	Failed      int
	FinalStatus record.FinalStatus
	Bytes       int64
}

// RecordSession upserts a closed session. Implements writer.Catalog.
//
// Sessions are keyed by their filesystem-safe id, the same form the data
// directory uses, so catalog rows always join against on-disk session files.
func (s *Store) RecordSession(ctx context.Context, summary *record.Summary, bytes int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, started_at, ended_at, duration_ms,
			total_agents, succeeded, failed, final_status, bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			duration_ms = excluded.duration_ms,
			total_agents = excluded.total_agents,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			final_status = excluded.final_status,
			bytes = excluded.bytes`,
		layout.SafeID(summary.SessionID),
		summary.StartTime.UnixNano(),
		summary.EndTime.UnixNano(),
		summary.TotalDurationMS,
		summary.TotalAgents,
		summary.Succeeded,
		summary.Failed,
		string(summary.FinalStatus),
		bytes,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// ListSessions returns indexed sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, started_at, ended_at, duration_ms,
			total_agents, succeeded, failed, final_status, bytes
		FROM sessions ORDER BY ended_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, ended int64
		var status string
		if err := rows.Scan(&e.SessionID, &started, &ended, &e.DurationMS,
			&e.TotalAgents, &e.Succeeded, &e.Failed, &status, &e.Bytes); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.StartedAt = time.Unix(0, started).UTC()
		e.EndedAt = time.Unix(0, ended).UTC()
		e.FinalStatus = record.FinalStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteSessions removes catalog rows for the given session ids, accepting
// either the raw or the filesystem-safe form. Missing rows are not an error.
func (s *Store) DeleteSessions(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	defer tx.Rollback()

	for _, id := range sessionIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, layout.SafeID(id)); err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
	}
	return tx.Commit()
}
