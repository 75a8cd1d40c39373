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

// Package store reads persisted sessions back into ordered record sequences,
// flow graphs, and cross-session comparisons.
//
// The read path never mutates persisted files and tolerates a writer
// actively appending to the same session: a query returns a consistent
// prefix, never a torn record.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/flightrec/flightrec/internal/catalog"
	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/record"
)

// Store is the session query engine, rooted at one data directory.
type Store struct {
	dir     string
	logger  *slog.Logger
	catalog *catalog.Store
}

// Option configures a Store.
type Option func(*Store)

// WithCatalog lets session listing consult the sqlite catalog before falling
// back to a directory scan.
func WithCatalog(c *catalog.Store) Option {
	return func(s *Store) { s.catalog = c }
}

// New creates a query engine for the given data directory.
func New(dir string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: log.WithComponent(logger, "store")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query filters a session's record sequence.
type Query struct {
	// Agents restricts results to these agent names (empty = all).
	Agents []string
	// Statuses restricts results to these outcomes (empty = all).
	Statuses []record.Status
}

func (q *Query) matches(r *record.Record) bool {
	if q == nil {
		return true
	}
	if len(q.Agents) > 0 && !containsString(q.Agents, r.AgentName) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, r.Status) {
		return false
	}
	return true
}

// SessionRecords reads all of a session's segments in rotation order and
// returns its records ordered by sequence index — not file read order, which
// can interleave when rotation races a late flush.
//
// Returns ErrNotFound when no segment exists. When a stored record fails to
// parse, the valid prefix is returned together with a *CorruptError.
func (s *Store) SessionRecords(sessionID string, q *Query) ([]*record.Record, error) {
	segments, err := layout.Segments(s.dir, sessionID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	var records []*record.Record
	var corrupt *CorruptError
	for _, seg := range segments {
		segRecords, segErr := s.readSegment(sessionID, seg.Path)
		records = append(records, segRecords...)
		if segErr != nil && corrupt == nil {
			corrupt = segErr
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SequenceIndex < records[j].SequenceIndex
	})

	if q != nil {
		filtered := records[:0]
		for _, r := range records {
			if q.matches(r) {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if corrupt != nil {
		return records, corrupt
	}
	return records, nil
}

// readSegment parses one segment. A trailing line without a newline is an
// in-flight or torn append and is silently discarded; a newline-terminated
// line that fails to parse marks the segment corrupt and ends it.
func (s *Store) readSegment(sessionID, path string) ([]*record.Record, *CorruptError) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CorruptError{SessionID: sessionID, Segment: filepath.Base(path), Err: err}
	}
	defer f.Close()

	var records []*record.Record
	reader := bufio.NewReader(f)
	line := 0
	for {
		line++
		data, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// No trailing newline: a write is in flight or was torn by a
			// crash. The durability contract says drop it.
			if len(data) > 0 {
				s.logger.Debug("discarding incomplete trailing record",
					log.SessionIDKey, sessionID, log.SegmentKey, filepath.Base(path))
			}
			return records, nil
		}
		if err != nil {
			return records, &CorruptError{SessionID: sessionID, Segment: filepath.Base(path), Line: line, Err: err}
		}

		var r record.Record
		if err := json.Unmarshal(data, &r); err != nil {
			s.logger.Warn("corrupt record, returning valid prefix",
				log.SessionIDKey, sessionID, log.SegmentKey, filepath.Base(path), "line", line, "error", err)
			return records, &CorruptError{SessionID: sessionID, Segment: filepath.Base(path), Line: line, Err: err}
		}
		records = append(records, &r)
	}
}

// LoadSummary reads a session's summary file.
func (s *Store) LoadSummary(sessionID string) (*record.Summary, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, layout.SummaryFile(sessionID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no summary for %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}

	var summary record.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, &CorruptError{SessionID: sessionID, Segment: layout.SummaryFile(sessionID), Err: err}
	}
	return &summary, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsStatus(haystack []record.Status, needle record.Status) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
