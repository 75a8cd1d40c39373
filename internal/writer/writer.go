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

// Package writer persists execution records to per-session, size-rotated
// NDJSON segment files.
//
// Enqueue is the single synchronization point of the pipeline: sequence
// index assignment and buffer append happen under one mutex, and everything
// else (serialization, file I/O, rotation) runs on a per-session background
// flusher so that recording never adds unbounded latency to the workflow
// being observed. Persistence failures are contained here: they are logged
// and the affected batch is dropped, never surfaced to the caller.
package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flightrec/flightrec/internal/config"
	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/record"
)

// ErrClosed is returned by Enqueue after the writer has shut down.
var ErrClosed = errors.New("writer is closed")

// ErrSessionClosed is returned when a record arrives for a session whose
// summary has already been written.
var ErrSessionClosed = errors.New("session already closed")

// Catalog receives a best-effort notification when a session closes. The
// writer tolerates any catalog failure.
type Catalog interface {
	RecordSession(ctx context.Context, summary *record.Summary, bytes int64) error
}

// Writer buffers records per session and flushes them in batches.
type Writer struct {
	dir           string
	batchSize     int
	flushInterval time.Duration
	maxSegment    int64
	logger        *slog.Logger
	catalog       Catalog

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// session is one open write target. Fields above the marker are guarded by
// Writer.mu; fields below it are owned by the session's flusher goroutine.
type session struct {
	id   string
	cond *sync.Cond

	next      int64
	buf       []*record.Record
	pending   [][]*record.Record
	flushing  bool
	lastFlush time.Time
	closed    bool

	// flusher-owned
	file       *os.File
	rotation   int
	segBytes   int64
	totalBytes int64
	opened     bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithCatalog attaches a session catalog updated at session close.
func WithCatalog(c Catalog) Option {
	return func(w *Writer) { w.catalog = c }
}

// New creates a Writer rooted at cfg.DataDir and starts its flush timer.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	w := &Writer{
		dir:           cfg.DataDir,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		maxSegment:    cfg.MaxSegmentBytes(),
		logger:        log.WithComponent(logger, "writer"),
		sessions:      make(map[string]*session),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.run()
	return w, nil
}

// Enqueue assigns the record its per-session sequence index and buffers it.
// It never blocks beyond the buffer append and returns immediately; the
// actual write happens on a background flusher.
func (w *Writer) Enqueue(rec *record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	s, ok := w.sessions[rec.SessionID]
	if !ok {
		s = w.newSession(rec.SessionID)
	} else if s.closed {
		return ErrSessionClosed
	}

	rec.SequenceIndex = s.next
	s.next++
	s.buf = append(s.buf, rec)
	recordsEnqueued.Inc()

	if len(s.buf) >= w.batchSize {
		w.schedule(s, "size")
	}
	return nil
}

// CloseSession synchronously drains the session's buffer, writes its summary
// file once, and releases the write target. Other sessions are unaffected.
func (w *Writer) CloseSession(sessionID string, summary *record.Summary) error {
	w.mu.Lock()
	s, ok := w.sessions[sessionID]
	if !ok {
		s = w.newSession(sessionID)
	}
	if s.closed {
		w.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	w.drainLocked(s, "close")
	totalBytes := s.totalBytes
	// The session stays in the map as a tombstone so a straggler record
	// cannot reopen it and restart sequence numbering.
	file := s.file
	s.file = nil
	w.mu.Unlock()

	openSessions.Dec()
	if file != nil {
		if err := file.Close(); err != nil {
			w.logger.Warn("failed to close segment", log.SessionIDKey, sessionID, "error", err)
		}
	}

	if summary != nil {
		if err := w.writeSummary(summary); err != nil {
			return err
		}
		if w.catalog != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.catalog.RecordSession(ctx, summary, totalBytes); err != nil {
				w.logger.Warn("catalog update failed", log.SessionIDKey, sessionID, "error", err)
			}
		}
	}
	return nil
}

// FlushAll synchronously drains every buffered session. Used at process
// shutdown and by tests that need determinism.
func (w *Writer) FlushAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sessions {
		w.drainLocked(s, "close")
	}
}

// Close stops the flush timer, drains all sessions, and closes every open
// segment file. The writer rejects records afterwards.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, s := range w.sessions {
		w.drainLocked(s, "close")
		if s.file != nil {
			if err := s.file.Close(); err != nil {
				w.logger.Warn("failed to close segment", log.SessionIDKey, id, "error", err)
			}
		}
		if !s.closed {
			openSessions.Dec()
		}
	}
	w.sessions = make(map[string]*session)
	return nil
}

// newSession registers a write target, resuming the sequence counter past
// any records a previous process already persisted for this session. Caller
// holds w.mu.
func (w *Writer) newSession(id string) *session {
	s := &session{
		id:        id,
		cond:      sync.NewCond(&w.mu),
		next:      w.resumeSequence(id),
		lastFlush: time.Now(),
	}
	w.sessions[id] = s
	openSessions.Inc()
	return s
}

// resumeSequence returns the next sequence index for a session: zero for a
// fresh session, one past the highest persisted index when segments already
// exist. Batches land in enqueue order, so the last parseable record of the
// last segment carries the highest index on disk.
func (w *Writer) resumeSequence(id string) int64 {
	segments, err := layout.Segments(w.dir, id)
	if err != nil || len(segments) == 0 {
		return 0
	}

	f, err := os.Open(segments[len(segments)-1].Path)
	if err != nil {
		w.logger.Warn("cannot read last segment, restarting sequence",
			log.SessionIDKey, id, "error", err)
		return 0
	}
	defer f.Close()

	var next int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			break
		}
		var rec struct {
			SequenceIndex int64 `json:"sequence_index"`
		}
		if json.Unmarshal(line, &rec) == nil && rec.SequenceIndex >= next {
			next = rec.SequenceIndex + 1
		}
	}
	if next > 0 {
		w.logger.Debug("resuming session sequence", log.SessionIDKey, id, "next", next)
	}
	return next
}

// schedule moves the session's buffer onto its flush queue and wakes the
// flusher. Caller holds w.mu.
func (w *Writer) schedule(s *session, trigger string) {
	if len(s.buf) == 0 {
		return
	}
	s.pending = append(s.pending, s.buf)
	s.buf = nil
	s.lastFlush = time.Now()
	batchesFlushed.WithLabelValues(trigger).Inc()

	if !s.flushing {
		s.flushing = true
		go w.flushLoop(s)
	}
}

// drainLocked schedules any remaining buffer and waits until the session's
// flusher has written everything. Caller holds w.mu; the wait releases it.
func (w *Writer) drainLocked(s *session, trigger string) {
	w.schedule(s, trigger)
	for s.flushing || len(s.pending) > 0 {
		s.cond.Wait()
	}
}

// flushLoop writes the session's pending batches in order, then exits.
// Exactly one flushLoop runs per session at a time.
func (w *Writer) flushLoop(s *session) {
	for {
		w.mu.Lock()
		if len(s.pending) == 0 {
			s.flushing = false
			s.cond.Broadcast()
			w.mu.Unlock()
			return
		}
		batch := s.pending[0]
		s.pending = s.pending[1:]
		w.mu.Unlock()

		w.writeBatch(s, batch)
	}
}

// writeBatch serializes a batch and appends it to the session's segment in a
// single write. Runs only on the session's flusher goroutine.
func (w *Writer) writeBatch(s *session, batch []*record.Record) {
	var buf []byte
	for _, rec := range batch {
		line, err := json.Marshal(rec)
		if err != nil {
			// A snapshot that cannot marshal loses this record only.
			w.logger.Error("record not serializable, dropping",
				log.SessionIDKey, s.id, "sequence_index", rec.SequenceIndex, "error", err)
			recordsDropped.WithLabelValues("marshal_error").Inc()
			continue
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if len(buf) == 0 {
		return
	}

	if err := w.ensureSegment(s, int64(len(buf))); err != nil {
		w.logger.Error("cannot open segment, dropping batch",
			log.SessionIDKey, s.id, "records", len(batch), "error", err)
		recordsDropped.WithLabelValues("open_error").Add(float64(len(batch)))
		return
	}

	n, err := s.file.Write(buf)
	if err != nil {
		w.logger.Error("segment append failed, dropping batch",
			log.SessionIDKey, s.id, "records", len(batch), "error", err)
		recordsDropped.WithLabelValues("io_error").Add(float64(len(batch)))
		return
	}
	s.segBytes += int64(n)
	s.totalBytes += int64(n)
	bytesWritten.Add(float64(n))
}

// ensureSegment opens the session's segment lazily and rotates it when the
// incoming batch would push it past the size ceiling.
func (w *Writer) ensureSegment(s *session, incoming int64) error {
	if !s.opened {
		// Resume after a previous segment series if one exists, so a process
		// restart within a session keeps appending in rotation order.
		segments, err := layout.Segments(w.dir, s.id)
		if err == nil && len(segments) > 0 {
			last := segments[len(segments)-1]
			s.rotation = last.Rotation
			if info, statErr := os.Stat(last.Path); statErr == nil {
				s.segBytes = info.Size()
			}
		}
		s.opened = true
	}

	if s.segBytes > 0 && s.segBytes+incoming > w.maxSegment {
		if s.file != nil {
			if err := s.file.Close(); err != nil {
				w.logger.Warn("failed to close rotated segment", log.SessionIDKey, s.id, "error", err)
			}
			s.file = nil
		}
		s.rotation++
		s.segBytes = 0
		segmentRotations.Inc()
	}

	if s.file == nil {
		path := filepath.Join(w.dir, layout.SegmentFile(s.id, s.rotation))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		s.file = f
	}
	return nil
}

// writeSummary writes the session summary file exactly once.
func (w *Writer) writeSummary(summary *record.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(w.dir, layout.SummaryFile(summary.SessionID))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		w.logger.Error("summary write failed", log.SessionIDKey, summary.SessionID, "error", err)
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// run drives timer-based flushes so records are never delayed indefinitely
// under low traffic.
func (w *Writer) run() {
	defer close(w.doneCh)

	tick := w.flushInterval / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flushStale()
		case <-w.stopCh:
			return
		}
	}
}

// flushStale schedules a flush for any session whose oldest buffered record
// has waited at least the flush interval.
func (w *Writer) flushStale() {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sessions {
		if len(s.buf) > 0 && now.Sub(s.lastFlush) >= w.flushInterval {
			w.schedule(s, "timer")
		}
	}
}
