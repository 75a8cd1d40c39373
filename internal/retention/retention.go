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

// Package retention ages out old session data.
//
// A session's age is its summary end time when a summary exists, otherwise
// the newest modification time across its files, so a session that crashed
// before close still ages out eventually. Open sessions that are merely
// young are never touched.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flightrec/flightrec/internal/catalog"
	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/record"
)

// Failure records one session that could not be fully purged.
type Failure struct {
	SessionID string `json:"session_id"`
	Err       string `json:"error"`
}

// Report summarizes one purge pass.
type Report struct {
	SessionsDeleted int       `json:"sessions_deleted"`
	FilesDeleted    int       `json:"files_deleted"`
	BytesReclaimed  int64     `json:"bytes_reclaimed"`
	Failures        []Failure `json:"failures,omitempty"`
}

// Manager periodically purges sessions older than a retention window.
type Manager struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	catalog  *catalog.Store

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithCatalog removes purged sessions from the sqlite index as well.
func WithCatalog(c *catalog.Store) Option {
	return func(m *Manager) { m.catalog = c }
}

// WithInterval overrides the sweep cadence (default 24h).
func WithInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// NewManager creates a retention manager for a data directory. maxAge is the
// retention window; sessions whose data is older are purged.
func NewManager(dir string, maxAge time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		dir:      dir,
		maxAge:   maxAge,
		interval: 24 * time.Hour,
		logger:   log.WithComponent(logger, "retention"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the background sweep loop. The first sweep runs after one
// interval, not immediately; call PurgeNow for an eager pass.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(m.stopCh, m.doneCh)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (m *Manager) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			report, err := m.PurgeNow(context.Background())
			if err != nil {
				m.logger.Error("retention sweep failed", "error", err)
				continue
			}
			if report.SessionsDeleted > 0 || len(report.Failures) > 0 {
				m.logger.Info("retention sweep complete",
					"sessions_deleted", report.SessionsDeleted,
					"files_deleted", report.FilesDeleted,
					"bytes_reclaimed", report.BytesReclaimed,
					"failures", len(report.Failures))
			}
		}
	}
}

// PurgeNow runs one sweep with the manager's retention window.
func (m *Manager) PurgeNow(ctx context.Context) (*Report, error) {
	return m.purge(ctx, time.Now().Add(-m.maxAge))
}

// PurgeOlderThan deletes every session whose data predates the threshold.
// Failures are isolated per session: one undeletable session never blocks
// the rest of the sweep, it is reported in the returned Report instead.
func PurgeOlderThan(ctx context.Context, dir string, threshold time.Time, logger *slog.Logger, opts ...Option) (*Report, error) {
	m := NewManager(dir, 0, logger, opts...)
	return m.purge(ctx, threshold)
}

func (m *Manager) purge(ctx context.Context, threshold time.Time) (*Report, error) {
	ids, err := layout.SessionIDs(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Report{}, nil
		}
		return nil, fmt.Errorf("scan data dir: %w", err)
	}

	report := &Report{}
	var purged []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		age, err := m.sessionTime(id)
		if err != nil {
			report.Failures = append(report.Failures, Failure{SessionID: id, Err: err.Error()})
			continue
		}
		if !age.Before(threshold) {
			continue
		}

		files, bytes, err := m.deleteSession(id)
		report.FilesDeleted += files
		report.BytesReclaimed += bytes
		if err != nil {
			report.Failures = append(report.Failures, Failure{SessionID: id, Err: err.Error()})
			continue
		}
		report.SessionsDeleted++
		purged = append(purged, id)
		m.logger.Debug("purged session", log.SessionIDKey, id, "files", files, "bytes", bytes)
	}

	// The catalog is advisory; a failed row delete leaves a stale entry that
	// listing already tolerates.
	if m.catalog != nil && len(purged) > 0 {
		if err := m.catalog.DeleteSessions(ctx, purged); err != nil {
			m.logger.Warn("failed to drop purged sessions from catalog", "error", err)
		}
	}

	return report, nil
}

// sessionTime determines how old a session is: summary end time when closed,
// newest file modification time otherwise.
func (m *Manager) sessionTime(id string) (time.Time, error) {
	files, err := layout.SessionFiles(m.dir, id)
	if err != nil {
		return time.Time{}, err
	}

	for _, path := range files {
		if path != m.summaryPath(id) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			break
		}
		var summary record.Summary
		if err := json.Unmarshal(data, &summary); err == nil && !summary.EndTime.IsZero() {
			return summary.EndTime, nil
		}
		// Unreadable summary: fall back to file times below.
		break
	}

	var newest time.Time
	for _, path := range files {
		fi, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	if newest.IsZero() {
		return time.Time{}, fmt.Errorf("session %s has no files", id)
	}
	return newest, nil
}

func (m *Manager) summaryPath(id string) string {
	return filepath.Join(m.dir, layout.SummaryFile(id))
}

// deleteSession removes all of a session's files, returning counts for what
// actually came off disk even when a later file fails.
func (m *Manager) deleteSession(id string) (files int, bytes int64, err error) {
	paths, err := layout.SessionFiles(m.dir, id)
	if err != nil {
		return 0, 0, err
	}

	for _, path := range paths {
		var size int64
		if fi, statErr := os.Stat(path); statErr == nil {
			size = fi.Size()
		}
		if rmErr := os.Remove(path); rmErr != nil {
			if err == nil {
				err = rmErr
			}
			continue
		}
		files++
		bytes += size
	}
	return files, bytes, err
}
