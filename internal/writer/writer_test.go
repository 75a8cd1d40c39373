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

package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightrec/flightrec/internal/config"
	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/record"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.FlushInterval = 50 * time.Millisecond
	return cfg
}

func newTestWriter(t *testing.T, cfg *config.Config) *Writer {
	t.Helper()
	w, err := New(cfg, log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func testRecord(sessionID, agent string) *record.Record {
	now := time.Now().UTC()
	r := &record.Record{
		SessionID: sessionID,
		AgentName: agent,
		StartTime: now,
		EndTime:   now.Add(5 * time.Millisecond),
		Status:    record.StatusSuccess,
	}
	r.ClampTimes()
	return r
}

func readSegment(t *testing.T, path string) []*record.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []*record.Record
	scanner := bufio.NewScanner(f)
	// Padded records in the rotation test exceed bufio's 64KB default.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r record.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, &r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func readAllRecords(t *testing.T, dir, sessionID string) []*record.Record {
	t.Helper()
	segments, err := layout.Segments(dir, sessionID)
	require.NoError(t, err)
	var all []*record.Record
	for _, seg := range segments {
		all = append(all, readSegment(t, seg.Path)...)
	}
	return all
}

func TestEnqueue_BatchThresholdFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlushInterval = time.Hour // only the size trigger may fire
	w := newTestWriter(t, cfg)

	// 15 records with threshold 10: exactly the first 10 flush.
	for i := 0; i < 15; i++ {
		require.NoError(t, w.Enqueue(testRecord("s1", fmt.Sprintf("agent-%d", i))))
	}

	segPath := filepath.Join(cfg.DataDir, layout.SegmentFile("s1", 0))
	require.Eventually(t, func() bool {
		recs, err := countLines(segPath)
		return err == nil && recs == 10
	}, 2*time.Second, 5*time.Millisecond)

	// The rest flush on explicit close.
	require.NoError(t, w.CloseSession("s1", record.SummarizeSession("s1", nil)))
	assert.Len(t, readAllRecords(t, cfg.DataDir, "s1"), 15)
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strings.Count(string(data), "\n"), nil
}

func TestEnqueue_TimerFlush(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWriter(t, cfg)

	require.NoError(t, w.Enqueue(testRecord("s1", "slow-agent")))
	require.NoError(t, w.Enqueue(testRecord("s1", "slow-agent")))

	// Below the batch threshold; the timer must still flush.
	segPath := filepath.Join(cfg.DataDir, layout.SegmentFile("s1", 0))
	require.Eventually(t, func() bool {
		recs, err := countLines(segPath)
		return err == nil && recs == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEnqueue_ConcurrentSequenceIndexes(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWriter(t, cfg)

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = w.Enqueue(testRecord("s1", fmt.Sprintf("agent-%d", g)))
			}
		}(g)
	}
	wg.Wait()
	w.FlushAll()

	records := readAllRecords(t, cfg.DataDir, "s1")
	require.Len(t, records, goroutines*perGoroutine)

	// Unique and contiguous, and file order matches assignment order.
	for i, r := range records {
		assert.Equal(t, int64(i), r.SequenceIndex)
	}
}

func TestEnqueue_IndependentSessions(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWriter(t, cfg)

	require.NoError(t, w.Enqueue(testRecord("a", "one")))
	require.NoError(t, w.Enqueue(testRecord("b", "two")))
	require.NoError(t, w.Enqueue(testRecord("a", "three")))
	w.FlushAll()

	a := readAllRecords(t, cfg.DataDir, "a")
	b := readAllRecords(t, cfg.DataDir, "b")
	require.Len(t, a, 2)
	require.Len(t, b, 1)
	// Each session numbers independently from zero.
	assert.Equal(t, int64(0), a[0].SequenceIndex)
	assert.Equal(t, int64(1), a[1].SequenceIndex)
	assert.Equal(t, int64(0), b[0].SequenceIndex)
}

func TestRotation_SequenceContinuesAcrossSegments(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 3
	cfg.MaxSegmentMB = 1
	w := newTestWriter(t, cfg)

	// ~100KB per record pushes past the 1MB ceiling mid-run.
	padding := strings.Repeat("x", 100*1024)
	for i := 0; i < 15; i++ {
		r := testRecord("big", "bulk-agent")
		r.Metadata = map[string]any{"padding": padding}
		require.NoError(t, w.Enqueue(r))
	}
	require.NoError(t, w.CloseSession("big", record.SummarizeSession("big", nil)))

	segments, err := layout.Segments(cfg.DataDir, "big")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(segments), 2, "size ceiling should have forced a rotation")

	// No segment exceeds the ceiling by more than one batch.
	for _, seg := range segments {
		info, err := os.Stat(seg.Path)
		require.NoError(t, err)
		assert.Less(t, info.Size(), int64(2*1024*1024))
	}

	// Append order is preserved across the rotation boundary.
	var last int64 = -1
	for _, seg := range segments {
		for _, r := range readSegment(t, seg.Path) {
			assert.Equal(t, last+1, r.SequenceIndex)
			last = r.SequenceIndex
		}
	}
	assert.Equal(t, int64(14), last)
}

func TestNewWriter_ResumesSequenceAfterRestart(t *testing.T) {
	cfg := testConfig(t)

	w1, err := New(cfg, log.Discard())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w1.Enqueue(testRecord("s1", fmt.Sprintf("agent-%d", i))))
	}
	require.NoError(t, w1.Close())

	// A new writer over the same data directory picks up where the previous
	// process left off, never re-issuing indices already on disk.
	w2, err := New(cfg, log.Discard())
	require.NoError(t, err)
	for i := 3; i < 6; i++ {
		require.NoError(t, w2.Enqueue(testRecord("s1", fmt.Sprintf("agent-%d", i))))
	}
	require.NoError(t, w2.Close())

	records := readAllRecords(t, cfg.DataDir, "s1")
	require.Len(t, records, 6)
	for i, r := range records {
		assert.Equal(t, int64(i), r.SequenceIndex)
	}
}

func TestCloseSession_WritesSummaryOnce(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWriter(t, cfg)

	recs := []*record.Record{testRecord("s1", "alpha"), testRecord("s1", "beta")}
	for _, r := range recs {
		require.NoError(t, w.Enqueue(r))
	}
	require.NoError(t, w.CloseSession("s1", record.SummarizeSession("s1", recs)))

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, layout.SummaryFile("s1")))
	require.NoError(t, err)

	var summary record.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "s1", summary.SessionID)
	assert.Equal(t, 2, summary.TotalAgents)
	assert.Equal(t, record.FinalSuccess, summary.FinalStatus)

	// Closing again and writing more records are both rejected.
	assert.ErrorIs(t, w.CloseSession("s1", nil), ErrSessionClosed)
	assert.ErrorIs(t, w.Enqueue(testRecord("s1", "straggler")), ErrSessionClosed)
}

func TestClose_RejectsFurtherRecords(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWriter(t, cfg)

	require.NoError(t, w.Enqueue(testRecord("s1", "alpha")))
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Enqueue(testRecord("s1", "late")), ErrClosed)

	// The pre-close record still made it to disk.
	assert.Len(t, readAllRecords(t, cfg.DataDir, "s1"), 1)
}

func TestWriteFailure_NeverReachesCaller(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWriter(t, cfg)

	// Destroy the data directory out from under the writer; the flush must
	// drop the batch without surfacing an error on the enqueue path.
	require.NoError(t, os.RemoveAll(cfg.DataDir))

	require.NoError(t, w.Enqueue(testRecord("s1", "doomed")))
	w.FlushAll()
	require.NoError(t, w.Enqueue(testRecord("s1", "also-doomed")))
	w.FlushAll()
}

type captureCatalog struct {
	mu        sync.Mutex
	summaries []*record.Summary
	bytes     []int64
}

func (c *captureCatalog) RecordSession(_ context.Context, s *record.Summary, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = append(c.summaries, s)
	c.bytes = append(c.bytes, n)
	return nil
}

func TestCloseSession_NotifiesCatalog(t *testing.T) {
	cfg := testConfig(t)
	catalog := &captureCatalog{}
	w, err := New(cfg, log.Discard(), WithCatalog(catalog))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	recs := []*record.Record{testRecord("s1", "alpha")}
	require.NoError(t, w.Enqueue(recs[0]))
	require.NoError(t, w.CloseSession("s1", record.SummarizeSession("s1", recs)))

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	require.Len(t, catalog.summaries, 1)
	assert.Equal(t, "s1", catalog.summaries[0].SessionID)
	assert.Greater(t, catalog.bytes[0], int64(0))
}
