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

package retention

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightrec/flightrec/internal/catalog"
	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/record"
)

// writeClosedSession persists one segment and a summary whose end time is
// endedAt, which is what the purge decision reads for closed sessions.
func writeClosedSession(t *testing.T, dir, id string, endedAt time.Time) {
	t.Helper()

	r := &record.Record{
		SessionID: id,
		AgentName: "agent",
		StartTime: endedAt.Add(-time.Second),
		EndTime:   endedAt,
		Status:    record.StatusSuccess,
	}
	r.ClampTimes()

	line, err := json.Marshal(r)
	require.NoError(t, err)
	segPath := filepath.Join(dir, layout.SegmentFile(id, 0))
	require.NoError(t, os.WriteFile(segPath, append(line, '\n'), 0o644))

	summary, err := json.Marshal(record.SummarizeSession(id, []*record.Record{r}))
	require.NoError(t, err)
	sumPath := filepath.Join(dir, layout.SummaryFile(id))
	require.NoError(t, os.WriteFile(sumPath, summary, 0o644))
}

// writeOpenSession persists a segment with no summary and forces its mtime.
func writeOpenSession(t *testing.T, dir, id string, mtime time.Time) {
	t.Helper()
	segPath := filepath.Join(dir, layout.SegmentFile(id, 0))
	require.NoError(t, os.WriteFile(segPath, []byte(`{"session_id":"`+id+`"}`+"\n"), 0o644))
	require.NoError(t, os.Chtimes(segPath, mtime, mtime))
}

func TestPurgeOlderThan(t *testing.T) {
	dir := t.TempDir()
	threshold := time.Now().Add(-30 * 24 * time.Hour)

	writeClosedSession(t, dir, "ancient", threshold.Add(-time.Hour))
	writeClosedSession(t, dir, "recent", threshold.Add(time.Hour))
	writeClosedSession(t, dir, "boundary", threshold)

	report, err := PurgeOlderThan(context.Background(), dir, threshold, log.Discard())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SessionsDeleted)
	assert.Equal(t, 2, report.FilesDeleted) // segment + summary
	assert.Greater(t, report.BytesReclaimed, int64(0))
	assert.Empty(t, report.Failures)

	ids, err := layout.SessionIDs(dir)
	require.NoError(t, err)
	// Exactly at the threshold counts as retained.
	assert.Equal(t, []string{"boundary", "recent"}, ids)
}

func TestPurgeOlderThan_OpenSessionUsesFileTimes(t *testing.T) {
	dir := t.TempDir()
	threshold := time.Now().Add(-7 * 24 * time.Hour)

	// Crashed long ago, never closed: still ages out.
	writeOpenSession(t, dir, "stale-crash", threshold.Add(-48*time.Hour))
	// Actively being written: untouched.
	writeOpenSession(t, dir, "in-flight", time.Now())

	report, err := PurgeOlderThan(context.Background(), dir, threshold, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SessionsDeleted)

	ids, err := layout.SessionIDs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"in-flight"}, ids)
}

func TestPurgeOlderThan_MissingDir(t *testing.T) {
	report, err := PurgeOlderThan(context.Background(),
		filepath.Join(t.TempDir(), "nope"), time.Now(), log.Discard())
	require.NoError(t, err)
	assert.Equal(t, 0, report.SessionsDeleted)
}

func TestPurgeOlderThan_DropsCatalogRows(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Open(":memory:")
	require.NoError(t, err)
	defer cat.Close()

	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour)
	writeClosedSession(t, dir, "old", old)
	writeClosedSession(t, dir, "new", time.Now())

	for _, id := range []string{"old", "new"} {
		r := &record.Record{SessionID: id, AgentName: "agent", Status: record.StatusSuccess}
		require.NoError(t, cat.RecordSession(ctx, record.SummarizeSession(id, []*record.Record{r}), 10))
	}

	_, err = PurgeOlderThan(ctx, dir, time.Now().Add(-30*24*time.Hour), log.Discard(), WithCatalog(cat))
	require.NoError(t, err)

	entries, err := cat.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].SessionID)
}

func TestManager_PurgeNow(t *testing.T) {
	dir := t.TempDir()
	writeClosedSession(t, dir, "old", time.Now().Add(-72*time.Hour))
	writeClosedSession(t, dir, "new", time.Now())

	m := NewManager(dir, 24*time.Hour, log.Discard())
	report, err := m.PurgeNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SessionsDeleted)
}

func TestManager_StartStop(t *testing.T) {
	dir := t.TempDir()
	writeClosedSession(t, dir, "old", time.Now().Add(-72*time.Hour))

	m := NewManager(dir, 24*time.Hour, log.Discard(), WithInterval(10*time.Millisecond))
	m.Start()
	m.Start() // idempotent

	assert.Eventually(t, func() bool {
		ids, err := layout.SessionIDs(dir)
		return err == nil && len(ids) == 0
	}, 5*time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop() // idempotent
}
