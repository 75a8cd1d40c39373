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

package sessions

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightrec/flightrec/internal/commands/shared"
	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/record"
)

func useDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, _, data := shared.RegisterFlagPointers()
	*data = dir
	t.Cleanup(func() { *data = "" })
	return dir
}

func seedSession(t *testing.T, dir, id string) {
	t.Helper()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []*record.Record{
		{SessionID: id, AgentName: "research", SequenceIndex: 0,
			StartTime: start, EndTime: start.Add(time.Second), Status: record.StatusSuccess},
		{SessionID: id, AgentName: "writer", SequenceIndex: 1,
			StartTime: start.Add(time.Second), EndTime: start.Add(2 * time.Second),
			Status: record.StatusError, Error: &record.ErrorInfo{Kind: "err", Message: "boom"}},
	}

	var data []byte
	for _, r := range records {
		r.ClampTimes()
		line, err := json.Marshal(r)
		require.NoError(t, err)
		data = append(append(data, line...), '\n')
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, layout.SegmentFile(id, 0)), data, 0o644))

	summary, err := json.Marshal(record.SummarizeSession(id, records))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, layout.SummaryFile(id)), summary, 0o644))
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestListCommand(t *testing.T) {
	dir := useDataDir(t)
	seedSession(t, dir, "run-1")

	out := execute(t, "list")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "partial_success")
}

func TestListCommand_Empty(t *testing.T) {
	useDataDir(t)

	out := execute(t, "list")
	assert.Contains(t, out, "No sessions recorded")
}

func TestShowCommand(t *testing.T) {
	dir := useDataDir(t)
	seedSession(t, dir, "run-1")

	out := execute(t, "show", "run-1")
	assert.Contains(t, out, "research")
	assert.Contains(t, out, "writer")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "2 agents, 1 failed")
}

func TestShowCommand_StatusFilter(t *testing.T) {
	dir := useDataDir(t)
	seedSession(t, dir, "run-1")

	out := execute(t, "show", "run-1", "--status", "error")
	assert.NotContains(t, strings.Split(out, "\n")[0], "research")
	assert.Contains(t, out, "writer")
}

func TestShowCommand_MissingSession(t *testing.T) {
	useDataDir(t)

	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"show", "missing"})
	require.Error(t, cmd.Execute())
}
