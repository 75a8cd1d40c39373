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

package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTimes(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		end        time.Time
		wantEnd    time.Time
		wantDurMS  float64
	}{
		{
			name:      "normal ordering",
			end:       start.Add(150 * time.Millisecond),
			wantEnd:   start.Add(150 * time.Millisecond),
			wantDurMS: 150,
		},
		{
			name:      "end before start is clamped",
			end:       start.Add(-2 * time.Second),
			wantEnd:   start,
			wantDurMS: 0,
		},
		{
			name:      "sub-millisecond duration preserved",
			end:       start.Add(250 * time.Microsecond),
			wantEnd:   start.Add(250 * time.Microsecond),
			wantDurMS: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{StartTime: start, EndTime: tt.end}
			r.ClampTimes()
			assert.Equal(t, tt.wantEnd, r.EndTime)
			assert.InDelta(t, tt.wantDurMS, r.DurationMS, 1e-9)
		})
	}
}

func TestSummarize_FinalStatus(t *testing.T) {
	rec := func(seq int64, status Status) *Record {
		return &Record{AgentName: "agent", SequenceIndex: seq, Status: status}
	}

	tests := []struct {
		name    string
		records []*Record
		want    FinalStatus
	}{
		{
			name:    "all success",
			records: []*Record{rec(0, StatusSuccess), rec(1, StatusSuccess)},
			want:    FinalSuccess,
		},
		{
			name:    "mixed outcome is partial success",
			records: []*Record{rec(0, StatusSuccess), rec(1, StatusError)},
			want:    FinalPartialSuccess,
		},
		{
			name:    "nothing succeeded",
			records: []*Record{rec(0, StatusError), rec(1, StatusTimeout)},
			want:    FinalError,
		},
		{
			name:    "empty session",
			records: nil,
			want:    FinalSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SummarizeSession("s", tt.records)
			assert.Equal(t, tt.want, s.FinalStatus)
		})
	}
}

func TestSummarize_StepsOrderedBySequence(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []*Record{
		{AgentName: "third", SequenceIndex: 2, Status: StatusSuccess, StartTime: base.Add(2 * time.Second), EndTime: base.Add(3 * time.Second)},
		{AgentName: "first", SequenceIndex: 0, Status: StatusSuccess, StartTime: base, EndTime: base.Add(time.Second)},
		{AgentName: "second", SequenceIndex: 1, Status: StatusError, StartTime: base.Add(time.Second), EndTime: base.Add(2 * time.Second)},
	}

	s := SummarizeSession("s1", records)

	require.Len(t, s.Steps, 3)
	assert.Equal(t, "first", s.Steps[0].AgentName)
	assert.Equal(t, "second", s.Steps[1].AgentName)
	assert.Equal(t, "third", s.Steps[2].AgentName)
	assert.Equal(t, 3, s.TotalAgents)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 3000, s.TotalDurationMS, 1e-9)
	assert.Equal(t, base, s.StartTime)
}

func TestCloneMap_IsIndependent(t *testing.T) {
	original := map[string]any{
		"nested": map[string]any{"items": []any{"a", "b"}},
		"n":      float64(3),
	}

	snapshot := CloneMap(original)
	snapshot["nested"].(map[string]any)["items"].([]any)[0] = "mutated"

	assert.Equal(t, "a", original["nested"].(map[string]any)["items"].([]any)[0])
	assert.Nil(t, CloneMap(nil))
}

func TestSummarizeState(t *testing.T) {
	state := map[string]any{
		"characters": []any{"a", "b", "c"},
		"settings":   map[string]any{"tone": "dark"},
		"title":      "chapter one",
	}

	summary := Summarize(state)

	assert.Equal(t, 3, summary["_key_count"])
	assert.Equal(t, []string{"characters", "settings", "title"}, summary["_keys"])
	assert.Equal(t, 3, summary["characters_count"])
	assert.Equal(t, 1, summary["settings_keys"])
	assert.NotContains(t, summary, "title_count")

	assert.Equal(t, map[string]any{"_empty": true}, Summarize(nil))
}
