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
	"sort"
	"time"
)

// FinalStatus classifies a completed session as a whole.
type FinalStatus string

const (
	// FinalSuccess means every recorded invocation succeeded.
	FinalSuccess FinalStatus = "success"
	// FinalPartialSuccess means the workflow completed with a mix of
	// successes and failures.
	FinalPartialSuccess FinalStatus = "partial_success"
	// FinalError means the workflow could not continue past a failure.
	FinalError FinalStatus = "error"
)

// Step is one entry in a session summary's ordered step list.
type Step struct {
	AgentName     string  `json:"agent_name"`
	DurationMS    float64 `json:"duration_ms"`
	Status        Status  `json:"status"`
	SequenceIndex int64   `json:"sequence_index"`
	ParallelGroup string  `json:"parallel_group,omitempty"`
}

// Summary aggregates a completed session. It is written exactly once, at
// workflow completion, and never amended.
type Summary struct {
	SessionID       string      `json:"session_id"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	TotalDurationMS float64     `json:"total_duration_ms"`
	Steps           []Step      `json:"steps"`
	TotalAgents     int         `json:"total_agents"`
	Succeeded       int         `json:"succeeded"`
	Failed          int         `json:"failed"`
	FinalStatus     FinalStatus `json:"final_status"`
}

// SummarizeSession builds a Summary from a session's records. Records may
// arrive in any order; the summary's step list is sorted by sequence index.
//
// FinalStatus is error when every recorded invocation failed (the workflow
// never got anywhere), partial_success when failures and successes coexist,
// and success otherwise.
func SummarizeSession(sessionID string, records []*Record) *Summary {
	s := &Summary{
		SessionID: sessionID,
		Steps:     make([]Step, 0, len(records)),
	}

	sorted := make([]*Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SequenceIndex < sorted[j].SequenceIndex
	})

	for _, r := range sorted {
		s.Steps = append(s.Steps, Step{
			AgentName:     r.AgentName,
			DurationMS:    r.DurationMS,
			Status:        r.Status,
			SequenceIndex: r.SequenceIndex,
			ParallelGroup: r.ParallelGroup,
		})
		s.TotalAgents++
		if r.Failed() {
			s.Failed++
		} else {
			s.Succeeded++
		}
		if s.StartTime.IsZero() || r.StartTime.Before(s.StartTime) {
			s.StartTime = r.StartTime
		}
		if r.EndTime.After(s.EndTime) {
			s.EndTime = r.EndTime
		}
	}

	if !s.EndTime.IsZero() {
		s.TotalDurationMS = float64(s.EndTime.Sub(s.StartTime)) / float64(time.Millisecond)
	}

	switch {
	case s.Failed > 0 && s.Succeeded == 0:
		s.FinalStatus = FinalError
	case s.Failed > 0:
		s.FinalStatus = FinalPartialSuccess
	default:
		s.FinalStatus = FinalSuccess
	}

	return s
}
