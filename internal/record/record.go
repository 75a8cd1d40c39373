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

// Package record defines the execution record and session summary model.
//
// A Record captures a single agent invocation: timing, status, redacted
// input/output snapshots, and the parallel-dispatch relationship reported by
// the supervisor. Records are created once by the instrumentation layer,
// sequenced by the writer, and immutable thereafter.
package record

import (
	"time"
)

// Status classifies the outcome of an agent invocation.
type Status string

const (
	// StatusSuccess indicates the agent returned normally.
	StatusSuccess Status = "success"
	// StatusError indicates the agent returned an error.
	StatusError Status = "error"
	// StatusTimeout indicates the agent exceeded its deadline.
	StatusTimeout Status = "timeout"
)

// ErrorInfo describes an agent failure.
type ErrorInfo struct {
	// Kind is the Go type of the error (e.g., "*fs.PathError").
	Kind string `json:"kind"`
	// Message is the error's Error() string.
	Message string `json:"message"`
	// Trace holds a stack trace when one was captured (panics).
	Trace string `json:"trace,omitempty"`
}

// Record is one agent invocation's captured execution metadata.
//
// Snapshots are JSON value trees (map[string]any, []any, scalars) — the shape
// encoding/json produces — so redaction and summarization can recurse over
// them structurally.
type Record struct {
	// SessionID identifies the end-to-end request this invocation belongs to.
	// Assigned by the caller at request start; never regenerated here.
	SessionID string `json:"session_id"`

	// AgentName identifies which agent ran.
	AgentName string `json:"agent_name"`

	// SequenceIndex is the per-session enqueue order, assigned by the writer.
	// It is the authoritative ordering even when timestamps tie across
	// parallel branches.
	SequenceIndex int64 `json:"sequence_index"`

	// StartTime and EndTime bound the invocation. EndTime is clamped so it is
	// never before StartTime.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// DurationMS is derived from EndTime - StartTime.
	DurationMS float64 `json:"duration_ms"`

	// Status is the invocation outcome.
	Status Status `json:"status"`

	// InputSnapshot is the redacted input state. OutputSnapshot is absent
	// unless the invocation succeeded.
	InputSnapshot  map[string]any `json:"input_snapshot,omitempty"`
	OutputSnapshot map[string]any `json:"output_snapshot,omitempty"`

	// Error is present only when Status is not success.
	Error *ErrorInfo `json:"error,omitempty"`

	// ParallelGroup is the tag shared by concurrently-dispatched siblings, as
	// reported by the supervisor. Empty for sequential steps.
	ParallelGroup string `json:"parallel_group,omitempty"`

	// Metadata is an open bag of backend annotations, passed through opaquely.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ClampTimes enforces EndTime >= StartTime and recomputes DurationMS.
// Clock skew between goroutines must never produce a negative duration.
func (r *Record) ClampTimes() {
	if r.EndTime.Before(r.StartTime) {
		r.EndTime = r.StartTime
	}
	r.DurationMS = float64(r.EndTime.Sub(r.StartTime)) / float64(time.Millisecond)
}

// Failed reports whether the invocation did not succeed.
func (r *Record) Failed() bool {
	return r.Status != StatusSuccess
}
