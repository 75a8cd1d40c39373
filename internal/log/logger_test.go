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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("segment flushed", slog.String(SessionIDKey, "s1"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "segment flushed" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry[SessionIDKey] != "s1" {
		t.Errorf("unexpected session_id: %v", entry[SessionIDKey])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatText, Output: &buf})

	logger.Debug("rotating", slog.String(SegmentKey, "s1-0001.ndjson"))

	if !strings.Contains(buf.String(), "rotating") {
		t.Errorf("expected text output to contain message, got %q", buf.String())
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "error", Format: FormatJSON, Output: &buf})

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("info log leaked through error level: %q", buf.String())
	}

	logger.Error("should appear")
	if buf.Len() == 0 {
		t.Error("error log was dropped")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(New(&Config{Level: "info", Format: FormatJSON, Output: &buf}), "writer")

	logger.Info("hello")

	if !strings.Contains(buf.String(), `"component":"writer"`) {
		t.Errorf("component field missing: %q", buf.String())
	}
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSession(New(&Config{Level: "info", Format: FormatJSON, Output: &buf}), "run-42")

	logger.Info("tailing")

	if !strings.Contains(buf.String(), `"session_id":"run-42"`) {
		t.Errorf("session field missing: %q", buf.String())
	}
}
