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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 100, cfg.MaxSegmentMB)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.True(t, cfg.FileEnabled)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("FLIGHTREC_LEVEL", "DEBUG")
	t.Setenv("FLIGHTREC_DATA_DIR", "/tmp/rec")
	t.Setenv("FLIGHTREC_FILE_ENABLED", "false")
	t.Setenv("FLIGHTREC_BATCH_SIZE", "25")
	t.Setenv("FLIGHTREC_FLUSH_INTERVAL", "2s")
	t.Setenv("FLIGHTREC_MAX_SEGMENT_MB", "50")

	cfg := FromEnv()

	assert.Equal(t, LevelDebug, cfg.Level)
	assert.Equal(t, "/tmp/rec", cfg.DataDir)
	assert.False(t, cfg.FileEnabled)
	assert.True(t, cfg.ConsoleEnabled) // untouched default
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, 50, cfg.MaxSegmentMB)
}

func TestFromEnv_IgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("FLIGHTREC_BATCH_SIZE", "lots")
	t.Setenv("FLIGHTREC_FLUSH_INTERVAL", "soon")

	cfg := FromEnv()

	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flightrec.yaml")
	data := `
level: warning
data_dir: /var/lib/flightrec
flush_interval: 500ms
batch_size: 3
redaction: strict
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, LevelWarning, cfg.Level)
	assert.Equal(t, "/var/lib/flightrec", cfg.DataDir)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 3, cfg.BatchSize)
	assert.Equal(t, "strict", cfg.Redaction)
	// Unset keys keep their defaults.
	assert.Equal(t, 100, cfg.MaxSegmentMB)
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flightrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flush_interval: whenever\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad level",
			mutate:  func(c *Config) { c.Level = "loud" },
			wantErr: "invalid level",
		},
		{
			name:    "bad redaction",
			mutate:  func(c *Config) { c.Redaction = "partial" },
			wantErr: "invalid redaction",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "negative flush interval",
			mutate:  func(c *Config) { c.FlushInterval = -time.Second },
			wantErr: "flush_interval",
		},
		{
			name:    "zero rotation ceiling",
			mutate:  func(c *Config) { c.MaxSegmentMB = 0 },
			wantErr: "max_segment_mb",
		},
		{
			name:    "zero retention",
			mutate:  func(c *Config) { c.RetentionDays = 0 },
			wantErr: "retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
