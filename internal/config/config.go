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

// Package config holds the recorder's configuration surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Level controls capture verbosity.
type Level string

const (
	// LevelDebug captures full redacted input/output snapshots.
	LevelDebug Level = "debug"
	// LevelInfo captures shape summaries (key counts, collection sizes).
	LevelInfo Level = "info"
	// LevelWarning captures timing and status only.
	LevelWarning Level = "warning"
	// LevelError captures timing and status only, and only for failures.
	LevelError Level = "error"
)

// Config holds the recorder configuration.
type Config struct {
	// Level sets the capture verbosity (debug, info, warning, error).
	Level Level `yaml:"level"`

	// DataDir is the directory holding session segment and summary files.
	DataDir string `yaml:"data_dir"`

	// FileEnabled controls file persistence, independent of ConsoleEnabled.
	FileEnabled bool `yaml:"file_enabled"`

	// ConsoleEnabled mirrors a one-line result per invocation to the logger.
	ConsoleEnabled bool `yaml:"console_enabled"`

	// Redaction is the redaction mode (none, standard, strict).
	Redaction string `yaml:"redaction"`

	// BatchSize is the per-session record count that triggers a flush.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the maximum time records sit buffered before a
	// timer-driven flush.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxSegmentMB is the rotation ceiling for a session segment file.
	MaxSegmentMB int `yaml:"max_segment_mb"`

	// RetentionDays is the age past which sessions may be purged.
	RetentionDays int `yaml:"retention_days"`

	// CatalogPath is the sqlite session catalog location. Empty means
	// DataDir/catalog.db. Set to "off" to disable the catalog.
	CatalogPath string `yaml:"catalog_path"`
}

// Default returns configuration with the stock thresholds.
func Default() *Config {
	return &Config{
		Level:          LevelInfo,
		DataDir:        "flightrec-data",
		FileEnabled:    true,
		ConsoleEnabled: true,
		Redaction:      "standard",
		BatchSize:      10,
		FlushInterval:  5 * time.Second,
		MaxSegmentMB:   100,
		RetentionDays:  30,
	}
}

// FromEnv creates a Config from environment variables, starting from
// defaults. Supported variables:
//   - FLIGHTREC_LEVEL: debug, info, warning, error
//   - FLIGHTREC_DATA_DIR: segment/summary directory
//   - FLIGHTREC_FILE_ENABLED, FLIGHTREC_CONSOLE_ENABLED: true/false
//   - FLIGHTREC_REDACTION: none, standard, strict
//   - FLIGHTREC_BATCH_SIZE: records per flush
//   - FLIGHTREC_FLUSH_INTERVAL: Go duration (e.g., 5s)
//   - FLIGHTREC_MAX_SEGMENT_MB: rotation ceiling
//   - FLIGHTREC_RETENTION_DAYS: purge threshold
//   - FLIGHTREC_CATALOG_PATH: catalog db path, or "off"
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("FLIGHTREC_LEVEL"); v != "" {
		cfg.Level = Level(strings.ToLower(v))
	}
	if v := os.Getenv("FLIGHTREC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLIGHTREC_FILE_ENABLED"); v != "" {
		cfg.FileEnabled = parseBool(v, cfg.FileEnabled)
	}
	if v := os.Getenv("FLIGHTREC_CONSOLE_ENABLED"); v != "" {
		cfg.ConsoleEnabled = parseBool(v, cfg.ConsoleEnabled)
	}
	if v := os.Getenv("FLIGHTREC_REDACTION"); v != "" {
		cfg.Redaction = strings.ToLower(v)
	}
	if v := os.Getenv("FLIGHTREC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("FLIGHTREC_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FlushInterval = d
		}
	}
	if v := os.Getenv("FLIGHTREC_MAX_SEGMENT_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSegmentMB = n
		}
	}
	if v := os.Getenv("FLIGHTREC_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionDays = n
		}
	}
	if v := os.Getenv("FLIGHTREC_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}

	return cfg
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes the config, accepting flush_interval as a Go
// duration string ("5s") rather than raw nanoseconds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Level          string `yaml:"level"`
		DataDir        string `yaml:"data_dir"`
		FileEnabled    *bool  `yaml:"file_enabled"`
		ConsoleEnabled *bool  `yaml:"console_enabled"`
		Redaction      string `yaml:"redaction"`
		BatchSize      *int   `yaml:"batch_size"`
		FlushInterval  string `yaml:"flush_interval"`
		MaxSegmentMB   *int   `yaml:"max_segment_mb"`
		RetentionDays  *int   `yaml:"retention_days"`
		CatalogPath    string `yaml:"catalog_path"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}

	if aux.Level != "" {
		c.Level = Level(strings.ToLower(aux.Level))
	}
	if aux.DataDir != "" {
		c.DataDir = aux.DataDir
	}
	if aux.FileEnabled != nil {
		c.FileEnabled = *aux.FileEnabled
	}
	if aux.ConsoleEnabled != nil {
		c.ConsoleEnabled = *aux.ConsoleEnabled
	}
	if aux.Redaction != "" {
		c.Redaction = strings.ToLower(aux.Redaction)
	}
	if aux.BatchSize != nil {
		c.BatchSize = *aux.BatchSize
	}
	if aux.FlushInterval != "" {
		d, err := time.ParseDuration(aux.FlushInterval)
		if err != nil {
			return fmt.Errorf("invalid flush_interval: %w", err)
		}
		c.FlushInterval = d
	}
	if aux.MaxSegmentMB != nil {
		c.MaxSegmentMB = *aux.MaxSegmentMB
	}
	if aux.RetentionDays != nil {
		c.RetentionDays = *aux.RetentionDays
	}
	if aux.CatalogPath != "" {
		c.CatalogPath = aux.CatalogPath
	}
	return nil
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
	default:
		return fmt.Errorf("invalid level %q (must be debug, info, warning, or error)", c.Level)
	}

	switch c.Redaction {
	case "none", "standard", "strict":
	default:
		return fmt.Errorf("invalid redaction mode %q (must be none, standard, or strict)", c.Redaction)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.MaxSegmentMB <= 0 {
		return fmt.Errorf("max_segment_mb must be positive, got %d", c.MaxSegmentMB)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", c.RetentionDays)
	}
	return nil
}

// MaxSegmentBytes returns the rotation ceiling in bytes.
func (c *Config) MaxSegmentBytes() int64 {
	return int64(c.MaxSegmentMB) * 1024 * 1024
}

// RetentionAge returns the retention threshold as a duration.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}
