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

// Package shared holds cross-command CLI state: global flags, version
// metadata, JSON output, and store construction.
package shared

import (
	"encoding/json"
	"os"

	"github.com/flightrec/flightrec/internal/catalog"
	"github.com/flightrec/flightrec/internal/config"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/store"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build-time version metadata.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns version metadata.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// Global flag values, registered on the root command.
var (
	jsonOutput bool
	configPath string
	dataDir    string
)

// RegisterFlagPointers exposes the global flag storage for the root command
// to bind.
func RegisterFlagPointers() (jsonFlag *bool, cfgPath *string, data *string) {
	return &jsonOutput, &configPath, &dataDir
}

// GetJSON reports whether --json was passed.
func GetJSON() bool {
	return jsonOutput
}

// EmitJSON writes an indented JSON document to stdout.
func EmitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// LoadConfig resolves configuration: the --config file when given, the
// environment otherwise, with --data-dir overriding either.
func LoadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.FromEnv()
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore builds the query engine for the configured data directory. The
// returned cleanup closes the catalog when one was opened.
func OpenStore() (*store.Store, *config.Config, func(), error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := log.New(log.FromEnv())
	cleanup := func() {}

	var opts []store.Option
	if path := catalogPath(cfg); path != "" {
		if cat, err := catalog.Open(path); err == nil {
			opts = append(opts, store.WithCatalog(cat))
			cleanup = func() { cat.Close() }
		}
		// A broken catalog is not fatal: the store lists from disk.
	}

	return store.New(cfg.DataDir, logger, opts...), cfg, cleanup, nil
}

// CatalogPath resolves the effective catalog location, or "" when disabled.
func CatalogPath(cfg *config.Config) string {
	return catalogPath(cfg)
}

func catalogPath(cfg *config.Config) string {
	switch cfg.CatalogPath {
	case "off":
		return ""
	case "":
		return cfg.DataDir + string(os.PathSeparator) + "catalog.db"
	default:
		return cfg.CatalogPath
	}
}
