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

// Package cli assembles the flightrec command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/flightrec/flightrec/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flightrec",
		Short: "Flightrec - execution recorder for agent pipelines",
		Long: `Flightrec records what multi-agent pipelines actually did: which agents
ran, in what order, with what data, and where things went wrong.

Point it at a data directory (--data-dir or FLIGHTREC_DATA_DIR) and use
'sessions list' to see what has been recorded.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	jsonFlag, configPath, dataDir := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVar(jsonFlag, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(dataDir, "data-dir", "", "Data directory holding session files")

	return cmd
}
