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

// Package purge implements the retention sweep command.
package purge

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flightrec/flightrec/internal/catalog"
	"github.com/flightrec/flightrec/internal/commands/shared"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/retention"
)

// NewCommand creates the purge command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete sessions older than the retention window",
		Args:  cobra.NoArgs,
		RunE:  runPurge,
	}
	cmd.Flags().Duration("older-than", 0, "Delete sessions older than this (e.g. 720h; default from retention_days)")
	return cmd
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	olderThan, _ := cmd.Flags().GetDuration("older-than")
	maxAge := cfg.RetentionAge()
	if olderThan > 0 {
		maxAge = olderThan
	}
	if maxAge <= 0 {
		return fmt.Errorf("retention window not set; pass --older-than or configure retention_days")
	}

	logger := log.New(log.FromEnv())
	var opts []retention.Option
	if path := shared.CatalogPath(cfg); path != "" {
		if cat, err := catalog.Open(path); err == nil {
			defer cat.Close()
			opts = append(opts, retention.WithCatalog(cat))
		}
	}

	threshold := time.Now().Add(-maxAge)
	report, err := retention.PurgeOlderThan(cmd.Context(), cfg.DataDir, threshold, logger, opts...)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		return shared.EmitJSON(report)
	}

	cmd.Printf("Purged %d sessions (%d files, %s reclaimed)\n",
		report.SessionsDeleted, report.FilesDeleted, formatBytes(report.BytesReclaimed))
	for _, f := range report.Failures {
		cmd.PrintErrln(shared.StatusError.Render(
			fmt.Sprintf("failed to purge %s: %s", f.SessionID, f.Err)))
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d sessions could not be purged", len(report.Failures))
	}
	return nil
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
