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

// Package sessions implements the session listing and inspection commands.
package sessions

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flightrec/flightrec/internal/commands/shared"
	"github.com/flightrec/flightrec/internal/record"
	"github.com/flightrec/flightrec/internal/store"
)

// NewCommand creates the sessions command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and inspect recorded sessions",
	}
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	s, _, cleanup, err := shared.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	infos, err := s.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		return shared.EmitJSON(infos)
	}

	if len(infos) == 0 {
		cmd.Println("No sessions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTATUS\tAGENTS\tFAILED\tDURATION\tENDED\tSIZE")
	for _, info := range infos {
		ended := "-"
		if !info.EndedAt.IsZero() {
			ended = info.EndedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.0fms\t%s\t%s\n",
			info.SessionID,
			shared.RenderFinalStatus(info.FinalStatus),
			info.TotalAgents,
			info.Failed,
			info.DurationMS,
			ended,
			formatBytes(info.Bytes))
	}
	return tw.Flush()
}

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's records in execution order",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	cmd.Flags().StringSlice("agent", nil, "Only show records for these agents")
	cmd.Flags().StringSlice("status", nil, "Only show records with these statuses (success, error, timeout)")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	s, _, cleanup, err := shared.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	agents, _ := cmd.Flags().GetStringSlice("agent")
	statuses, _ := cmd.Flags().GetStringSlice("status")

	query := &store.Query{Agents: agents}
	for _, st := range statuses {
		query.Statuses = append(query.Statuses, record.Status(st))
	}

	records, err := s.SessionRecords(args[0], query)
	var corrupt *store.CorruptError
	if err != nil && !errors.As(err, &corrupt) {
		return err
	}

	if shared.GetJSON() {
		out := map[string]any{"session_id": args[0], "records": records}
		if corrupt != nil {
			out["warning"] = corrupt.Error()
		}
		return shared.EmitJSON(out)
	}

	for _, r := range records {
		line := fmt.Sprintf("%4d  %s  %s  %.0fms",
			r.SequenceIndex, r.AgentName, shared.RenderStatus(r.Status), r.DurationMS)
		if r.ParallelGroup != "" {
			line += "  " + shared.Muted.Render("["+r.ParallelGroup+"]")
		}
		if r.Error != nil {
			line += "  " + shared.StatusError.Render(r.Error.Message)
		}
		cmd.Println(line)
	}

	if summary, err := s.LoadSummary(args[0]); err == nil {
		cmd.Println(strings.Repeat("-", 40))
		cmd.Printf("%s  %d agents, %d failed, %.0fms total\n",
			shared.RenderFinalStatus(summary.FinalStatus),
			summary.TotalAgents, summary.Failed, summary.TotalDurationMS)
	}

	if corrupt != nil {
		cmd.PrintErrln(shared.StatusWarn.Render("warning: " + corrupt.Error()))
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
