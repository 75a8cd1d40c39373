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

// Package compare implements the cross-session diff command.
package compare

import (
	"encoding/csv"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flightrec/flightrec/internal/commands/shared"
)

// NewCommand creates the compare command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <session-id> <session-id> [session-id...]",
		Short: "Diff agent outputs across sessions",
		Long: `Compare what each agent produced across two or more sessions of the
same pipeline. Fields are jq expressions evaluated against a map of
agent name to final output; by default every agent's whole output is
compared.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runCompare,
	}
	cmd.Flags().StringArray("field", nil, "jq expression to compare (repeatable, e.g. '.writer.tone')")
	cmd.Flags().Bool("diff-only", false, "Only show fields that differ")
	cmd.Flags().Bool("csv", false, "Emit the comparison table as CSV")
	return cmd
}

func runCompare(cmd *cobra.Command, args []string) error {
	s, _, cleanup, err := shared.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	fields, _ := cmd.Flags().GetStringArray("field")
	diffOnly, _ := cmd.Flags().GetBool("diff-only")

	cmp, err := s.Compare(cmd.Context(), args, fields)
	if err != nil {
		return err
	}

	if diffOnly {
		kept := cmp.Fields[:0]
		for _, f := range cmp.Fields {
			if !f.Equal {
				kept = append(kept, f)
			}
		}
		cmp.Fields = kept
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmp)
	}

	if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
		w := csv.NewWriter(cmd.OutOrStdout())
		if err := w.WriteAll(cmp.Table()); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for i, row := range cmp.Table() {
		if i == 0 {
			for j, cell := range row {
				row[j] = shared.Header.Render(cell)
			}
		} else if !cmp.Fields[i-1].Equal {
			row[0] = shared.StatusWarn.Render(row[0])
		}
		for j, cell := range row {
			if j > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, w := range cmp.Warnings {
		cmd.PrintErrln(shared.StatusWarn.Render("warning: " + w))
	}
	cmd.Printf("\n%d of %d fields differ\n", cmp.DiffCount(), len(cmp.Fields))
	return nil
}
