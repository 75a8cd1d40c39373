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

// Package flow implements the execution-flow visualization command.
package flow

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flightrec/flightrec/internal/commands/shared"
	"github.com/flightrec/flightrec/internal/store"
)

// NewCommand creates the flow command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow <session-id>",
		Short: "Show a session's execution flow",
		Long: `Reconstruct a session's execution graph: sequential steps, parallel
fan-outs, and where failures occurred. Use --format mermaid for a
diagram suitable for embedding in markdown.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlow,
	}
	cmd.Flags().String("format", "text", "Output format: text or mermaid")
	return cmd
}

func runFlow(cmd *cobra.Command, args []string) error {
	s, _, cleanup, err := shared.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	graph, err := s.Flow(args[0])
	var corrupt *store.CorruptError
	if err != nil && !errors.As(err, &corrupt) {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch {
	case shared.GetJSON():
		if err := shared.EmitJSON(graph); err != nil {
			return err
		}
	case format == "mermaid":
		cmd.Print(store.RenderMermaid(graph))
	case format == "text":
		cmd.Print(store.RenderText(graph))
	default:
		return fmt.Errorf("unknown format %q (want text or mermaid)", format)
	}

	if corrupt != nil {
		cmd.PrintErrln(shared.StatusWarn.Render("warning: " + corrupt.Error()))
	}
	return nil
}
