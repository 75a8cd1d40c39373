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

// Package tail implements live session streaming.
package tail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/flightrec/flightrec/internal/commands/shared"
)

// NewCommand creates the tail command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tail <session-id>",
		Short: "Stream a live session's records as they are written",
		Long: `Follow a session while it runs, printing each record as the recorder
flushes it. The stream ends when the session closes. The session does
not need to exist yet; tail waits for its first write.`,
		Args: cobra.ExactArgs(1),
		RunE: runTail,
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	s, _, cleanup, err := shared.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	t, err := s.Follow(ctx, args[0])
	if err != nil {
		return err
	}

	for rec := range t.Records {
		if shared.GetJSON() {
			line, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			cmd.Println(string(line))
			continue
		}

		line := fmt.Sprintf("%4d  %s  %s  %.0fms",
			rec.SequenceIndex, rec.AgentName, shared.RenderStatus(rec.Status), rec.DurationMS)
		if rec.Error != nil {
			line += "  " + shared.StatusError.Render(rec.Error.Message)
		}
		cmd.Println(line)
	}

	if err := t.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
