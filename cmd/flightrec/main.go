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

package main

import (
	"fmt"
	"os"

	"github.com/flightrec/flightrec/internal/cli"
	"github.com/flightrec/flightrec/internal/commands/compare"
	"github.com/flightrec/flightrec/internal/commands/flow"
	"github.com/flightrec/flightrec/internal/commands/purge"
	"github.com/flightrec/flightrec/internal/commands/sessions"
	"github.com/flightrec/flightrec/internal/commands/tail"
	versioncmd "github.com/flightrec/flightrec/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(sessions.NewCommand())
	rootCmd.AddCommand(flow.NewCommand())
	rootCmd.AddCommand(compare.NewCommand())
	rootCmd.AddCommand(tail.NewCommand())
	rootCmd.AddCommand(purge.NewCommand())
	rootCmd.AddCommand(versioncmd.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
