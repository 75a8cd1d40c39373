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

package shared

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/flightrec/flightrec/internal/record"
)

// CLI style colors using lipgloss
var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles partial-success indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// Muted styles secondary/less important text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text
	Bold = lipgloss.NewStyle().Bold(true)

	// Header styles section headers
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")) // blue bold
)

// RenderStatus colors an invocation status.
func RenderStatus(s record.Status) string {
	switch s {
	case record.StatusSuccess:
		return StatusOK.Render(string(s))
	case record.StatusTimeout:
		return StatusWarn.Render(string(s))
	default:
		return StatusError.Render(string(s))
	}
}

// RenderFinalStatus colors a session outcome.
func RenderFinalStatus(s record.FinalStatus) string {
	switch s {
	case record.FinalSuccess:
		return StatusOK.Render(string(s))
	case record.FinalPartialSuccess:
		return StatusWarn.Render(string(s))
	case "":
		return Muted.Render("open")
	default:
		return StatusError.Render(string(s))
	}
}
