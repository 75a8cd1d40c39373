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

package store

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a flow graph as a mermaid flowchart. Failed
// invocations get a distinct style class; parallel groups render as
// subgraphs when they contain more than one node.
func RenderMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	nodesByID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodesByID[n.ID] = n
	}

	var failed []string
	writeNode := func(indent string, n Node) {
		label := fmt.Sprintf("%s<br/>%s %.0fms", escapeMermaid(n.AgentName), n.Status, n.DurationMS)
		fmt.Fprintf(&b, "%s%s[\"%s\"]\n", indent, n.ID, label)
		if n.Failed {
			failed = append(failed, n.ID)
		}
	}

	for i, stage := range g.Stages {
		if stage.Group != "" && len(stage.NodeIDs) > 1 {
			fmt.Fprintf(&b, "    subgraph %s_%d[\"%s\"]\n", sanitizeMermaidID(stage.Group), i, escapeMermaid(stage.Group))
			for _, id := range stage.NodeIDs {
				writeNode("        ", nodesByID[id])
			}
			b.WriteString("    end\n")
			continue
		}
		for _, id := range stage.NodeIDs {
			writeNode("    ", nodesByID[id])
		}
	}

	for _, e := range g.Edges {
		fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
	}

	if len(failed) > 0 {
		b.WriteString("    classDef failed fill:#f8d7da,stroke:#842029,color:#842029\n")
		fmt.Fprintf(&b, "    class %s failed\n", strings.Join(failed, ","))
	}

	return b.String()
}

// RenderText renders a flow graph as an indented stage listing for terminal
// output.
func RenderText(g *Graph) string {
	var b strings.Builder
	nodesByID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodesByID[n.ID] = n
	}

	for i, stage := range g.Stages {
		if stage.Group != "" && len(stage.NodeIDs) > 1 {
			fmt.Fprintf(&b, "%d. [parallel: %s]\n", i+1, stage.Group)
			for _, id := range stage.NodeIDs {
				n := nodesByID[id]
				fmt.Fprintf(&b, "     %s  %s  %.0fms\n", n.AgentName, n.Status, n.DurationMS)
			}
			continue
		}
		for _, id := range stage.NodeIDs {
			n := nodesByID[id]
			fmt.Fprintf(&b, "%d. %s  %s  %.0fms\n", i+1, n.AgentName, n.Status, n.DurationMS)
		}
	}
	return b.String()
}

func escapeMermaid(s string) string {
	s = strings.ReplaceAll(s, "\"", "#quot;")
	s = strings.ReplaceAll(s, "[", "#91;")
	s = strings.ReplaceAll(s, "]", "#93;")
	return s
}

func sanitizeMermaidID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
