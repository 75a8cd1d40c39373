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
	"errors"
	"fmt"
)

// Node is one agent invocation in a flow graph.
type Node struct {
	ID            string  `json:"id"`
	AgentName     string  `json:"agent_name"`
	SequenceIndex int64   `json:"sequence_index"`
	Status        string  `json:"status"`
	DurationMS    float64 `json:"duration_ms"`
	ParallelGroup string  `json:"parallel_group,omitempty"`
	Failed        bool    `json:"failed"`
}

// Stage is a set of nodes that executed as one step of the workflow: either
// a single sequential invocation or a whole parallel group.
type Stage struct {
	Group   string   `json:"group,omitempty"`
	NodeIDs []string `json:"node_ids"`
}

// Edge is a sequential dependency between two invocations.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the derived execution flow of one session.
type Graph struct {
	SessionID string  `json:"session_id"`
	Nodes     []Node  `json:"nodes"`
	Stages    []Stage `json:"stages"`
	Edges     []Edge  `json:"edges"`
}

// Flow derives a session's dependency/parallelism graph. Records sharing a
// parallel group form one concurrent stage; ungrouped records are strictly
// sequential relative to their sequence-index neighbors. Edges connect every
// node of a stage to every node of the next.
//
// The parallel group is a flat equivalence tag: overlapping or nested group
// reports are not modeled, and a group id that reappears after an unrelated
// stage starts a new stage.
//
// On partially corrupt sessions, the graph over the valid prefix is returned
// together with the *CorruptError.
func (s *Store) Flow(sessionID string) (*Graph, error) {
	records, err := s.SessionRecords(sessionID, nil)
	var corrupt *CorruptError
	if err != nil && !errors.As(err, &corrupt) {
		return nil, err
	}

	g := &Graph{SessionID: sessionID}

	for _, r := range records {
		node := Node{
			ID:            fmt.Sprintf("n%d", r.SequenceIndex),
			AgentName:     r.AgentName,
			SequenceIndex: r.SequenceIndex,
			Status:        string(r.Status),
			DurationMS:    r.DurationMS,
			ParallelGroup: r.ParallelGroup,
			Failed:        r.Failed(),
		}
		g.Nodes = append(g.Nodes, node)

		last := len(g.Stages) - 1
		if r.ParallelGroup != "" && last >= 0 && g.Stages[last].Group == r.ParallelGroup {
			g.Stages[last].NodeIDs = append(g.Stages[last].NodeIDs, node.ID)
			continue
		}
		g.Stages = append(g.Stages, Stage{Group: r.ParallelGroup, NodeIDs: []string{node.ID}})
	}

	for i := 1; i < len(g.Stages); i++ {
		for _, from := range g.Stages[i-1].NodeIDs {
			for _, to := range g.Stages[i].NodeIDs {
				g.Edges = append(g.Edges, Edge{From: from, To: to})
			}
		}
	}

	if corrupt != nil {
		return g, corrupt
	}
	return g, nil
}
