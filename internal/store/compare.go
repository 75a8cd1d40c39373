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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/itchyny/gojq"
	"golang.org/x/sync/errgroup"

	"github.com/flightrec/flightrec/internal/record"
)

// sessionDoc is the queryable shape of one session: final output snapshot per
// agent, keyed by agent name. When an agent ran more than once, the last
// invocation wins.
type sessionDoc map[string]any

// FieldDiff is one compared field across sessions, in the caller's session
// order. Values are JSON value trees or nil when the field is absent.
type FieldDiff struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
	Equal  bool   `json:"equal"`
}

// Comparison is a field-by-field diff of two or more sessions.
type Comparison struct {
	SessionIDs []string    `json:"session_ids"`
	Fields     []FieldDiff `json:"fields"`
	// Warnings lists sessions whose data was partially corrupt; their
	// values reflect only the valid prefix.
	Warnings []string `json:"warnings,omitempty"`
}

// DiffCount returns the number of compared fields that differ.
func (c *Comparison) DiffCount() int {
	n := 0
	for _, f := range c.Fields {
		if !f.Equal {
			n++
		}
	}
	return n
}

// Table flattens the comparison for tabular rendering: a header row of
// session ids, then one row per field with JSON-encoded values.
func (c *Comparison) Table() [][]string {
	rows := make([][]string, 0, len(c.Fields)+1)
	header := append([]string{"field"}, c.SessionIDs...)
	rows = append(rows, header)
	for _, f := range c.Fields {
		row := make([]string, 0, len(f.Values)+1)
		row = append(row, f.Field)
		for _, v := range f.Values {
			row = append(row, compactJSON(v))
		}
		rows = append(rows, row)
	}
	return rows
}

// Compare evaluates jq field expressions against two or more sessions and
// reports which fields differ. With no explicit fields, every agent's output
// snapshot in the union of agents across the sessions is compared.
//
// A session that exists but is partially corrupt contributes its valid prefix
// and a warning; a session with no data at all fails the comparison.
func (s *Store) Compare(ctx context.Context, sessionIDs []string, fields []string) (*Comparison, error) {
	if len(sessionIDs) < 2 {
		return nil, fmt.Errorf("compare needs at least two sessions, got %d", len(sessionIDs))
	}

	docs := make([]sessionDoc, len(sessionIDs))
	warnings := make([]string, len(sessionIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range sessionIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, corrupt, err := s.loadDoc(id)
			if err != nil {
				return err
			}
			docs[i] = doc
			if corrupt != nil {
				warnings[i] = corrupt.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		fields = defaultFields(docs)
	}

	cmp := &Comparison{SessionIDs: sessionIDs}
	for _, w := range warnings {
		if w != "" {
			cmp.Warnings = append(cmp.Warnings, w)
		}
	}

	for _, field := range fields {
		query, err := gojq.Parse(field)
		if err != nil {
			return nil, fmt.Errorf("parse field %q: %w", field, err)
		}

		diff := FieldDiff{Field: field, Equal: true}
		for i, doc := range docs {
			v, err := evalField(ctx, query, map[string]any(doc))
			if err != nil {
				return nil, fmt.Errorf("evaluate %q against %s: %w", field, sessionIDs[i], err)
			}
			diff.Values = append(diff.Values, v)
			if i > 0 && diff.Equal && !reflect.DeepEqual(diff.Values[0], v) {
				diff.Equal = false
			}
		}
		cmp.Fields = append(cmp.Fields, diff)
	}

	return cmp, nil
}

func (s *Store) loadDoc(sessionID string) (sessionDoc, *CorruptError, error) {
	records, err := s.SessionRecords(sessionID, nil)
	var corrupt *CorruptError
	if err != nil && !errors.As(err, &corrupt) {
		return nil, nil, err
	}

	doc := make(sessionDoc)
	for _, r := range records {
		if r.Status != record.StatusSuccess {
			continue
		}
		doc[r.AgentName] = record.CloneMap(r.OutputSnapshot)
	}
	return doc, corrupt, nil
}

// defaultFields builds one jq selector per agent seen in any session.
func defaultFields(docs []sessionDoc) []string {
	agents := make(map[string]struct{})
	for _, doc := range docs {
		for name := range doc {
			agents[name] = struct{}{}
		}
	}

	fields := make([]string, 0, len(agents))
	for name := range agents {
		fields = append(fields, fmt.Sprintf(".[%q]", name))
	}
	sort.Strings(fields)
	return fields
}

// evalField runs a compiled jq query and returns its first result. Multiple
// results are collected into a slice so they still compare deterministically.
func evalField(ctx context.Context, query *gojq.Query, doc map[string]any) (any, error) {
	iter := query.RunWithContext(ctx, doc)

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, err
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func compactJSON(v any) string {
	if v == nil {
		return "-"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
