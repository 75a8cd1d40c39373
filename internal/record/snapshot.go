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

package record

import (
	"fmt"
	"sort"
)

// Clone deep-copies a JSON value tree so a snapshot shares no mutable state
// with the live call it was taken from.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	default:
		// Scalars are immutable.
		return v
	}
}

// CloneMap deep-copies a state map. A nil input yields a nil output.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Clone(m).(map[string]any)
}

// Summarize reduces a state map to its shape: key count, sorted key list, and
// element counts for collection-valued keys. This bounds serialization cost
// when full snapshots are not wanted.
func Summarize(state map[string]any) map[string]any {
	if state == nil {
		return map[string]any{"_empty": true}
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	summary := map[string]any{
		"_key_count": len(state),
		"_keys":      keys,
	}

	for _, k := range keys {
		switch v := state[k].(type) {
		case []any:
			summary[k+"_count"] = len(v)
		case map[string]any:
			summary[k+"_keys"] = len(v)
		}
	}

	return summary
}

// DescribeValue renders a scalar for tabular output. Collections render as
// their shape rather than their content.
func DescribeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "<absent>"
	case map[string]any:
		return fmt.Sprintf("map[%d keys]", len(val))
	case []any:
		return fmt.Sprintf("list[%d items]", len(val))
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
