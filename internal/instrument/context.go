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

package instrument

import "context"

type contextKey int

const (
	sessionKey contextKey = iota
	parallelGroupKey
)

// WithSession tags a context with the session id that all instrumented
// invocations under it record against.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionFrom extracts the session id from a context, if present.
func SessionFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey).(string)
	return id, ok && id != ""
}

// WithParallelGroup tags a context with the dispatch group shared by
// concurrently launched workers. The supervisor sets this once per fan-out.
func WithParallelGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, parallelGroupKey, group)
}

// ParallelGroupFrom extracts the parallel dispatch group, if present.
func ParallelGroupFrom(ctx context.Context) (string, bool) {
	g, ok := ctx.Value(parallelGroupKey).(string)
	return g, ok && g != ""
}

// RunGrouped runs w with the given dispatch group tag, for supervisors that
// fan out workers without threading their own contexts.
func RunGrouped(ctx context.Context, group string, w Worker, input map[string]any) (map[string]any, error) {
	return w.Run(WithParallelGroup(ctx, group), input)
}
