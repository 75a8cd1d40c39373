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

// ErrNotFound indicates no persisted data exists for the requested session.
var ErrNotFound = errors.New("session not found")

// CorruptError reports malformed persisted data. Queries that return it still
// return the valid prefix that could be parsed; the error is the explicit
// incompleteness indicator.
type CorruptError struct {
	SessionID string
	Segment   string
	Line      int
	Err       error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("session %s: corrupt record at %s:%d: %v", e.SessionID, e.Segment, e.Line, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}
