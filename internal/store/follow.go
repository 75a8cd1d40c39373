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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/record"
)

// followPollInterval bounds staleness when filesystem notifications are
// unreliable (network mounts, editors replacing files).
const followPollInterval = 500 * time.Millisecond

// Tail streams a live session's records as the writer appends them.
type Tail struct {
	// Records delivers complete records in file order. Closed when the
	// session ends, the context is canceled, or an error occurs.
	Records <-chan *record.Record

	done chan struct{}
	err  error
}

// Err reports why the stream ended. It is valid after Records is closed.
// A session that ended normally returns nil.
func (t *Tail) Err() error {
	<-t.done
	return t.err
}

// Follow tails a session, emitting every already-persisted record and then
// each new one as it is flushed. Only complete newline-terminated lines are
// emitted, so a torn append is never surfaced. The stream ends when the
// session's summary file appears, which is the writer's close marker.
//
// The session does not need to exist yet; Follow waits for its first segment.
func (s *Store) Follow(ctx context.Context, sessionID string) (*Tail, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}

	out := make(chan *record.Record, 64)
	t := &Tail{Records: out, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer close(out)
		defer watcher.Close()

		logger := log.WithSession(s.logger, sessionID)
		cursor := &followCursor{dir: s.dir, sessionID: sessionID}
		ticker := time.NewTicker(followPollInterval)
		defer ticker.Stop()

		for {
			finished, err := cursor.scan(ctx, out)
			if err != nil {
				t.err = err
				return
			}
			if finished {
				return
			}

			select {
			case <-ctx.Done():
				t.err = ctx.Err()
				return
			case err, ok := <-watcher.Errors:
				if ok && err != nil {
					logger.Warn("watch error while tailing", "error", err)
				}
			case <-watcher.Events:
				// Coalesce: the scan below re-reads everything new.
			case <-ticker.C:
			}
		}
	}()

	return t, nil
}

// followCursor tracks read progress through a session's segment chain.
type followCursor struct {
	dir       string
	sessionID string
	rotation  int
	offset    int64
}

// scan drains every complete record available past the cursor and advances
// it. Returns true once the session summary exists and all data is consumed.
func (c *followCursor) scan(ctx context.Context, out chan<- *record.Record) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		path := filepath.Join(c.dir, layout.SegmentFile(c.sessionID, c.rotation))
		n, err := c.emitSegment(ctx, path, out)
		if err != nil {
			if !os.IsNotExist(err) {
				return false, err
			}
			n = 0
		}
		if n > 0 {
			continue
		}

		// Current segment is exhausted. A successor segment means the
		// writer rotated and this one is final.
		next := filepath.Join(c.dir, layout.SegmentFile(c.sessionID, c.rotation+1))
		if _, statErr := os.Stat(next); statErr == nil {
			c.rotation++
			c.offset = 0
			continue
		}

		summary := filepath.Join(c.dir, layout.SummaryFile(c.sessionID))
		if _, statErr := os.Stat(summary); statErr == nil {
			return true, nil
		}
		return false, nil
	}
}

// emitSegment reads complete lines from the segment starting at the cursor
// offset, emitting each parsed record. Returns the number of records emitted.
func (c *followCursor) emitSegment(ctx context.Context, path string, out chan<- *record.Record) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(c.offset, 0); err != nil {
		return 0, fmt.Errorf("seek %s: %w", filepath.Base(path), err)
	}

	data, err := readAvailable(f)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	emitted := 0
	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			// Torn or in-flight tail; retry from the same offset later.
			break
		}
		line := data[:nl]
		data = data[nl+1:]
		c.offset += int64(nl + 1)

		var r record.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return emitted, &CorruptError{SessionID: c.sessionID, Segment: filepath.Base(path), Err: err}
		}

		select {
		case out <- &r:
			emitted++
		case <-ctx.Done():
			return emitted, ctx.Err()
		}
	}
	return emitted, nil
}

func readAvailable(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
