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

// Package layout defines the on-disk naming scheme shared by the writer,
// the query engine, and the retention manager.
//
// One directory per deployment. Each session owns a series of rotation
// segments plus one summary file:
//
//	<dir>/<session>-0000.ndjson
//	<dir>/<session>-0001.ndjson
//	<dir>/<session>_summary.json
//
// Segments hold newline-delimited JSON records; the rotation index embedded
// in the name preserves append order across segments.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	segmentExt    = ".ndjson"
	summarySuffix = "_summary.json"
)

// SafeID maps an opaque session id to a filesystem-safe form. Both the write
// and read paths must apply the same mapping.
func SafeID(sessionID string) string {
	var b strings.Builder
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SegmentFile returns the file name for a session's rotation segment.
func SegmentFile(sessionID string, rotation int) string {
	return fmt.Sprintf("%s-%04d%s", SafeID(sessionID), rotation, segmentExt)
}

// SummaryFile returns the file name for a session's summary.
func SummaryFile(sessionID string) string {
	return SafeID(sessionID) + summarySuffix
}

// Segment describes one discovered rotation segment.
type Segment struct {
	Path     string
	Rotation int
}

// Segments lists a session's segment files in rotation order.
func Segments(dir, sessionID string) ([]Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	prefix := SafeID(sessionID) + "-"
	var segments []Segment
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		idx, ok := rotationIndex(name)
		if !ok {
			continue
		}
		segments = append(segments, Segment{Path: filepath.Join(dir, name), Rotation: idx})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Rotation < segments[j].Rotation
	})
	return segments, nil
}

// SessionIDs enumerates the (filesystem-safe) session ids present in dir,
// sorted. A session is present when it has at least one segment or a summary.
func SessionIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, summarySuffix):
			seen[strings.TrimSuffix(name, summarySuffix)] = struct{}{}
		case strings.HasSuffix(name, segmentExt):
			if id, ok := sessionOfSegment(name); ok {
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SessionFiles lists every file belonging to a session (segments + summary).
func SessionFiles(dir, sessionID string) ([]string, error) {
	segments, err := Segments(dir, sessionID)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(segments)+1)
	for _, s := range segments {
		files = append(files, s.Path)
	}
	summary := filepath.Join(dir, SummaryFile(sessionID))
	if _, err := os.Stat(summary); err == nil {
		files = append(files, summary)
	}
	return files, nil
}

// rotationIndex extracts the rotation index from a segment file name.
func rotationIndex(name string) (int, bool) {
	base := strings.TrimSuffix(name, segmentExt)
	cut := strings.LastIndexByte(base, '-')
	if cut < 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(base[cut+1:])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// sessionOfSegment extracts the session id from a segment file name.
func sessionOfSegment(name string) (string, bool) {
	base := strings.TrimSuffix(name, segmentExt)
	cut := strings.LastIndexByte(base, '-')
	if cut < 0 {
		return "", false
	}
	if _, err := strconv.Atoi(base[cut+1:]); err != nil {
		return "", false
	}
	return base[:cut], true
}
