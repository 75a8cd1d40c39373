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
	"os"
	"sort"
	"time"

	"github.com/flightrec/flightrec/internal/layout"
	"github.com/flightrec/flightrec/internal/record"
)

// SessionInfo is one listed session. Open sessions (still being written)
// have no final status or end time yet.
type SessionInfo struct {
	SessionID   string             `json:"session_id"`
	StartedAt   time.Time          `json:"started_at,omitzero"`
	EndedAt     time.Time          `json:"ended_at,omitzero"`
	DurationMS  float64            `json:"duration_ms"`
	TotalAgents int                `json:"total_agents"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	FinalStatus record.FinalStatus `json:"final_status,omitempty"`
	Bytes       int64              `json:"bytes"`
	Open        bool               `json:"open,omitempty"`
}

// ListSessions enumerates sessions on disk, newest first with open sessions
// leading. The catalog accelerates metadata lookup when configured, but the
// filesystem decides which sessions exist: a stale catalog row for purged
// data is skipped, and an unindexed session falls back to its summary file.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	ids, err := layout.SessionIDs(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	indexed := make(map[string]SessionInfo)
	if s.catalog != nil {
		entries, err := s.catalog.ListSessions(ctx)
		if err != nil {
			s.logger.Warn("catalog unavailable, listing from filesystem", "error", err)
		}
		for _, e := range entries {
			indexed[e.SessionID] = SessionInfo{
				SessionID:   e.SessionID,
				StartedAt:   e.StartedAt,
				EndedAt:     e.EndedAt,
				DurationMS:  e.DurationMS,
				TotalAgents: e.TotalAgents,
				Succeeded:   e.Succeeded,
				Failed:      e.Failed,
				FinalStatus: e.FinalStatus,
				Bytes:       e.Bytes,
			}
		}
	}

	var infos []SessionInfo
	for _, id := range ids {
		if info, ok := indexed[id]; ok {
			infos = append(infos, info)
			continue
		}
		infos = append(infos, s.describeSession(id))
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Open != infos[j].Open {
			return infos[i].Open
		}
		return infos[i].EndedAt.After(infos[j].EndedAt)
	})
	return infos, nil
}

// describeSession builds listing metadata straight from session files.
func (s *Store) describeSession(id string) SessionInfo {
	info := SessionInfo{SessionID: id, Bytes: s.sessionBytes(id)}

	summary, err := s.LoadSummary(id)
	if err != nil {
		// No summary means the writer has not closed the session.
		info.Open = true
		return info
	}

	info.StartedAt = summary.StartTime
	info.EndedAt = summary.EndTime
	info.DurationMS = summary.TotalDurationMS
	info.TotalAgents = summary.TotalAgents
	info.Succeeded = summary.Succeeded
	info.Failed = summary.Failed
	info.FinalStatus = summary.FinalStatus
	return info
}

func (s *Store) sessionBytes(id string) int64 {
	files, err := layout.SessionFiles(s.dir, id)
	if err != nil {
		return 0
	}
	var total int64
	for _, path := range files {
		if fi, err := os.Stat(path); err == nil {
			total += fi.Size()
		}
	}
	return total
}
