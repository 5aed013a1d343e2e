// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/util"
)

const sessionTimeLayout = "20060102-150405"

// =============================================================================
// COST STORAGE
// =============================================================================

// CostStorage persists sessions as one JSON file each.
type CostStorage struct {
	dir string
}

// NewCostStorage creates dir if needed.
func NewCostStorage(dir string) (*CostStorage, error) {
	if dir == "" {
		return nil, errors.New("cost storage directory is required")
	}
	if err := os.MkdirAll(dir, util.DirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cost directory: %w", err)
	}
	return &CostStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (cs *CostStorage) Dir() string {
	return cs.dir
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save writes a session to disk.
func (cs *CostStorage) Save(session *SessionCost) error {
	if session == nil {
		return nil
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(cs.path(session.ID), data, 0o600)
}

// Load reads one session.
func (cs *CostStorage) Load(sessionID string) (*SessionCost, error) {
	data, err := os.ReadFile(cs.path(sessionID))
	if err != nil {
		return nil, err
	}
	var session SessionCost
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse cost session %s: %w", sessionID, err)
	}
	return &session, nil
}

// List returns the ids of sessions started within [from, to], oldest first.
func (cs *CostStorage) List(from, to time.Time) ([]string, error) {
	var ids []string
	err := cs.each(func(id string, started time.Time) {
		if started.Before(from) || started.After(to) {
			return
		}
		ids = append(ids, id)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes one session.
func (cs *CostStorage) Delete(sessionID string) error {
	return os.Remove(cs.path(sessionID))
}

// DeleteBefore removes sessions started before the given time and returns
// how many were removed.
func (cs *CostStorage) DeleteBefore(before time.Time) (int, error) {
	removed := 0
	err := cs.each(func(id string, started time.Time) {
		if started.Before(before) && os.Remove(cs.path(id)) == nil {
			removed++
		}
	})
	return removed, err
}

// Size returns the total size of stored sessions in bytes.
func (cs *CostStorage) Size() (int64, error) {
	entries, err := os.ReadDir(cs.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total, nil
}

// Count returns the number of stored sessions.
func (cs *CostStorage) Count() (int, error) {
	n := 0
	err := cs.each(func(string, time.Time) { n++ })
	return n, err
}

// =============================================================================
// HELPERS
// =============================================================================

func (cs *CostStorage) path(sessionID string) string {
	return filepath.Join(cs.dir, sessionID+".json")
}

// each calls fn for every session file whose name parses as a session id.
// Session times are local wall clock, matching generateSessionID.
func (cs *CostStorage) each(fn func(id string, started time.Time)) error {
	entries, err := os.ReadDir(cs.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		started, ok := parseSessionTime(id)
		if !ok {
			continue
		}
		fn(id, started)
	}
	return nil
}

func parseSessionTime(id string) (time.Time, bool) {
	stamp := id
	if parts := strings.Split(id, "-"); len(parts) >= 3 {
		stamp = parts[0] + "-" + parts[1]
	}
	t, err := time.ParseInLocation(sessionTimeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
