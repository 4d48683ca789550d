// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package catalog

import (
	"database/sql"
	"fmt"
	"time"
)

// RecordCommit appends a new history entry, or, if commitID already has
// one (a run that ended at the same commit it started from), refreshes
// its timestamp instead of inserting a duplicate row. commit_id is
// unique, and the Reconciler calls this at the end of every run
// regardless of whether the index actually advanced.
func (s *Store) RecordCommit(commitID string, timestamp time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO update_history (commit_id, timestamp) VALUES (?, ?)
		 ON CONFLICT(commit_id) DO UPDATE SET timestamp = excluded.timestamp`,
		commitID, timestamp,
	)
	if err != nil {
		return fmt.Errorf("record commit %s: %w", commitID, err)
	}
	return nil
}

// LastCommit returns the most recently recorded history entry, or
// ok=false if no run has ever completed successfully.
func (s *Store) LastCommit() (entry HistoryEntry, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT commit_id, timestamp FROM update_history ORDER BY timestamp DESC LIMIT 1`,
	)
	err = row.Scan(&entry.CommitID, &entry.Timestamp)
	if err == sql.ErrNoRows {
		return HistoryEntry{}, false, nil
	}
	if err != nil {
		return HistoryEntry{}, false, fmt.Errorf("query last commit: %w", err)
	}
	return entry, true, nil
}
