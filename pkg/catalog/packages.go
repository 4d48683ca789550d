// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package catalog

import (
	"database/sql"
	"fmt"
)

// UpsertPackages replaces rows by (name, version). A row's downloaded
// and forbidden flags are reset to false when it is new or its
// checksum differs from the stored value; they are preserved when the
// only change is to yanked. This pins the Open Question in spec.md §9:
// "reset on checksum change, preserve on yanked-only change".
func (s *Store) UpsertPackages(rows []PackageRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, row := range rows {
		if err := upsertOne(tx, row); err != nil {
			return fmt.Errorf("upsert %s-%s: %w", row.Name, row.Version, err)
		}
	}

	return tx.Commit()
}

func upsertOne(tx *sql.Tx, row PackageRow) error {
	var existingChecksum string
	err := tx.QueryRow(
		`SELECT checksum FROM crate WHERE name = ? AND version = ?`,
		row.Name, row.Version,
	).Scan(&existingChecksum)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(
			`INSERT INTO crate (name, version, checksum, yanked, downloaded, forbidden)
			 VALUES (?, ?, ?, ?, 0, 0)`,
			row.Name, row.Version, row.Checksum, boolToInt(row.Yanked),
		)
		return err

	case err != nil:
		return err

	case existingChecksum != row.Checksum:
		_, err = tx.Exec(
			`UPDATE crate SET checksum = ?, yanked = ?, downloaded = 0, forbidden = 0
			 WHERE name = ? AND version = ?`,
			row.Checksum, boolToInt(row.Yanked), row.Name, row.Version,
		)
		return err

	default:
		_, err = tx.Exec(
			`UPDATE crate SET yanked = ? WHERE name = ? AND version = ?`,
			boolToInt(row.Yanked), row.Name, row.Version,
		)
		return err
	}
}

// DeletePackage removes every version of name from the catalog.
func (s *Store) DeletePackage(name string) error {
	_, err := s.db.Exec(`DELETE FROM crate WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete package %s: %w", name, err)
	}
	return nil
}

// PendingDownloads returns every (name, version, checksum) whose
// artifact has neither been downloaded nor forbidden.
func (s *Store) PendingDownloads() ([]PendingDownload, error) {
	rows, err := s.db.Query(
		`SELECT name, version, checksum FROM crate WHERE downloaded = 0 AND forbidden = 0`,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending downloads: %w", err)
	}
	defer rows.Close()

	var pending []PendingDownload
	for rows.Next() {
		var p PendingDownload
		if err := rows.Scan(&p.Name, &p.Version, &p.Checksum); err != nil {
			return nil, fmt.Errorf("scan pending download: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkDownloaded stamps the download outcome for (name, version) and
// updates last_update. ok=false leaves forbidden untouched (the item
// is retried on the next run).
func (s *Store) MarkDownloaded(name, version string, ok bool) error {
	_, err := s.db.Exec(
		`UPDATE crate SET downloaded = ?, last_update = CURRENT_TIMESTAMP
		 WHERE name = ? AND version = ?`,
		boolToInt(ok), name, version,
	)
	if err != nil {
		return fmt.Errorf("mark downloaded %s-%s: %w", name, version, err)
	}
	return nil
}

// MarkForbidden tombstones (name, version) after an HTTP 403 from the
// artifact CDN and updates last_update.
func (s *Store) MarkForbidden(name, version string) error {
	_, err := s.db.Exec(
		`UPDATE crate SET forbidden = 1, last_update = CURRENT_TIMESTAMP
		 WHERE name = ? AND version = ?`,
		name, version,
	)
	if err != nil {
		return fmt.Errorf("mark forbidden %s-%s: %w", name, version, err)
	}
	return nil
}

// Exists reports whether (name, version) has a catalog row.
func (s *Store) Exists(name, version string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM crate WHERE name = ? AND version = ?`,
		name, version,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check exists %s-%s: %w", name, version, err)
	}
	return count > 0, nil
}

// CountPackages returns the total number of catalog rows.
func (s *Store) CountPackages() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM crate`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count packages: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
