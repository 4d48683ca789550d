// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/archmagece/crates-mirror/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS crate (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	checksum TEXT NOT NULL,
	yanked INTEGER NOT NULL DEFAULT 0,
	downloaded INTEGER NOT NULL DEFAULT 0,
	forbidden INTEGER NOT NULL DEFAULT 0,
	last_update DATETIME,
	UNIQUE(name, version)
);

CREATE TABLE IF NOT EXISTS update_history (
	commit_id TEXT NOT NULL UNIQUE,
	timestamp DATETIME NOT NULL
);
`

// Store is the catalog's single owner of the SQLite connection.
// Methods are safe to call concurrently: SQLite serializes writers
// internally, and the artifact fetcher additionally routes every write
// through one goroutine (see pkg/fetch) so that no two workers contend
// for the connection directly.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the catalog file at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("open catalog %s: %w", path, err), apperrors.ErrCatalogUnavailable)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(fmt.Errorf("init schema: %w", err), apperrors.ErrCatalogUnavailable)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
