// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package sweep

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"

	"github.com/archmagece/crates-mirror/internal/applog"
	"github.com/archmagece/crates-mirror/pkg/catalog"
	"github.com/archmagece/crates-mirror/pkg/metadata"
)

// artifactName matches "<name>-<version>.crate" as written by the
// fetcher (pkg/fetch builds that file name with fmt.Sprintf; the name
// is split at the last "-" that is followed by "<digits>.").
var artifactName = regexp.MustCompile(`^(.+)-(\d+\..+)\.crate$`)

// Sweep walks cratesPath and, for every file matching artifactName,
// marks the corresponding catalog row downloaded. Files that don't
// match are logged and skipped. Used after a bare-mode fetch run,
// where the catalog was populated before any download began.
func Sweep(cratesPath string, store *catalog.Store, log applog.Logger) error {
	stamped := 0
	err := filepath.WalkDir(cratesPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name, version, ok := parseArtifactName(d.Name())
		if !ok {
			log.Warnf("sweep: ignoring file with unrecognized name %s", path)
			return nil
		}

		if err := store.MarkDownloaded(name, version, true); err != nil {
			return fmt.Errorf("stamp %s-%s downloaded: %w", name, version, err)
		}
		stamped++
		return nil
	})
	if err != nil {
		return fmt.Errorf("sweep %s: %w", cratesPath, err)
	}

	log.Infof("sweep: stamped %d artifact(s) downloaded", stamped)
	return nil
}

func parseArtifactName(base string) (name, version string, ok bool) {
	m := artifactName.FindStringSubmatch(base)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FindMissing streams every metadata record under indexRoot and
// re-inserts any (name, version) the catalog is missing, with
// downloaded=0 and forbidden=0. Repairs a catalog damaged by an
// interrupted load.
func FindMissing(indexRoot string, store *catalog.Store, loader *metadata.Loader, log applog.Logger) error {
	paths, err := metadata.WalkIndex(indexRoot)
	if err != nil {
		return fmt.Errorf("find missing: %w", err)
	}

	repaired := 0
	for _, path := range paths {
		records, err := loader.Load(path, metadata.Full)
		if err != nil {
			return fmt.Errorf("find missing: %w", err)
		}

		for _, rec := range records {
			exists, err := store.Exists(rec.Name, rec.Vers)
			if err != nil {
				return fmt.Errorf("find missing: check %s-%s: %w", rec.Name, rec.Vers, err)
			}
			if exists {
				continue
			}

			if err := store.UpsertPackages([]catalog.PackageRow{{
				Name:     rec.Name,
				Version:  rec.Vers,
				Checksum: rec.Cksum,
				Yanked:   rec.Yanked,
			}}); err != nil {
				return fmt.Errorf("find missing: reinsert %s-%s: %w", rec.Name, rec.Vers, err)
			}
			repaired++
		}
	}

	log.Infof("find-missing: repaired %d catalog row(s)", repaired)
	return nil
}
