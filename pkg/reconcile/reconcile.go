// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/archmagece/crates-mirror/internal/applog"
	apperrors "github.com/archmagece/crates-mirror/internal/errors"
	"github.com/archmagece/crates-mirror/pkg/catalog"
	"github.com/archmagece/crates-mirror/pkg/fetch"
	"github.com/archmagece/crates-mirror/pkg/index"
	"github.com/archmagece/crates-mirror/pkg/metadata"
	"github.com/archmagece/crates-mirror/pkg/sweep"
)

const configFileName = "config.json"

// ConfigOverride carries the operator-supplied dl/api endpoint
// overrides for the mirrored config.json amend step. Either field may
// be empty, in which case that key is left untouched.
type ConfigOverride struct {
	DL  string
	API string
}

// Reconciler wires the Index Mirror, Metadata Loader, Catalog Store,
// and Artifact Fetcher into a single Run.
type Reconciler struct {
	mirror  *index.Mirror
	store   *catalog.Store
	loader  *metadata.Loader
	fetcher *fetch.Fetcher
	log     applog.Logger

	cratesPath string
	override   ConfigOverride
}

// New builds a Reconciler from its collaborators.
func New(
	mirror *index.Mirror,
	store *catalog.Store,
	loader *metadata.Loader,
	fetcher *fetch.Fetcher,
	log applog.Logger,
	cratesPath string,
	override ConfigOverride,
) *Reconciler {
	return &Reconciler{
		mirror:     mirror,
		store:      store,
		loader:     loader,
		fetcher:    fetcher,
		log:        log,
		cratesPath: cratesPath,
		override:   override,
	}
}

// RepairMissing runs the Integrity Sweeper's missing-crates repair.
// Callers invoke this before Run when the operator passes --checkdb.
func (r *Reconciler) RepairMissing() error {
	return sweep.FindMissing(r.mirror.Path(), r.store, r.loader, r.log)
}

// Run executes one full reconcile cycle: cold-start ingestion if the
// catalog is empty, then either the first-ever-run flow or the
// incremental pull-and-diff flow, depending on whether a history entry
// already exists. Only a successful transition into "synced" writes a
// history entry; an error from any step before that write leaves the
// last entry unchanged so the next run re-attempts the same delta. The
// config.json amend runs after the history write, so an amend error is
// returned with the new entry already recorded.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.coldStartIfEmpty(ctx); err != nil {
		return err
	}

	last, ok, err := r.store.LastCommit()
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: read last commit: %w", err), apperrors.ErrFatal)
	}

	if !ok {
		return r.runFirst(ctx)
	}
	return r.runIncremental(ctx, last.CommitID)
}

func (r *Reconciler) coldStartIfEmpty(ctx context.Context) error {
	count, err := r.store.CountPackages()
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: count packages: %w", err), apperrors.ErrFatal)
	}
	if count > 0 {
		return nil
	}

	paths, err := metadata.WalkIndex(r.mirror.Path())
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: walk index for cold start: %w", err), apperrors.ErrFatal)
	}

	for _, path := range paths {
		records, err := r.loader.Load(path, metadata.Full)
		if err != nil {
			return apperrors.Wrap(fmt.Errorf("reconcile: cold start load %s: %w", path, err), apperrors.ErrFatal)
		}
		if err := r.store.UpsertPackages(recordsToRows(records)); err != nil {
			return apperrors.Wrap(fmt.Errorf("reconcile: cold start upsert %s: %w", path, err), apperrors.ErrFatal)
		}
	}

	r.log.Infof("reconcile: cold start ingested %d metadata file(s)", len(paths))
	return nil
}

func (r *Reconciler) runFirst(ctx context.Context) error {
	if err := r.mirror.ResetHeadToUpstream(ctx); err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: reset head: %w", err), apperrors.ErrFatal)
	}

	bare, err := fetch.IsBare(r.cratesPath)
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: detect bare mode: %w", err), apperrors.ErrFatal)
	}
	if err := r.fetcher.Run(ctx, bare); err != nil {
		r.log.Errorf("reconcile: fetch run reported errors: %v", err)
	}

	commit, err := r.mirror.CurrentCommit(ctx)
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: read current commit: %w", err), apperrors.ErrFatal)
	}
	if err := r.store.RecordCommit(commit, time.Now().UTC()); err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: record commit: %w", err), apperrors.ErrFatal)
	}

	return r.amendConfigIfRequested(ctx)
}

func (r *Reconciler) runIncremental(ctx context.Context, last string) error {
	if err := r.mirror.ResetHeadToUpstream(ctx); err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: reset head: %w", err), apperrors.ErrFatal)
	}
	if err := r.mirror.Pull(ctx); err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: pull: %w", err), apperrors.ErrFatal)
	}

	newCommit, err := r.mirror.CurrentCommit(ctx)
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: read current commit: %w", err), apperrors.ErrFatal)
	}

	changes, err := r.mirror.Diff(ctx, last, newCommit)
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: diff %s..%s: %w", last, newCommit, err), apperrors.ErrFatal)
	}

	deletions, additions, err := r.classify(changes)
	if err != nil {
		return fmt.Errorf("reconcile: classify changes: %w", err)
	}

	// Deletions before additions before modifications: this is what
	// makes renamed(a -> b), modeled as deleted(a)+added(b), behave the
	// same as processing the two independently.
	for _, name := range deletions {
		if err := r.store.DeletePackage(name); err != nil {
			return fmt.Errorf("reconcile: delete package %s: %w", name, err)
		}
	}
	if len(additions) > 0 {
		if err := r.store.UpsertPackages(additions); err != nil {
			return fmt.Errorf("reconcile: upsert changed packages: %w", err)
		}
	}

	bare, err := fetch.IsBare(r.cratesPath)
	if err != nil {
		return fmt.Errorf("reconcile: detect bare mode: %w", err)
	}
	if err := r.fetcher.Run(ctx, bare); err != nil {
		r.log.Errorf("reconcile: fetch run reported errors: %v", err)
	}

	for _, name := range deletions {
		dir := filepath.Join(r.cratesPath, name)
		if err := os.RemoveAll(dir); err != nil {
			r.log.Errorf("reconcile: remove artifact dir %s: %v", dir, err)
		}
	}

	if err := r.store.RecordCommit(newCommit, time.Now().UTC()); err != nil {
		return apperrors.Wrap(fmt.Errorf("reconcile: record commit: %w", err), apperrors.ErrFatal)
	}

	return r.amendConfigIfRequested(ctx)
}

func (r *Reconciler) classify(changes []index.Change) (deletions []string, additions []catalog.PackageRow, err error) {
	var modifications []catalog.PackageRow
	for _, c := range changes {
		if c.Path == configFileName || c.OldPath == configFileName {
			continue
		}

		switch c.Type {
		case index.Added:
			rows, err := r.loadRows(c.Path, metadata.Full)
			if err != nil {
				return nil, nil, err
			}
			additions = append(additions, rows...)

		case index.Modified:
			rows, err := r.loadRows(c.Path, metadata.LatestOnly)
			if err != nil {
				return nil, nil, err
			}
			modifications = append(modifications, rows...)

		case index.Deleted:
			deletions = append(deletions, packageNameFromPath(c.Path))

		case index.Renamed:
			deletions = append(deletions, packageNameFromPath(c.OldPath))
			rows, err := r.loadRows(c.Path, metadata.Full)
			if err != nil {
				return nil, nil, err
			}
			additions = append(additions, rows...)
		}
	}
	// Modified files' rows follow every added file's rows, so the single
	// upsert applies additions before modifications.
	additions = append(additions, modifications...)
	return deletions, additions, nil
}

func (r *Reconciler) loadRows(relPath string, mode metadata.Mode) ([]catalog.PackageRow, error) {
	full := filepath.Join(r.mirror.Path(), relPath)
	records, err := r.loader.Load(full, mode)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", relPath, err)
	}
	return recordsToRows(records), nil
}

func (r *Reconciler) amendConfigIfRequested(ctx context.Context) error {
	if r.override.DL == "" && r.override.API == "" {
		return nil
	}

	full := filepath.Join(r.mirror.Path(), configFileName)
	doc := map[string]interface{}{}
	if data, err := os.ReadFile(full); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("reconcile: parse existing config.json: %w", err)
		}
	}

	if r.override.DL != "" {
		doc["dl"] = r.override.DL
	}
	if r.override.API != "" {
		doc["api"] = r.override.API
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("reconcile: marshal config.json: %w", err)
	}

	if err := r.mirror.AmendConfig(ctx, configFileName, payload); err != nil {
		return fmt.Errorf("reconcile: amend config: %w", err)
	}
	return nil
}

func recordsToRows(records []metadata.Record) []catalog.PackageRow {
	rows := make([]catalog.PackageRow, len(records))
	for i, rec := range records {
		rows[i] = catalog.PackageRow{
			Name:     rec.Name,
			Version:  rec.Vers,
			Checksum: rec.Cksum,
			Yanked:   rec.Yanked,
		}
	}
	return rows
}

func packageNameFromPath(path string) string {
	return filepath.Base(path)
}
