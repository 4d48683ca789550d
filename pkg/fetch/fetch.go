// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/archmagece/crates-mirror/internal/applog"
	"github.com/archmagece/crates-mirror/pkg/catalog"
	"github.com/archmagece/crates-mirror/pkg/sweep"
)

// downloadURLFormat is the upstream artifact protocol endpoint.
const downloadURLFormat = "https://crates.io/api/v1/crates/%s/%s/download"

// result is what a worker publishes to the single writer.
type result struct {
	name, version string
	downloaded    bool
	forbidden     bool
	skip          bool
}

// Fetcher downloads pending artifacts and persists catalog updates.
// It owns no long-lived state beyond its configuration; Run is safe to
// call repeatedly across successive reconcile cycles.
type Fetcher struct {
	client     *http.Client
	store      *catalog.Store
	cratesPath string
	log        applog.Logger
	workers    int
}

// Options configures New.
type Options struct {
	Client     *http.Client
	CratesPath string
	// Workers overrides the pool size; 0 selects 3*NumCPU.
	Workers int
}

// New builds a Fetcher.
func New(store *catalog.Store, log applog.Logger, opts Options) *Fetcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = 3 * runtime.NumCPU()
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		client:     client,
		store:      store,
		cratesPath: opts.CratesPath,
		log:        log,
		workers:    workers,
	}
}

// IsBare reports whether cratesPath is missing or empty, selecting the
// Fetcher's cold-start fast path.
func IsBare(cratesPath string) (bool, error) {
	entries, err := os.ReadDir(cratesPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect crates path %s: %w", cratesPath, err)
	}
	return len(entries) == 0, nil
}

// Run drains every pending row through the worker pool and applies the
// results through a single serializing writer. When bare is true, the
// existing-file check is skipped (there are none on a cold start) and
// the Integrity Sweeper runs once the pool drains, stamping downloaded
// status for every artifact now on disk.
func (f *Fetcher) Run(ctx context.Context, bare bool) error {
	pending, err := f.store.PendingDownloads()
	if err != nil {
		return fmt.Errorf("fetch: list pending: %w", err)
	}
	if len(pending) == 0 {
		if bare {
			return sweep.Sweep(f.cratesPath, f.store, f.log)
		}
		return nil
	}

	jobs := make(chan catalog.PendingDownload)
	results := make(chan result)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < f.workers; i++ {
		g.Go(func() error {
			for job := range jobs {
				select {
				case results <- f.process(gctx, job, bare):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for _, p := range pending {
			select {
			case jobs <- p:
			case <-gctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = g.Wait()
		close(results)
	}()

	var firstWriteErr error
	for r := range results {
		if r.skip {
			continue
		}
		if err := f.apply(r); err != nil {
			f.log.Errorf("fetch: apply result for %s-%s: %v", r.name, r.version, err)
			if firstWriteErr == nil {
				firstWriteErr = err
			}
			continue
		}
		switch {
		case r.downloaded:
			f.log.Infof("fetch: %s-%s downloaded", r.name, r.version)
		case r.forbidden:
			f.log.Warnf("fetch: %s-%s forbidden", r.name, r.version)
		default:
			f.log.Warnf("fetch: %s-%s pending, will retry next run", r.name, r.version)
		}
	}
	if firstWriteErr != nil {
		return fmt.Errorf("fetch: catalog write failed: %w", firstWriteErr)
	}

	if bare {
		if err := sweep.Sweep(f.cratesPath, f.store, f.log); err != nil {
			return fmt.Errorf("fetch: post-bare sweep: %w", err)
		}
	}
	return nil
}

func (f *Fetcher) apply(r result) error {
	if r.forbidden {
		return f.store.MarkForbidden(r.name, r.version)
	}
	return f.store.MarkDownloaded(r.name, r.version, r.downloaded)
}

// process implements the per-item algorithm for one pending row. It
// never returns an error: every failure mode is a (downloaded,
// forbidden) classification reported through the results channel.
func (f *Fetcher) process(ctx context.Context, p catalog.PendingDownload, bare bool) result {
	res := result{name: p.Name, version: p.Version}

	if p.Checksum == "" {
		f.log.Warnf("fetch: %s-%s has no checksum, skipping", p.Name, p.Version)
		res.skip = true
		return res
	}

	dir := filepath.Join(f.cratesPath, p.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		f.log.Errorf("fetch: create %s: %v", dir, err)
		return res
	}
	target := filepath.Join(dir, fmt.Sprintf("%s-%s.crate", p.Name, p.Version))

	if !bare {
		if existing, ok := readExisting(target); ok {
			if sha256Hex(existing) == p.Checksum {
				res.downloaded = true
				return res
			}
			_ = os.Remove(target)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf(downloadURLFormat, p.Name, p.Version), nil)
	if err != nil {
		f.log.Errorf("fetch: build request for %s-%s: %v", p.Name, p.Version, err)
		return res
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warnf("fetch: %s-%s transport error: %v", p.Name, p.Version, err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		res.forbidden = true
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.log.Warnf("fetch: %s-%s unexpected status %d", p.Name, p.Version, resp.StatusCode)
		return res
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.log.Warnf("fetch: %s-%s read body: %v", p.Name, p.Version, err)
		return res
	}

	if sha256Hex(body) != p.Checksum {
		f.log.Warnf("fetch: %s-%s checksum mismatch", p.Name, p.Version)
		return res
	}

	if err := os.WriteFile(target, body, 0o644); err != nil {
		f.log.Errorf("fetch: write %s: %v", target, err)
		return res
	}

	res.downloaded = true
	return res
}

func readExisting(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
