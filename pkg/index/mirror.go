// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package index manages the local git working copy of the upstream
// metadata index: cloning, fast-forwarding, diffing two commits, and
// amending the mirrored config.json. It shells out to the git binary
// through internal/gitcmd rather than a Go git implementation, the same
// way the teacher's own executor does, because the fast-forward,
// reset, and rename-detecting diff semantics this component depends on
// are exactly git's own.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/archmagece/crates-mirror/internal/errors"
	"github.com/archmagece/crates-mirror/internal/gitcmd"
)

// UpstreamURL is the canonical crates.io index repository this mirror
// clones from.
const UpstreamURL = "https://github.com/rust-lang/crates.io-index"

// defaultBranch is the branch this mirror tracks. Upstream crates.io
// index conventions use "master".
const defaultBranch = "master"

const upstreamRemote = "origin/" + defaultBranch

// amendMessage is the fixed commit message for the config.json amend.
const amendMessage = "point to local server"

// Mirror is a local working copy of the upstream index repository.
type Mirror struct {
	exec *gitcmd.Executor
	path string
}

// New creates a Mirror rooted at path. It does not touch the
// filesystem; call EnsureCloned before any other method.
func New(path string, exec *gitcmd.Executor) *Mirror {
	if exec == nil {
		exec = gitcmd.NewExecutor()
	}
	return &Mirror{exec: exec, path: path}
}

// Path returns the mirror's working tree root.
func (m *Mirror) Path() string {
	return m.path
}

// EnsureCloned clones url into the mirror's path if the path is
// missing or empty; otherwise it verifies the existing directory is
// already a git repository and leaves it untouched. Idempotent.
func (m *Mirror) EnsureCloned(ctx context.Context, url string) error {
	empty, err := dirEmpty(m.path)
	if err != nil {
		return fmt.Errorf("inspect index path %s: %w", m.path, err)
	}

	if !empty {
		if !m.exec.IsGitRepository(ctx, m.path) {
			return apperrors.ErrNotGitRepository
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create index parent dir: %w", err)
	}

	if _, err := m.exec.RunOutput(ctx, "", "clone", "--branch", defaultBranch, url, m.path); err != nil {
		return apperrors.Wrap(fmt.Errorf("clone %s: %w", url, err), apperrors.ErrCloneFailed)
	}
	return nil
}

// CurrentCommit returns the object id of HEAD.
func (m *Mirror) CurrentCommit(ctx context.Context) (string, error) {
	return m.exec.RunOutput(ctx, m.path, "rev-parse", "HEAD")
}

// ResetHeadToUpstream hard-resets master to origin/master, but only
// when master is strictly ahead of origin/master. This discards a
// prior config-amend commit without disturbing a master that has not
// diverged (the direction matters: reversing it would reset on every
// run even when there is nothing local to discard).
func (m *Mirror) ResetHeadToUpstream(ctx context.Context) error {
	out, err := m.exec.RunOutput(ctx, m.path, "rev-list", "--count", upstreamRemote+".."+defaultBranch)
	if err != nil {
		return fmt.Errorf("check ahead-count: %w", err)
	}

	ahead, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return fmt.Errorf("parse ahead-count %q: %w", out, err)
	}
	if ahead == 0 {
		return nil
	}

	if _, err := m.exec.RunOutput(ctx, m.path, "reset", "--hard", upstreamRemote); err != nil {
		return fmt.Errorf("reset to %s: %w", upstreamRemote, err)
	}
	return nil
}

// Pull fetches origin and fast-forwards master. A non-fast-forward
// situation (diverged history) surfaces as ErrMergeConflict; any other
// network or transport failure is fatal for the current run.
func (m *Mirror) Pull(ctx context.Context) error {
	if _, err := m.exec.RunOutput(ctx, m.path, "fetch", "origin"); err != nil {
		return apperrors.Wrap(fmt.Errorf("fetch origin: %w", err), apperrors.ErrPullFailed)
	}

	if _, err := m.exec.RunOutput(ctx, m.path, "merge", "--ff-only", upstreamRemote); err != nil {
		return apperrors.Wrap(fmt.Errorf("fast-forward to %s: %w", upstreamRemote, err), apperrors.ErrMergeConflict)
	}
	return nil
}

// AmendConfig writes bytes to pathInsideRepo, stages it, and commits it
// with the fixed amend message. A no-op if the content already matches
// what is staged (nothing to commit).
func (m *Mirror) AmendConfig(ctx context.Context, pathInsideRepo string, data []byte) error {
	full := filepath.Join(m.path, pathInsideRepo)

	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", pathInsideRepo, err)
	}

	if _, err := m.exec.RunOutput(ctx, m.path, "add", pathInsideRepo); err != nil {
		return fmt.Errorf("stage %s: %w", pathInsideRepo, err)
	}

	clean, err := m.exec.RunQuiet(ctx, m.path, "diff", "--cached", "--quiet")
	if err != nil {
		return fmt.Errorf("check staged diff: %w", err)
	}
	if clean {
		return nil
	}

	if _, err := m.exec.RunOutput(ctx, m.path, "commit", "-m", amendMessage); err != nil {
		return fmt.Errorf("commit config amend: %w", err)
	}
	return nil
}

func dirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
