// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package errors holds the sentinel errors shared across the mirror's
// packages and small helpers for attaching one of them to a lower-level
// cause without losing that cause's message.
package errors

import (
	"errors"
	"fmt"
)

// Is reports whether any error in err's chain matches target.
// Re-exported from the standard library so callers only need to import
// this package when working with the sentinels below.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Git-specific errors, returned by the index mirror's gitcmd-backed
// operations.
var (
	// ErrNotGitRepository indicates the path is not a Git repository.
	ErrNotGitRepository = errors.New("not a git repository")

	// ErrMergeConflict indicates a fast-forward pull could not be completed cleanly.
	ErrMergeConflict = errors.New("merge conflict")
)

// Fatal run errors. A Reconciler run aborts without recording a new
// history entry when one of these is in the error chain (see
// internal/errors.Wrap and cmd/crates-mirror's exit-code mapping).
var (
	// ErrFatal marks an error that must abort the current run and
	// preserve the last history entry.
	ErrFatal = errors.New("fatal")

	// ErrCloneFailed indicates the initial index clone could not complete.
	ErrCloneFailed = errors.New("index clone failed")

	// ErrPullFailed indicates the index fast-forward pull could not complete.
	ErrPullFailed = errors.New("index pull failed")

	// ErrCatalogUnavailable indicates the catalog store could not be opened.
	ErrCatalogUnavailable = errors.New("catalog store unavailable")
)

// Wrap attaches target to err's chain so that Is(result, target) holds,
// while keeping err's own message. If err is nil, target is returned
// unchanged. If target is nil, err is returned unchanged.
func Wrap(err, target error) error {
	if err == nil {
		return target
	}
	if target == nil {
		return err
	}
	return &wrapped{cause: err, target: target}
}

// WrapWithMessage annotates err with msg using standard error wrapping,
// preserving err in the chain (Is(result, err) holds). Returns nil if
// err is nil.
func WrapWithMessage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

type wrapped struct {
	cause  error
	target error
}

func (w *wrapped) Error() string {
	return fmt.Sprintf("%s: %s", w.cause.Error(), w.target.Error())
}

func (w *wrapped) Unwrap() error {
	return w.cause
}

func (w *wrapped) Is(target error) bool {
	return errors.Is(w.target, target)
}
