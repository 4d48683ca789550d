// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package sweep reconciles the on-disk artifact tree against the
// catalog: stamping rows for artifacts already present, and
// re-inserting rows the index advertises but the catalog is missing.
package sweep
