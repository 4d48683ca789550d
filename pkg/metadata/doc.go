// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package metadata interprets the upstream index's per-package files:
// newline-delimited JSON records describing published crate versions.
// It is the only package permitted to know the index's file format.
package metadata
