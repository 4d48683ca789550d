// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package reconcile is the mirror's top-level orchestrator. It wires
// the Index Mirror, Metadata Loader, Catalog Store, and Artifact
// Fetcher into a single Run, the same way the teacher's
// reposync.Orchestrator wires a Planner, Executor, and StateStore into
// a single Run.
package reconcile
