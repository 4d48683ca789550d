// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package index

import (
	"context"
	"fmt"
	"strings"
)

// ChangeType classifies a single file between two commits.
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Deleted  ChangeType = "deleted"
	Renamed  ChangeType = "renamed"
)

// Change is one file-level entry in a Diff result. OldPath is only set
// for Renamed entries.
type Change struct {
	Type    ChangeType
	Path    string
	OldPath string
}

// Diff returns the file-level changes between two commits, ordered as
// git reports them. Renames are detected so callers can treat
// renamed(a -> b) as deleted(a) + added(b) per the reconciler's rules.
func (m *Mirror) Diff(ctx context.Context, old, new string) ([]Change, error) {
	lines, err := m.exec.RunLines(ctx, m.path, "diff", "--name-status", "--find-renames", old, new)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", old, new, err)
	}

	changes := make([]Change, 0, len(lines))
	for _, line := range lines {
		change, err := parseStatusLine(line)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func parseStatusLine(line string) (Change, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return Change{}, fmt.Errorf("malformed diff status line: %q", line)
	}

	status := fields[0]
	switch status[0] {
	case 'A':
		return Change{Type: Added, Path: fields[1]}, nil
	case 'M':
		return Change{Type: Modified, Path: fields[1]}, nil
	case 'D':
		return Change{Type: Deleted, Path: fields[1]}, nil
	case 'R':
		if len(fields) < 3 {
			return Change{}, fmt.Errorf("malformed rename status line: %q", line)
		}
		return Change{Type: Renamed, OldPath: fields[1], Path: fields[2]}, nil
	default:
		return Change{}, fmt.Errorf("unrecognized diff status %q in line: %q", status, line)
	}
}
