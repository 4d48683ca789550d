// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/archmagece/crates-mirror/internal/applog"
)

// Loader parses index metadata files into Records.
type Loader struct {
	log applog.Logger
}

// NewLoader builds a Loader that logs per-line parse failures to log.
func NewLoader(log applog.Logger) *Loader {
	return &Loader{log: log}
}

// Load reads path and returns the Records it names per mode. Blank
// lines are ignored. A line that fails to parse as JSON is logged and
// skipped; it never aborts the rest of the file.
func (l *Loader) Load(path string, mode Mode) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	lines, err := nonBlankLines(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if mode == LatestOnly {
		if len(lines) == 0 {
			return nil, nil
		}
		lines = lines[len(lines)-1:]
	}

	records := make([]Record, 0, len(lines))
	for i, line := range lines {
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			l.log.Warnf("metadata: skip unparseable line %d in %s: %v", i+1, path, err)
			continue
		}
		records = append(records, rec)
	}

	l.log.Debugf("metadata: loaded %d record(s) from %s (mode=%d)", len(records), path, mode)
	return records, nil
}

func nonBlankLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// WalkIndex returns every metadata file path under root, skipping the
// .git/ subtree and the repository-root config.json.
func WalkIndex(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == configFileName {
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk index %s: %w", root, err)
	}
	return paths, nil
}
