// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package applog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToStderr(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if logger.Out != os.Stderr {
		t.Error("expected default output to be stderr")
	}
	if logger.Level != logrus.InfoLevel {
		t.Errorf("level = %v, want Info", logger.Level)
	}
}

func TestNewVerboseSetsDebugLevel(t *testing.T) {
	logger, err := New(Options{Verbose: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if logger.Level != logrus.DebugLevel {
		t.Errorf("level = %v, want Debug", logger.Level)
	}
}

func TestNewLogFileRedirectsOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirror.log")

	logger, err := New(Options{LogFile: path})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain output")
	}
}
