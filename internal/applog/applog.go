// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package applog constructs the logrus logger shared by every
// component, wiring the CLI's -f/--logfile and -v/--verbose flags into
// output destination and level.
package applog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls how New configures the logger.
type Options struct {
	// LogFile redirects output to a file when non-empty.
	LogFile string

	// Verbose enables debug-level logging.
	Verbose bool
}

// New builds a *logrus.Logger for the given options. Callers pass it
// down through the narrow Logger interface (see Logger below) so tests
// can substitute a recording implementation instead.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	out, err := output(opts.LogFile)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger, nil
}

func output(path string) (io.Writer, error) {
	if path == "" {
		return os.Stderr, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// Logger is the narrow logging interface consumed by the mirror's
// components. *logrus.Logger and *logrus.Entry both satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
