// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package config parses the mirror's command-line flags and applies
// environment variable overrides on top of them.
package config

import (
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
)

// Config holds the fully resolved settings for a single mirror run.
type Config struct {
	// IndexPath is the local working tree of the upstream index.
	IndexPath string

	// CratesPath is the root of the downloaded artifact tree.
	CratesPath string

	// DBPath is the catalog file path. If it names a directory,
	// "crates.db" is appended during Parse.
	DBPath string

	// LogFile redirects logs to a file when non-empty; empty means stderr.
	LogFile string

	// CheckDB runs the missing-crates repair before syncing.
	CheckDB bool

	// Verbose enables debug-level logging.
	Verbose bool

	// HTTPProxy and HTTPSProxy are forwarded to the artifact HTTP client.
	HTTPProxy  string
	HTTPSProxy string

	// CratesDL overrides the "dl" field written into the mirrored config.json.
	CratesDL string

	// CratesAPI overrides the "api" field written into the mirrored config.json.
	CratesAPI string
}

const (
	defaultIndexPath  = "/srv/git/index"
	defaultCratesPath = "/srv/www/crates"
	defaultDBPath     = "./crates.db"
	defaultDBFile     = "crates.db"
)

// Parse builds a Config from the given CLI arguments (typically
// os.Args[1:]) and then applies environment variable overrides.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("crates-mirror", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVarP(&cfg.IndexPath, "index", "i", defaultIndexPath, "index working tree path")
	fs.StringVarP(&cfg.CratesPath, "crates", "w", defaultCratesPath, "artifact tree path")
	fs.StringVarP(&cfg.DBPath, "dbpath", "d", defaultDBPath, "catalog file path")
	fs.StringVarP(&cfg.LogFile, "logfile", "f", "", "redirect logs to a file (default: standard error)")
	fs.BoolVarP(&cfg.CheckDB, "checkdb", "c", false, "run the missing-crates repair before syncing")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug-level logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.resolveDBPath()
	cfg.applyEnvOverrides()

	return cfg, nil
}

// resolveDBPath appends the default catalog filename when DBPath names
// an existing directory.
func (c *Config) resolveDBPath() {
	info, err := os.Stat(c.DBPath)
	if err == nil && info.IsDir() {
		c.DBPath = filepath.Join(c.DBPath, defaultDBFile)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HTTP_PROXY"); v != "" {
		c.HTTPProxy = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.HTTPSProxy = v
	}
	if v := os.Getenv("CRATES_DL"); v != "" {
		c.CratesDL = v
	}
	if v := os.Getenv("CRATES_API"); v != "" {
		c.CratesAPI = v
	}
}
