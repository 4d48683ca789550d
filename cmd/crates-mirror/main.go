// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Command crates-mirror brings a local crates.io-shaped registry
// mirror up to date: it advances the index working tree, reconciles
// the catalog against what changed, and downloads pending artifacts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/archmagece/crates-mirror/internal/applog"
	"github.com/archmagece/crates-mirror/internal/config"
	"github.com/archmagece/crates-mirror/internal/gitcmd"
	"github.com/archmagece/crates-mirror/internal/httpclient"
	"github.com/archmagece/crates-mirror/pkg/catalog"
	"github.com/archmagece/crates-mirror/pkg/fetch"
	"github.com/archmagece/crates-mirror/pkg/index"
	"github.com/archmagece/crates-mirror/pkg/metadata"
	"github.com/archmagece/crates-mirror/pkg/reconcile"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log, err := applog.New(applog.Options{LogFile: cfg.LogFile, Verbose: cfg.Verbose})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log.Infof("crates-mirror %s starting", version)

	store, err := catalog.Open(cfg.DBPath)
	if err != nil {
		log.Errorf("open catalog: %v", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()

	mirror := index.New(cfg.IndexPath, gitcmd.NewExecutor())
	if err := mirror.EnsureCloned(ctx, index.UpstreamURL); err != nil {
		log.Errorf("ensure index cloned: %v", err)
		return 1
	}

	client := httpclient.New(httpclient.Options{
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
	})
	loader := metadata.NewLoader(log)
	fetcher := fetch.New(store, log, fetch.Options{Client: client, CratesPath: cfg.CratesPath})

	reconciler := reconcile.New(mirror, store, loader, fetcher, log, cfg.CratesPath, reconcile.ConfigOverride{
		DL:  cfg.CratesDL,
		API: cfg.CratesAPI,
	})

	if cfg.CheckDB {
		if err := reconciler.RepairMissing(); err != nil {
			log.Errorf("repair missing crates: %v", err)
			return 1
		}
	}

	if err := reconciler.Run(ctx); err != nil {
		log.Errorf("reconcile failed: %v", err)
		return 1
	}

	log.Infof("crates-mirror run complete")
	return 0
}
