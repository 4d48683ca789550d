// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

// Package httpclient builds the *http.Client used by the artifact
// fetcher: a fixed per-request timeout and proxy settings forwarded
// from the operator's environment.
package httpclient

import (
	"net/http"
	"net/url"
	"time"
)

// Options configures New.
type Options struct {
	// Timeout bounds each request. Zero selects a 30 second default,
	// matching the fetcher's per-artifact GET deadline.
	Timeout time.Duration

	// HTTPProxy and HTTPSProxy override the corresponding environment
	// variables. When both are empty, http.ProxyFromEnvironment is used.
	// Otherwise the environment is not consulted: https requests use
	// HTTPSProxy if set, and every other request uses HTTPProxy (no proxy
	// when that is empty).
	HTTPProxy  string
	HTTPSProxy string
}

// New builds an *http.Client configured for artifact downloads. It is
// intended to be constructed once per run and shared by every
// downloader worker.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: proxyFunc(opts),
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func proxyFunc(opts Options) func(*http.Request) (*url.URL, error) {
	if opts.HTTPProxy == "" && opts.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		raw := opts.HTTPProxy
		if req.URL.Scheme == "https" && opts.HTTPSProxy != "" {
			raw = opts.HTTPSProxy
		}
		if raw == "" {
			return nil, nil
		}
		return url.Parse(raw)
	}
}
