// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/archmagece/crates-mirror/internal/gitcmd"
	"github.com/archmagece/crates-mirror/pkg/catalog"
	"github.com/archmagece/crates-mirror/pkg/fetch"
	"github.com/archmagece/crates-mirror/pkg/index"
	"github.com/archmagece/crates-mirror/pkg/metadata"
)

func newTestLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func newUpstream(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "master")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")
	return dir
}

func writeAndCommit(t *testing.T, dir, rel, content, message string) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-m", message)
	return runGit(t, dir, "rev-parse", "HEAD")
}

func checksumOf(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

type rewriteTransport struct{ base *url.URL }

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	redirected := *req.URL
	redirected.Scheme = t.base.Scheme
	redirected.Host = t.base.Host

	out := req.Clone(req.Context())
	out.URL = &redirected
	out.Host = ""
	return http.DefaultTransport.RoundTrip(out)
}

func testClient(t *testing.T, ts *httptest.Server) *http.Client {
	t.Helper()
	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return &http.Client{Transport: &rewriteTransport{base: base}}
}

// fixture bundles the reconciler with the upstream repo and artifact
// server it was wired against, for incremental-run tests to reuse.
type fixture struct {
	upstream   string
	cratesDir  string
	store      *catalog.Store
	mirror     *index.Mirror
	reconciler *Reconciler
	bodies     map[string]string // name-version -> artifact body served
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	upstream := newUpstream(t)
	cratesDir := t.TempDir()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "crates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mirror := index.New(filepath.Join(t.TempDir(), "index"), gitcmd.NewExecutor())

	fx := &fixture{upstream: upstream, cratesDir: cratesDir, store: store, mirror: mirror, bodies: map[string]string{}}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/api/v1/crates/")
		key = strings.TrimSuffix(key, "/download")
		key = strings.Replace(key, "/", "-", 1)
		body, ok := fx.bodies[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	loader := metadata.NewLoader(newTestLogger())
	fetcher := fetch.New(store, newTestLogger(), fetch.Options{
		Client:     testClient(t, ts),
		CratesPath: cratesDir,
	})

	fx.reconciler = New(mirror, store, loader, fetcher, newTestLogger(), cratesDir, ConfigOverride{})
	return fx
}

func (fx *fixture) serve(name, version, body string) {
	fx.bodies[name+"-"+version] = body
}

func metadataLine(name, version, cksum string, yanked bool) string {
	return `{"name":"` + name + `","vers":"` + version + `","cksum":"` + cksum + `","yanked":` + boolStr(yanked) + `}` + "\n"
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestRunFirstColdStartFetchesAndRecordsHistory(t *testing.T) {
	fx := newFixture(t)

	body := "aho body"
	cksum := checksumOf(body)
	head := writeAndCommit(t, fx.upstream, "aa/aa/aho", metadataLine("aho", "0.1.0", cksum, false), "init")
	fx.serve("aho", "0.1.0", body)

	require.NoError(t, fx.mirror.EnsureCloned(context.Background(), fx.upstream))
	require.NoError(t, fx.reconciler.Run(context.Background()))

	ok, err := fx.store.Exists("aho", "0.1.0")
	require.NoError(t, err)
	require.True(t, ok)

	pending, err := fx.store.PendingDownloads()
	require.NoError(t, err)
	require.Empty(t, pending)

	data, err := os.ReadFile(filepath.Join(fx.cratesDir, "aho", "aho-0.1.0.crate"))
	require.NoError(t, err)
	require.Equal(t, body, string(data))

	entry, ok, err := fx.store.LastCommit()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, head, entry.CommitID)
}

func TestRunIncrementalClassifiesAddedModifiedDeletedRenamed(t *testing.T) {
	fx := newFixture(t)

	ahoBody := "aho body"
	ahoCksum := checksumOf(ahoBody)
	betaBody := "beta body"
	betaCksum := checksumOf(betaBody)
	fx.serve("aho", "0.1.0", ahoBody)
	fx.serve("beta", "0.1.0", betaBody)

	writeAndCommit(t, fx.upstream, "aa/aa/aho", metadataLine("aho", "0.1.0", ahoCksum, false), "init aho")
	writeAndCommit(t, fx.upstream, "bb/bb/beta", metadataLine("beta", "0.1.0", betaCksum, false), "init beta")

	require.NoError(t, fx.mirror.EnsureCloned(context.Background(), fx.upstream))
	require.NoError(t, fx.reconciler.Run(context.Background()))

	// Advance upstream: modify aho (new version), delete nothing yet,
	// rename beta -> gamma, add delta.
	ahoV2Body := "aho v2 body"
	ahoV2Cksum := checksumOf(ahoV2Body)
	fx.serve("aho", "0.2.0", ahoV2Body)

	deltaBody := "delta body"
	deltaCksum := checksumOf(deltaBody)
	fx.serve("delta", "0.1.0", deltaBody)

	gammaBody := "gamma body"
	gammaCksum := checksumOf(gammaBody)
	fx.serve("gamma", "0.1.0", gammaBody)

	runGit(t, fx.upstream, "mv", "bb/bb/beta", "cc/cc/gamma")
	require.NoError(t, os.WriteFile(
		filepath.Join(fx.upstream, "cc/cc/gamma"),
		[]byte(metadataLine("gamma", "0.1.0", gammaCksum, false)),
		0o644,
	))
	appendLine(t, fx.upstream, "aa/aa/aho", metadataLine("aho", "0.2.0", ahoV2Cksum, false))
	writeAndCommit(t, fx.upstream, "dd/dd/delta", metadataLine("delta", "0.1.0", deltaCksum, false), "modify+rename+add")

	require.NoError(t, fx.reconciler.Run(context.Background()))

	// aho: both versions present (modified -> latest-only load kept old row).
	ok, err := fx.store.Exists("aho", "0.1.0")
	require.NoError(t, err)
	require.True(t, ok, "pre-existing aho version must survive a latest-only load")
	ok, err = fx.store.Exists("aho", "0.2.0")
	require.NoError(t, err)
	require.True(t, ok)

	// beta: removed as part of the rename; gamma: loaded fresh.
	ok, err = fx.store.Exists("beta", "0.1.0")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = fx.store.Exists("gamma", "0.1.0")
	require.NoError(t, err)
	require.True(t, ok)

	// delta: added fresh.
	ok, err = fx.store.Exists("delta", "0.1.0")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = os.Stat(filepath.Join(fx.cratesDir, "beta"))
	require.True(t, os.IsNotExist(err), "beta's artifact dir must be removed after the rename")
}

func TestRunTwiceWithNoUpstreamChangeIsIdempotent(t *testing.T) {
	fx := newFixture(t)

	body := "aho body"
	cksum := checksumOf(body)
	head := writeAndCommit(t, fx.upstream, "aa/aa/aho", metadataLine("aho", "0.1.0", cksum, false), "init")
	fx.serve("aho", "0.1.0", body)

	require.NoError(t, fx.mirror.EnsureCloned(context.Background(), fx.upstream))
	require.NoError(t, fx.reconciler.Run(context.Background()))
	require.NoError(t, fx.reconciler.Run(context.Background()))

	ok, err := fx.store.Exists("aho", "0.1.0")
	require.NoError(t, err)
	require.True(t, ok)

	entry, ok, err := fx.store.LastCommit()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, head, entry.CommitID)
}

func appendLine(t *testing.T, dir, rel, line string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	f, err := os.OpenFile(full, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line)
	require.NoError(t, err)
}
