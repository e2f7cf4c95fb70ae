// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owmgraph/pkg/cache"
)

func nodeJSON(id, hostname, peer string, quality float64) string {
	mtime := time.Now().UTC().Add(-5 * time.Minute).Format("2006-01-02T15:04:05.000Z")
	return fmt.Sprintf(`{"_id":%q,"hostname":%q,"ctime":"2023-01-01T00:00:00.000Z","mtime":%q,
		"longitude":11.32,"latitude":50.98,"links":[{"id":%q,"quality":%v}]}`, id, hostname, mtime, peer, quality)
}

func newUpstream(t *testing.T, indexStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/view_nodes_spatial", func(w http.ResponseWriter, r *http.Request) {
		if indexStatus != http.StatusOK {
			w.WriteHeader(indexStatus)
			return
		}
		fmt.Fprint(w, `{"rows":[{"id":"a.olsr"},{"id":"b.olsr"}]}`)
	})
	mux.HandleFunc("/db/a.olsr", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, nodeJSON("a.olsr", "a", "b.olsr", 1))
	})
	mux.HandleFunc("/db/b.olsr", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, nodeJSON("b.olsr", "b", "a.olsr", 0.5))
	})
	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"result":[{"metric":{"hostname":"a"},"value":[0,"7"]}]}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("OWM_PROMETHEUS_URL", srv.URL+"/api/v1/query")
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type outputFile struct {
	Nodes []struct {
		HostID  string `json:"host_id"`
		Clients int    `json:"clients"`
	} `json:"nodes"`
	Links []struct {
		SourceTQ float64 `json:"source_tq"`
		TargetTQ float64 `json:"target_tq"`
	} `json:"links"`
}

func readOutput(t *testing.T, path string) outputFile {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out outputFile
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestBuildCommand(t *testing.T) {
	srv := newUpstream(t, http.StatusOK)
	outPath := filepath.Join(t.TempDir(), "nodes.json")

	stdout, err := execute(t, "build",
		"--base-url", srv.URL,
		"--cache-backend", "none",
		"--output", outPath,
		"--log-level", "error",
		"--summary")
	require.NoError(t, err)
	assert.Contains(t, stdout, "RUN SUMMARY")
	assert.Contains(t, stdout, "Source:                 api")

	out := readOutput(t, outPath)
	require.Len(t, out.Nodes, 2)
	assert.Equal(t, "a.olsr", out.Nodes[0].HostID)
	assert.Equal(t, 7, out.Nodes[0].Clients)
	require.Len(t, out.Links, 1)
}

func TestBuildCommandFallback(t *testing.T) {
	srv := newUpstream(t, http.StatusServiceUnavailable)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.olsr.json"), []byte(nodeJSON("c.olsr", "c", "d.olsr", 1)), 0o644))
	outPath := filepath.Join(t.TempDir(), "nodes.json")

	_, err := execute(t, "build",
		"--base-url", srv.URL,
		"--cache-backend", "none",
		"--fallback-dir", dir,
		"--output", outPath,
		"--log-level", "error")
	require.NoError(t, err)

	out := readOutput(t, outPath)
	require.Len(t, out.Nodes, 1)
	assert.Equal(t, "c.olsr", out.Nodes[0].HostID)
	assert.Empty(t, out.Links, "link to unknown node is pruned")
}

func TestBuildCommandInvalidBBox(t *testing.T) {
	_, err := execute(t, "build", "--bbox", "1,2,3", "--cache-backend", "none", "--log-level", "error")
	assert.Error(t, err)
}

func TestCachePrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")
	db, err := cache.OpenLevelDB(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.Set(ctx, "old", []byte("x"), -time.Minute))
	require.NoError(t, db.Set(ctx, "fresh", []byte("y"), time.Hour))
	require.NoError(t, db.Close())

	stdout, err := execute(t, "cache", "prune", "--cache-path", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Removed 1 expired entries")
}

func TestCachePruneRequiresLevelDB(t *testing.T) {
	t.Setenv("OWM_CACHE_BACKEND", "memory")
	_, err := execute(t, "cache", "prune", "--log-level", "error")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "owmgraph version dev\n", stdout)
}
