//go:build cgo

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// kuzuConfigDir writes a ckg.yml pointing at a temporary Kuzu database.
func kuzuConfigDir(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"CKG_STORE_BACKEND", "CKG_KUZU_PATH", "CKG_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	cfg := "store:\n  backend: kuzu\n  kuzuPath: db/graph\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ckg.yml"), []byte(cfg), 0o644))
	return dir
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	abs, err := filepath.Abs(filepath.Join("../../testdata/fixtures", name))
	require.NoError(t, err)
	return abs
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestIngestSummaryViz(t *testing.T) {
	dir := kuzuConfigDir(t)

	out, err := execute(t, "--config-dir", dir, "init-schema")
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (kuzu)")

	out, err = execute(t, "--config-dir", dir, "ingest", fixture(t, "c_project"), "--project-id", "geom", "--graph-id", "g1")
	require.NoError(t, err)
	var report graph.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "g1", report.GraphID)
	assert.Equal(t, 2, report.FilesIngested)
	assert.Zero(t, report.WriteFailures)

	out, err = execute(t, "--config-dir", dir, "summary", "--project-id", "geom")
	require.NoError(t, err)
	var sum graph.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 2, sum.TotalFiles)

	out, err = execute(t, "--config-dir", dir, "viz", "--graph-id", "g1", "--format", "mermaid")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))

	target := filepath.Join(t.TempDir(), "report.json")
	_, err = execute(t, "--config-dir", dir, "export", "--project-id", "geom", "-o", target)
	require.NoError(t, err)
	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"graph_id": "g1"`)
}

func TestIngestRequiresProjectID(t *testing.T) {
	dir := kuzuConfigDir(t)
	_, err := execute(t, "--config-dir", dir, "ingest", fixture(t, "c_project"))
	assert.ErrorContains(t, err, "--project-id")
}

func TestVizRejectsFormat(t *testing.T) {
	dir := kuzuConfigDir(t)
	_, err := execute(t, "--config-dir", dir, "viz", "--graph-id", "g1", "--format", "png")
	assert.ErrorContains(t, err, "--format")
}

func TestSummaryRequiresSelector(t *testing.T) {
	dir := kuzuConfigDir(t)
	_, err := execute(t, "--config-dir", dir, "summary")
	assert.ErrorContains(t, err, "--graph-id or --project-id")
}
