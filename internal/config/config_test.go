package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/parser"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CKG_STORE_BACKEND", "CKG_KUZU_PATH", "CKG_NEO4J_URI", "CKG_NEO4J_USER",
		"CKG_NEO4J_PASSWORD", "CKG_NEO4J_DATABASE", "CKG_LOG_LEVEL", "CKG_HTTP_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "ckg.yml", `
store:
  backend: memory
ingest:
  workers: 4
  parseTimeout: 2s
  languages: [python, kt]
query:
  nodeCap: 50
log:
  level: debug
  development: true
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 2*time.Second, cfg.Ingest.ParseTimeout)
	assert.Equal(t, []parser.Language{parser.LangPython, parser.LangKotlin}, cfg.Languages())
	assert.Equal(t, 50, cfg.Query.NodeCap)
	assert.Equal(t, 5, cfg.Query.MainModules, "unset fields keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoad_YAMLExtension(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "ckg.yaml", "store:\n  backend: memory\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "ckg.yml", "store:\n  backend: kuzu\n")
	t.Setenv("CKG_STORE_BACKEND", "neo4j")
	t.Setenv("CKG_NEO4J_URI", "bolt://db:7687")
	t.Setenv("CKG_NEO4J_USER", "admin")
	t.Setenv("CKG_NEO4J_PASSWORD", "secret")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendNeo4j, cfg.Store.Backend)
	assert.Equal(t, "bolt://db:7687", cfg.Store.Neo4j.URI)
	assert.Equal(t, "admin", cfg.Store.Neo4j.Username)
	assert.Equal(t, "secret", cfg.Store.Neo4j.Password)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, ".env", "CKG_LOG_LEVEL=warn\n")
	// godotenv never overrides a variable that is set, even to "".
	require.NoError(t, os.Unsetenv("CKG_LOG_LEVEL"))
	t.Cleanup(func() { os.Unsetenv("CKG_LOG_LEVEL") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "store:\n  backend: sqlite\n"},
		{"neo4j without uri", "store:\n  backend: neo4j\n"},
		{"negative workers", "ingest:\n  workers: -1\n"},
		{"unknown language", "ingest:\n  languages: [cobol]\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"malformed yaml", "store: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeFile(t, dir, "ckg.yml", tt.yaml)
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}
