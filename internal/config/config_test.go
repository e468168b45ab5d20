package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, BackendKuzu, cfg.Backend.Database)
	assert.Equal(t, CacheBadger, cfg.Cache.Database)
}

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
projectPath: ./src
cache:
  database: memory
backend:
  database: sqlite
  sqlite:
    path: /tmp/g.db
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "./src", cfg.ProjectPath)
	assert.Equal(t, CacheMemory, cfg.Cache.Database)
	assert.Equal(t, BackendSQLite, cfg.Backend.Database)
	assert.Equal(t, "/tmp/g.db", cfg.Backend.SQLite.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "backend: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*Config)
		wantErr error
	}{
		{"ok", func(*Config) {}, nil},
		{"missing project", func(c *Config) { c.ProjectPath = "" }, ErrMissingProjectPath},
		{"unknown backend", func(c *Config) { c.Backend.Database = "gremlin" }, ErrUnsupportedBackend},
		{"unknown cache", func(c *Config) { c.Cache.Database = "redis" }, ErrUnsupportedCache},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ProjectPath = "."
			tt.edit(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_FileDBNeedsDistinctFiles(t *testing.T) {
	p := writeConfig(t, `
projectPath: .
backend:
  database: filedb
  filedb:
    vertexFile: out/graph.jsonl
    edgeFile: ./out/graph.jsonl
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	cfg.Backend.FileDB.EdgeFile = "out/edge.jsonl"
	assert.NoError(t, cfg.Validate())
}
