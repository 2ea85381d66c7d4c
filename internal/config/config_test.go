package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing config file is not an error")

	assert.Equal(t, "local", cfg.Backend)
	assert.Equal(t, "~/.local/share/vectord/snapshot.gob.gz", cfg.Snapshot.Path)
	assert.Equal(t, "auto", cfg.Embedding.Provider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embedding.Model)
	assert.Equal(t, 10*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "vectord", cfg.Qdrant.Collection)
	assert.Equal(t, 3, cfg.Qdrant.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend: qdrant
embedding:
  provider: hash
  dimension: 768
qdrant:
  host: vectors.internal
  port: 7334
  collection: docs
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.Backend)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, "vectors.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7334, cfg.Qdrant.Port)
	assert.Equal(t, "docs", cfg.Qdrant.Collection)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	t.Setenv("VECTORD_LOG_LEVEL", "error")
	t.Setenv("VECTORD_QDRANT_HOST", "override.internal")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "override.internal", cfg.Qdrant.Host)
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("VECTORD_BACKEND", "cloud")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("VECTORD_LOG_LEVEL", "verbose")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_OversizedFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	big := make([]byte, maxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, big, 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		var cfg Config
		applyDefaults(&cfg)
		return cfg
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Embedding.Provider = "magic"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Backend = "qdrant"
	cfg.Qdrant.Port = -1
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Embedding.Dimension = -5
	assert.Error(t, cfg.Validate())
}
