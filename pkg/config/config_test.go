package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, EngineMemory, cfg.Engine)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MUNINDB_ENGINE", "badger")
	t.Setenv("MUNINDB_DATA_DIR", "/tmp/munin")
	t.Setenv("MUNINDB_STANDALONE_TYPES", "Config, Preference ,")
	t.Setenv("MUNINDB_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("MUNINDB_EMBEDDING_DIMENSIONS", "1024")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, EngineBadger, cfg.Engine)
	assert.Equal(t, "/tmp/munin", cfg.DataDir)
	assert.Equal(t, []string{"Config", "Preference"}, cfg.StandaloneTypes)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "munindb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine: badger
data_dir: /var/lib/munin
embedding:
  provider: ollama
  model: mxbai-embed-large
  dimensions: 1024
`), 0o600))

	t.Setenv("MUNINDB_EMBEDDING_MODEL", "nomic-embed-text")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, EngineBadger, cfg.Engine)
	assert.Equal(t, "/var/lib/munin", cfg.DataDir)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model, "env wins over file")
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Engine = "cloud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine = EngineBadger
	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Embedding.Provider = "openai"
	assert.Error(t, cfg.Validate(), "openai without an API key")

	cfg = Default()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Dimensions = 0
	assert.Error(t, cfg.Validate())
}
