// Package config handles MuninDB configuration via environment variables
// and an optional YAML file.
//
// Configuration is loaded with Load (file + environment) or LoadFromEnv
// (environment only) and checked with Validate before use. Environment
// variables win over file values; both win over defaults.
//
// Example Usage:
//
//	cfg, err := config.Load("munindb.yaml")
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//	fmt.Printf("engine: %s data: %s\n", cfg.Engine, cfg.DataDir)
//
// Environment Variables:
//
//   - MUNINDB_DATA_DIR="./data"
//   - MUNINDB_ENGINE="memory" or "badger"
//   - MUNINDB_STANDALONE_TYPES="Config,Preference"
//   - MUNINDB_EMBEDDING_PROVIDER="ollama" or "openai"
//   - MUNINDB_EMBEDDING_API_URL="http://localhost:11434"
//   - MUNINDB_EMBEDDING_API_KEY (openai only)
//   - MUNINDB_EMBEDDING_MODEL="nomic-embed-text"
//   - MUNINDB_EMBEDDING_DIMENSIONS=768
//   - MUNINDB_EMBEDDING_BYTE_LIMIT=8192
//   - MUNINDB_EMBEDDING_CACHE_SIZE=1024
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Engine backends.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Config holds all MuninDB configuration.
type Config struct {
	// DataDir is the badger data directory. Ignored by the memory engine.
	DataDir string `yaml:"data_dir"`

	// Engine selects the storage backend: "memory" or "badger".
	Engine string `yaml:"engine"`

	// StandaloneTypes are node types the integrity check never reports
	// as orphaned.
	StandaloneTypes []string `yaml:"standalone_types"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures embedding generation. An empty Provider
// disables it entirely; the engine stores nodes without embeddings rather
// than failing.
type EmbeddingConfig struct {
	// Provider is "", "ollama" or "openai".
	Provider string `yaml:"provider"`
	// APIURL is the provider base URL.
	APIURL string `yaml:"api_url"`
	// APIKey authenticates to OpenAI. Unused by Ollama.
	APIKey string `yaml:"api_key"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the expected vector size.
	Dimensions int `yaml:"dimensions"`
	// ByteLimit caps text sent to the provider.
	ByteLimit int `yaml:"byte_limit"`
	// CacheSize is the embedding LRU cache capacity.
	CacheSize int `yaml:"cache_size"`
}

// Default returns the baseline configuration: in-memory engine, embedding
// disabled.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Engine:  EngineMemory,
		Embedding: EmbeddingConfig{
			APIURL:     "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			ByteLimit:  8192,
			CacheSize:  1024,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file, then
// MUNINDB_-prefixed environment variables, in increasing precedence. An
// empty path skips the file layer. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds configuration from defaults and the environment only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func (c *Config) applyEnv() {
	setString(&c.DataDir, "MUNINDB_DATA_DIR")
	setString(&c.Engine, "MUNINDB_ENGINE")
	if v := os.Getenv("MUNINDB_STANDALONE_TYPES"); v != "" {
		c.StandaloneTypes = splitList(v)
	}

	setString(&c.Embedding.Provider, "MUNINDB_EMBEDDING_PROVIDER")
	setString(&c.Embedding.APIURL, "MUNINDB_EMBEDDING_API_URL")
	setString(&c.Embedding.APIKey, "MUNINDB_EMBEDDING_API_KEY")
	setString(&c.Embedding.Model, "MUNINDB_EMBEDDING_MODEL")
	setInt(&c.Embedding.Dimensions, "MUNINDB_EMBEDDING_DIMENSIONS")
	setInt(&c.Embedding.ByteLimit, "MUNINDB_EMBEDDING_BYTE_LIMIT")
	setInt(&c.Embedding.CacheSize, "MUNINDB_EMBEDDING_CACHE_SIZE")
}

// Validate checks the configuration. Call before handing it to the engine.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineMemory, EngineBadger:
	default:
		return fmt.Errorf("invalid engine %q (want %q or %q)", c.Engine, EngineMemory, EngineBadger)
	}
	if c.Engine == EngineBadger && c.DataDir == "" {
		return fmt.Errorf("badger engine requires a data directory")
	}

	switch c.Embedding.Provider {
	case "", "ollama", "openai":
	default:
		return fmt.Errorf("invalid embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("openai embedding provider requires an API key")
	}
	if c.Embedding.Provider != "" && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be > 0, got %d", c.Embedding.Dimensions)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
