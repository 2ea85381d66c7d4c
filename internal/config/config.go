// Package config provides configuration loading for vectord.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vectord/internal/embeddings"
)

// Config is the root configuration.
type Config struct {
	// Backend selects the vector store: "local" or "qdrant".
	Backend string `koanf:"backend"`

	Snapshot  SnapshotConfig  `koanf:"snapshot"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Log       LogConfig       `koanf:"log"`
}

// SnapshotConfig configures local-backend persistence.
type SnapshotConfig struct {
	// Path is the snapshot file location.
	Path string `koanf:"path"`
}

// EmbeddingConfig configures the embedding provider chain.
type EmbeddingConfig struct {
	// Provider is "auto", "fastembed", "remote" or "hash".
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// CacheDir is the local model cache directory.
	CacheDir string `koanf:"cache_dir"`

	// RemoteURL is the TEI-compatible embedding API base URL.
	RemoteURL string `koanf:"remote_url"`

	// Timeout bounds each remote embedding call.
	Timeout time.Duration `koanf:"timeout"`

	// Dimension pins the embedding dimension. Zero derives it from the
	// resolved provider.
	Dimension int `koanf:"dimension"`
}

// QdrantConfig configures the remote backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`

	// HostedModel declares the embedding model the remote index is bound to.
	// When set, local model loading is disabled.
	HostedModel string `koanf:"hosted_model"`

	// HostedDimension is the dimension declared by the hosted model.
	HostedDimension int `koanf:"hosted_dimension"`

	// QueryTimeout bounds every remote call.
	QueryTimeout time.Duration `koanf:"query_timeout"`

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int `koanf:"max_retries"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = "local"
	}

	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = "~/.local/share/vectord/snapshot.gob.gz"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "auto"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "vectord"
	}
	if cfg.Qdrant.HostedModel != "" && cfg.Qdrant.HostedDimension == 0 {
		cfg.Qdrant.HostedDimension = embeddings.DefaultDimension
	}
	if cfg.Qdrant.QueryTimeout == 0 {
		cfg.Qdrant.QueryTimeout = 10 * time.Second
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Backend {
	case "local", "qdrant":
	default:
		return fmt.Errorf("invalid backend: %q (expected local or qdrant)", c.Backend)
	}

	switch c.Embedding.Provider {
	case "auto", "fastembed", "remote", "hash":
	default:
		return fmt.Errorf("invalid embedding provider: %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("invalid embedding dimension: %d", c.Embedding.Dimension)
	}

	if c.Backend == "qdrant" {
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host required")
		}
		if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}

	return nil
}
