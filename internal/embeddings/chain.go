package embeddings

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ChainConfig holds configuration for the provider chain.
type ChainConfig struct {
	// Provider selects the preferred strategy: "auto" (default), "fastembed",
	// "remote", or "hash". "auto" tries fastembed, then remote, then hash.
	Provider string

	// Model is the embedding model name for local or remote providers.
	Model string

	// CacheDir is the model cache directory (fastembed only).
	CacheDir string

	// RemoteURL is the TEI-compatible embedding API base URL.
	RemoteURL string

	// Timeout is the per-call deadline for remote embedding requests.
	Timeout time.Duration

	// HostedModel, when set, declares that the remote vector index is bound
	// to its own embedding model. Local model loading is disabled and
	// HostedDimension is adopted as the chain dimension.
	HostedModel string

	// HostedDimension is the dimension declared by the hosted model.
	HostedDimension int

	// ExpectedDimension constrains provider selection: providers whose
	// dimension conflicts with it are skipped. Zero means unconstrained.
	ExpectedDimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "auto"
	}
	if c.Model == "" {
		c.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HostedModel != "" && c.HostedDimension == 0 {
		c.HostedDimension = DefaultDimension
	}
}

// Chain resolves text to fixed-length vectors using the first available
// strategy in priority order, degrading to the deterministic hash fallback
// on any per-call failure. Embed never returns an error: retrieval must
// always be able to produce some ranking.
//
// Resolution happens exactly once at construction. The dimension is fixed
// for the lifetime of the chain; changing it requires a new chain.
type Chain struct {
	active    Provider
	strategy  Strategy
	dimension int
	model     string
	logger    *zap.Logger
	metrics   *Metrics
}

// NewChain constructs a chain and resolves the active strategy.
// Construction never fails; the worst case is the hash strategy.
func NewChain(cfg ChainConfig, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	c := &Chain{
		logger:  logger,
		metrics: NewMetrics(logger),
	}
	c.resolve(cfg)

	logger.Info("embedding chain resolved",
		zap.String("strategy", string(c.strategy)),
		zap.String("model", c.model),
		zap.Int("dimension", c.dimension),
	)
	return c
}

// resolve walks the strategy preference order once.
func (c *Chain) resolve(cfg ChainConfig) {
	// Remote index with a bound model: disable local loading, adopt its
	// dimension. Embedding goes through the remote API when one is
	// configured for the hosted model; otherwise hash at that dimension.
	if cfg.HostedModel != "" {
		c.dimension = cfg.HostedDimension
		c.model = cfg.HostedModel
		if cfg.RemoteURL != "" {
			remote, err := NewRemoteProvider(RemoteConfig{
				BaseURL:   cfg.RemoteURL,
				Model:     cfg.HostedModel,
				Dimension: cfg.HostedDimension,
				Timeout:   cfg.Timeout,
			})
			if err == nil {
				c.active = remote
				c.strategy = StrategyHostedModel
				return
			}
			c.logger.Warn("hosted model endpoint unavailable, using hash fallback", zap.Error(err))
		}
		c.adoptHash(cfg.HostedDimension)
		return
	}

	if cfg.Provider == "hash" {
		c.adoptHash(cfg.ExpectedDimension)
		return
	}

	if cfg.Provider == "auto" || cfg.Provider == "fastembed" {
		local, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			c.logger.Warn("local embedding model unavailable", zap.Error(err))
		} else if cfg.ExpectedDimension != 0 && local.Dimension() != cfg.ExpectedDimension {
			c.logger.Warn("local model dimension conflicts with backend, skipping",
				zap.Int("model_dimension", local.Dimension()),
				zap.Int("expected_dimension", cfg.ExpectedDimension),
			)
			_ = local.Close()
		} else {
			c.active = local
			c.strategy = StrategyLocalModel
			c.dimension = local.Dimension()
			c.model = cfg.Model
			return
		}
	}

	if (cfg.Provider == "auto" || cfg.Provider == "remote") && cfg.RemoteURL != "" {
		remote, err := NewRemoteProvider(RemoteConfig{
			BaseURL: cfg.RemoteURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			c.logger.Warn("remote embedding API unavailable", zap.Error(err))
		} else if cfg.ExpectedDimension != 0 && remote.Dimension() != cfg.ExpectedDimension {
			c.logger.Warn("remote model dimension conflicts with backend, skipping",
				zap.Int("model_dimension", remote.Dimension()),
				zap.Int("expected_dimension", cfg.ExpectedDimension),
			)
		} else {
			c.active = remote
			c.strategy = StrategyRemoteAPI
			c.dimension = remote.Dimension()
			c.model = cfg.Model
			return
		}
	}

	c.adoptHash(cfg.ExpectedDimension)
}

func (c *Chain) adoptHash(dimension int) {
	hash := NewHashProvider(dimension)
	c.active = hash
	c.strategy = StrategyHash
	c.dimension = hash.Dimension()
	c.model = "hash"
}

// Embed maps text to a vector of exactly Dimension() components.
//
// On any provider failure or dimension mismatch it logs and falls back to
// the hash embedding for that single call; the active strategy is not
// permanently downgraded.
func (c *Chain) Embed(ctx context.Context, text string) []float32 {
	start := time.Now()
	vec, err := c.active.EmbedQuery(ctx, text)
	c.metrics.RecordGeneration(ctx, c.model, "embed", time.Since(start), 1, err)

	if err != nil {
		c.logger.Warn("embedding failed, using hash fallback",
			zap.String("strategy", string(c.strategy)),
			zap.Error(err),
		)
		return HashEmbed(text, c.dimension)
	}
	if len(vec) != c.dimension {
		c.logger.Warn("embedding dimension mismatch, using hash fallback",
			zap.Int("got", len(vec)),
			zap.Int("want", c.dimension),
		)
		return HashEmbed(text, c.dimension)
	}
	return vec
}

// EmbedBatch maps each text to a vector of exactly Dimension() components,
// with the same per-call fallback semantics as Embed.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	start := time.Now()
	vecs, err := c.active.EmbedDocuments(ctx, texts)
	c.metrics.RecordGeneration(ctx, c.model, "embed_batch", time.Since(start), len(texts), err)

	if err != nil || len(vecs) != len(texts) {
		c.logger.Warn("batch embedding failed, using hash fallback",
			zap.String("strategy", string(c.strategy)),
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)
		vecs = make([][]float32, len(texts))
		for i, t := range texts {
			vecs[i] = HashEmbed(t, c.dimension)
		}
		return vecs
	}

	for i, v := range vecs {
		if len(v) != c.dimension {
			vecs[i] = HashEmbed(texts[i], c.dimension)
		}
	}
	return vecs
}

// Strategy returns the resolved strategy.
func (c *Chain) Strategy() Strategy {
	return c.strategy
}

// Dimension returns the fixed embedding dimension.
func (c *Chain) Dimension() int {
	return c.dimension
}

// Model returns the active model name, stamped into document metadata.
func (c *Chain) Model() string {
	return c.model
}

// Close releases resources held by the active provider.
func (c *Chain) Close() error {
	return c.active.Close()
}
