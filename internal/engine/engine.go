// Package engine is the public facade of the retrieval system. It owns the
// embedding chain and one store backend, and exposes the full document
// lifecycle plus similarity search and RAG context assembly.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/embeddings"
	"github.com/fyrsmithlabs/vectord/internal/rag"
	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

// Backend names.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// Search defaults.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.7
	DefaultMetaLimit = 10
)

// Config holds engine configuration.
type Config struct {
	// Backend selects the store: "local" (default) or "qdrant".
	Backend string

	// Embedding configures the provider chain.
	Embedding embeddings.ChainConfig

	// Local configures the in-process backend.
	Local vectorstore.LocalConfig

	// Qdrant configures the remote backend.
	Qdrant vectorstore.QdrantConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
}

// SearchOptions tune a similarity search. Zero values take the defaults:
// TopK 5, Threshold 0.7. A negative Threshold requests no threshold at all.
type SearchOptions struct {
	TopK      int
	Threshold float32
	TenantID  string
}

func (o SearchOptions) params() vectorstore.SearchParams {
	p := vectorstore.SearchParams{
		TopK:      o.TopK,
		Threshold: o.Threshold,
		TenantID:  o.TenantID,
	}
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	if p.Threshold == 0 {
		p.Threshold = DefaultThreshold
	} else if p.Threshold < 0 {
		p.Threshold = 0
	}
	return p
}

// SearchResult carries an async search outcome.
type SearchResult struct {
	Matches []vectorstore.Match
}

// Stats is the engine-level view of store and chain state.
type Stats struct {
	TotalDocuments    int    `json:"total_documents"`
	Dimension         int    `json:"dimension"`
	Strategy          string `json:"strategy"`
	EmbeddingModel    string `json:"embedding_model"`
	Backend           string `json:"backend"`
	SnapshotSizeBytes int64  `json:"snapshot_size_bytes"`
}

// Engine binds the embedding chain to one store backend.
//
// The embedding dimension is fixed at construction and immutable for the
// engine's lifetime; indexing at a different dimension requires a new engine
// (and, for the local backend, a new snapshot path).
type Engine struct {
	store   vectorstore.Store
	chain   *embeddings.Chain
	backend string
	logger  *zap.Logger
}

// New constructs an engine: resolves the embedding chain, then opens the
// configured backend at the chain's dimension.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	if cfg.Backend != BackendLocal && cfg.Backend != BackendQdrant {
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	// The backend's dimension constrains chain resolution: a local model
	// whose dimension conflicts with an existing snapshot or collection is
	// skipped in favor of a compatible strategy.
	switch cfg.Backend {
	case BackendLocal:
		if cfg.Local.Dimension != 0 {
			cfg.Embedding.ExpectedDimension = cfg.Local.Dimension
		}
	case BackendQdrant:
		if cfg.Qdrant.VectorSize != 0 {
			cfg.Embedding.ExpectedDimension = int(cfg.Qdrant.VectorSize)
		}
	}

	chain := embeddings.NewChain(cfg.Embedding, logger)

	var (
		store vectorstore.Store
		err   error
	)
	switch cfg.Backend {
	case BackendLocal:
		cfg.Local.Dimension = chain.Dimension()
		cfg.Local.EmbeddingModel = chain.Model()
		store, err = vectorstore.NewLocalStore(cfg.Local, logger)
	case BackendQdrant:
		cfg.Qdrant.VectorSize = uint64(chain.Dimension())
		cfg.Qdrant.EmbeddingModel = chain.Model()
		store, err = vectorstore.NewQdrantStore(cfg.Qdrant, logger)
	}
	if err != nil {
		_ = chain.Close()
		return nil, fmt.Errorf("opening %s backend: %w", cfg.Backend, err)
	}

	return &Engine{
		store:   store,
		chain:   chain,
		backend: cfg.Backend,
		logger:  logger,
	}, nil
}

// NewWithStore constructs an engine over an already-open store. Used by tests
// and by callers that manage the store lifecycle themselves.
func NewWithStore(store vectorstore.Store, chain *embeddings.Chain, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, chain: chain, backend: "custom", logger: logger}
}

// AddDocument embeds text and appends it as a new record.
func (e *Engine) AddDocument(ctx context.Context, text string, metadata map[string]interface{}) (vectorstore.Handle, error) {
	vec := e.chain.Embed(ctx, text)
	return e.store.Add(ctx, vectorstore.Document{
		Text:     text,
		Vector:   vec,
		Metadata: vectorstore.ConvertMetadata(metadata),
	})
}

// UpsertDocument embeds text and writes it under the logical id, replacing
// any existing record with the same id. Idempotent: re-indexing the same
// document does not grow the store.
func (e *Engine) UpsertDocument(ctx context.Context, id, text string, metadata map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("document id required")
	}
	vec := e.chain.Embed(ctx, text)
	return e.store.Upsert(ctx, id, vectorstore.Document{
		Text:     text,
		Vector:   vec,
		Metadata: vectorstore.ConvertMetadata(metadata),
	})
}

// UpdateDocument re-embeds text and overwrites the record at handle.
func (e *Engine) UpdateDocument(ctx context.Context, h vectorstore.Handle, text string, metadata map[string]interface{}) error {
	vec := e.chain.Embed(ctx, text)
	return e.store.Update(ctx, h, vectorstore.Document{
		Text:     text,
		Vector:   vec,
		Metadata: vectorstore.ConvertMetadata(metadata),
	})
}

// DeleteDocument removes the record at handle.
func (e *Engine) DeleteDocument(ctx context.Context, h vectorstore.Handle) error {
	return e.store.Delete(ctx, h)
}

// DeleteDocumentByID removes the record with the logical id.
func (e *Engine) DeleteDocumentByID(ctx context.Context, id string) error {
	return e.store.DeleteByID(ctx, id)
}

// SearchSimilar embeds the query and returns up to TopK matches at or above
// the threshold, ranked by cosine similarity descending.
//
// Search never surfaces backend errors: an unreachable or timed-out store
// yields empty results and a logged warning, so retrieval degrades to
// "no context" rather than failing the caller.
func (e *Engine) SearchSimilar(ctx context.Context, query string, opts SearchOptions) []vectorstore.Match {
	vec := e.chain.Embed(ctx, query)
	matches, err := e.store.Search(ctx, vec, opts.params())
	if err != nil {
		e.logger.Warn("search failed, returning empty results",
			zap.String("backend", e.backend),
			zap.Error(err),
		)
		return []vectorstore.Match{}
	}
	return matches
}

// SearchSimilarAsync runs SearchSimilar in a goroutine and delivers the
// outcome on the returned channel. The channel is buffered and receives
// exactly one result; semantics are identical to the synchronous call.
func (e *Engine) SearchSimilarAsync(ctx context.Context, query string, opts SearchOptions) <-chan SearchResult {
	ch := make(chan SearchResult, 1)
	go func() {
		ch <- SearchResult{Matches: e.SearchSimilar(ctx, query, opts)}
		close(ch)
	}()
	return ch
}

// GetContextForRAG retrieves the most relevant documents for the query and
// assembles them into a context string within maxContextLength characters.
// maxContextLength <= 0 takes the default budget of 1000; tenantID, when
// non-empty, scopes retrieval to that tenant.
func (e *Engine) GetContextForRAG(ctx context.Context, query string, maxContextLength int, tenantID string) string {
	if maxContextLength <= 0 {
		maxContextLength = rag.DefaultBudget
	}
	matches := e.SearchSimilar(ctx, query, SearchOptions{
		TopK:      rag.DefaultTopK,
		Threshold: rag.DefaultThreshold,
		TenantID:  tenantID,
	})
	return rag.Assemble(matches, maxContextLength)
}

// SearchByMetadata lists records whose metadata exactly matches every entry
// of filter, capped at limit (default 10). No similarity ranking.
func (e *Engine) SearchByMetadata(ctx context.Context, filter map[string]string, limit int) ([]vectorstore.Match, error) {
	if limit <= 0 {
		limit = DefaultMetaLimit
	}
	return e.store.SearchByMetadata(ctx, filter, limit)
}

// Stats reports document count, dimension and the resolved embedding
// strategy.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	ss, err := e.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalDocuments:    ss.TotalDocuments,
		Dimension:         ss.Dimension,
		Strategy:          string(e.chain.Strategy()),
		EmbeddingModel:    e.chain.Model(),
		Backend:           e.backend,
		SnapshotSizeBytes: ss.SnapshotSizeBytes,
	}, nil
}

// Persist flushes the store to durable storage.
func (e *Engine) Persist(ctx context.Context) error {
	return e.store.Persist(ctx)
}

// Close persists and releases the store, then the embedding chain.
func (e *Engine) Close() error {
	storeErr := e.store.Close()
	chainErr := e.chain.Close()
	if storeErr != nil {
		return storeErr
	}
	return chainErr
}
