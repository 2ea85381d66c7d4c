package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/embeddings"
	"github.com/fyrsmithlabs/vectord/internal/rag"
	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(Config{
		Backend:   BackendLocal,
		Embedding: embeddings.ChainConfig{Provider: "hash"},
		Local: vectorstore.LocalConfig{
			Path: filepath.Join(t.TempDir(), "snapshot.gob.gz"),
		},
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_AddAndSearch(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	h, err := eng.AddDocument(ctx, "goroutines are cheap", map[string]interface{}{"source": "notes"})
	require.NoError(t, err)
	assert.Equal(t, 0, h.Position)

	// The hash embedding is deterministic, so the same text scores 1.0.
	matches := eng.SearchSimilar(ctx, "goroutines are cheap", SearchOptions{})
	require.NotEmpty(t, matches)
	assert.Equal(t, "goroutines are cheap", matches[0].Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
	assert.Equal(t, "notes", matches[0].Metadata["source"])
}

func TestEngine_SearchDefaults(t *testing.T) {
	p := SearchOptions{}.params()
	assert.Equal(t, DefaultTopK, p.TopK)
	assert.InDelta(t, DefaultThreshold, p.Threshold, 1e-6)

	p = SearchOptions{TopK: 2, Threshold: 0.3, TenantID: "acme"}.params()
	assert.Equal(t, 2, p.TopK)
	assert.InDelta(t, 0.3, p.Threshold, 1e-6)
	assert.Equal(t, "acme", p.TenantID)

	// Negative threshold means "no threshold".
	p = SearchOptions{Threshold: -1}.params()
	assert.Zero(t, p.Threshold)
}

func TestEngine_SearchHighThresholdEmpty(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddDocument(ctx, "completely unrelated content", nil)
	require.NoError(t, err)

	matches := eng.SearchSimilar(ctx, "a very different query string", SearchOptions{Threshold: 0.999})
	assert.Empty(t, matches)
}

func TestEngine_UpsertIdempotent(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.UpsertDocument(ctx, "doc-1", "version one", nil))
	require.NoError(t, eng.UpsertDocument(ctx, "doc-1", "version two", nil))

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)

	matches := eng.SearchSimilar(ctx, "version two", SearchOptions{TopK: 1})
	require.NotEmpty(t, matches)
	assert.Equal(t, "version two", matches[0].Text)

	assert.Error(t, eng.UpsertDocument(ctx, "", "no id", nil))
}

func TestEngine_UpdateAndDelete(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	h, err := eng.AddDocument(ctx, "original", nil)
	require.NoError(t, err)

	require.NoError(t, eng.UpdateDocument(ctx, h, "rewritten", nil))
	matches := eng.SearchSimilar(ctx, "rewritten", SearchOptions{TopK: 1})
	require.NotEmpty(t, matches)
	assert.Equal(t, "rewritten", matches[0].Text)

	require.NoError(t, eng.DeleteDocument(ctx, h))
	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)
}

func TestEngine_DeleteByID(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.UpsertDocument(ctx, "doc-1", "text", nil))
	require.NoError(t, eng.DeleteDocumentByID(ctx, "doc-1"))
	assert.ErrorIs(t, eng.DeleteDocumentByID(ctx, "doc-1"), vectorstore.ErrRecordNotFound)
}

func TestEngine_AsyncMatchesSync(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	for _, text := range []string{"alpha", "beta", "gamma"} {
		_, err := eng.AddDocument(ctx, text, nil)
		require.NoError(t, err)
	}

	opts := SearchOptions{TopK: 3, Threshold: -1}
	sync := eng.SearchSimilar(ctx, "alpha", opts)
	res := <-eng.SearchSimilarAsync(ctx, "alpha", opts)
	assert.Equal(t, sync, res.Matches)

	_, open := <-eng.SearchSimilarAsync(ctx, "alpha", opts)
	assert.True(t, open)
}

func TestEngine_GetContextForRAG(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	assert.Equal(t, rag.NoContextSentinel, eng.GetContextForRAG(ctx, "anything", 0, ""))

	_, err := eng.AddDocument(ctx, "channels synchronize goroutines", nil)
	require.NoError(t, err)

	got := eng.GetContextForRAG(ctx, "channels synchronize goroutines", 0, "")
	assert.Contains(t, got, "[Similarity: 1.00] channels synchronize goroutines")
}

func TestEngine_GetContextForRAGTenantScoped(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.UpsertDocument(ctx, "a", "Pricing info for plan A", map[string]interface{}{vectorstore.MetaTenantID: "t1"}))
	require.NoError(t, eng.UpsertDocument(ctx, "b", "Pricing info for plan B", map[string]interface{}{vectorstore.MetaTenantID: "t2"}))

	got := eng.GetContextForRAG(ctx, "Pricing info for plan A", 0, "t1")
	assert.Contains(t, got, "plan A")
	assert.NotContains(t, got, "plan B")
}

func TestEngine_SearchByMetadata(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddDocument(ctx, "tagged", map[string]interface{}{"kind": "note"})
	require.NoError(t, err)
	_, err = eng.AddDocument(ctx, "other", map[string]interface{}{"kind": "task"})
	require.NoError(t, err)

	matches, err := eng.SearchByMetadata(ctx, map[string]string{"kind": "note"}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "tagged", matches[0].Text)
}

func TestEngine_TenantScopedSearch(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddDocument(ctx, "acme secret", map[string]interface{}{vectorstore.MetaTenantID: "acme"})
	require.NoError(t, err)
	_, err = eng.AddDocument(ctx, "public doc", nil)
	require.NoError(t, err)

	matches := eng.SearchSimilar(ctx, "acme secret", SearchOptions{TenantID: "acme", Threshold: -1})
	require.Len(t, matches, 1)
	assert.Equal(t, "acme secret", matches[0].Text)

	matches = eng.SearchSimilar(ctx, "acme secret", SearchOptions{TenantID: "globex", Threshold: -1})
	assert.Empty(t, matches)
}

func TestEngine_Stats(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)
	assert.Equal(t, embeddings.DefaultDimension, stats.Dimension)
	assert.Equal(t, string(embeddings.StrategyHash), stats.Strategy)
	assert.Equal(t, BackendLocal, stats.Backend)
}

func TestEngine_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "cloud"}, zap.NewNop())
	assert.Error(t, err)
}

// failingStore errors on every search to exercise the degraded path.
type failingStore struct {
	vectorstore.Store
}

func (f *failingStore) Search(ctx context.Context, vector []float32, p vectorstore.SearchParams) ([]vectorstore.Match, error) {
	return nil, errors.New("backend unreachable")
}

func (f *failingStore) Close() error { return nil }

func TestEngine_SearchDegradesOnStoreError(t *testing.T) {
	chain := embeddings.NewChain(embeddings.ChainConfig{Provider: "hash"}, zap.NewNop())
	eng := NewWithStore(&failingStore{}, chain, zap.NewNop())

	matches := eng.SearchSimilar(context.Background(), "query", SearchOptions{})
	assert.NotNil(t, matches)
	assert.Empty(t, matches, "store failures degrade to empty results, never an error")

	assert.Equal(t, rag.NoContextSentinel, eng.GetContextForRAG(context.Background(), "query", 0, ""))
}
