// Package embeddings provides embedding generation via a prioritized provider chain.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates a provider returned a vector whose length
	// does not match the chain's fixed dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// Strategy identifies which provider the chain resolved to.
type Strategy string

const (
	// StrategyHostedModel means the remote vector index declares a bound
	// embedding model; local model loading is disabled and the index's
	// dimension is adopted.
	StrategyHostedModel Strategy = "hosted_model"

	// StrategyLocalModel means a locally loaded transformer model (fastembed).
	StrategyLocalModel Strategy = "local_model"

	// StrategyRemoteAPI means a remote HTTP embedding service.
	StrategyRemoteAPI Strategy = "remote_api"

	// StrategyHash means the deterministic hash fallback.
	StrategyHash Strategy = "hash"
)

// DefaultDimension is used when no provider declares a dimension.
// Matches BAAI/bge-small-en-v1.5.
const DefaultDimension = 384
