//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when FastEmbed is not available
// (binary built without CGO support; the chain falls through to the remote
// API or hash strategy).
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-CGO builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns an error when CGO is not available.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EmbedDocuments returns an error when CGO is not available.
func (p *FastEmbedProvider) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EmbedQuery returns an error when CGO is not available.
func (p *FastEmbedProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Dimension returns 0 for the stub.
func (p *FastEmbedProvider) Dimension() int { return 0 }

// Close is a no-op for the stub.
func (p *FastEmbedProvider) Close() error { return nil }

// fastEmbedModelDimension reports known model dimensions without loading models.
func fastEmbedModelDimension(model string) (int, bool) {
	switch model {
	case "BAAI/bge-small-en-v1.5", "BAAI/bge-small-en", "sentence-transformers/all-MiniLM-L6-v2":
		return 384, true
	case "BAAI/bge-base-en-v1.5", "BAAI/bge-base-en":
		return 768, true
	case "BAAI/bge-small-zh-v1.5":
		return 512, true
	default:
		return 0, false
	}
}
