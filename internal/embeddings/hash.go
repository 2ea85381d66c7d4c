package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
)

// HashProvider generates deterministic embeddings from a stable hash of the
// input text. It carries no semantic signal but always succeeds, which makes
// it the terminal fallback of the provider chain: retrieval must always be
// able to produce some ranking.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash provider with the given dimension.
// A non-positive dimension falls back to DefaultDimension.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashProvider{dimension: dimension}
}

// HashEmbed computes the deterministic hash embedding for text.
// Component i is FNV-1a(text + "_" + i) mod 1000, scaled into [0, 1).
// Calling it twice with the same text and dimension returns identical vectors.
func HashEmbed(text string, dimension int) []float32 {
	vec := make([]float32, dimension)
	for i := range vec {
		h := fnv.New32a()
		h.Write([]byte(text))
		h.Write([]byte("_"))
		h.Write([]byte(strconv.Itoa(i)))
		vec[i] = float32(h.Sum32()%1000) / 1000.0
	}
	return vec
}

// EmbedDocuments generates hash embeddings for multiple texts. Never fails.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashEmbed(t, p.dimension)
	}
	return out, nil
}

// EmbedQuery generates a hash embedding for a single query. Never fails.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return HashEmbed(text, p.dimension), nil
}

// Dimension returns the configured embedding dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}

// Normalize scales vec to unit Euclidean norm in place and returns it.
// A zero vector is returned unchanged; callers must treat it as unrankable
// (cosine similarity against it is always 0).
func Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := math.Sqrt(sumSq)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Norm returns the Euclidean norm of vec.
func Norm(vec []float32) float64 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	return math.Sqrt(sumSq)
}

var _ Provider = (*HashProvider)(nil)
