package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteConfig holds configuration for the remote embedding API provider.
type RemoteConfig struct {
	// BaseURL is the base URL for the embedding API (TEI-compatible).
	BaseURL string

	// Model is the embedding model name, used for dimension detection
	// and stamped into document metadata.
	Model string

	// Dimension is the expected embedding dimension. If zero, detected
	// from the model name.
	Dimension int

	// Timeout is the hard client-side deadline per request.
	// Default: 10s. Embedding calls must never block indefinitely.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *RemoteConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Dimension == 0 {
		c.Dimension = detectDimensionFromModel(c.Model)
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to DefaultDimension if the model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case contains(model, "large"):
		return 1024
	case contains(model, "base"):
		return 768
	case contains(model, "small"), contains(model, "mini"), contains(model, "MiniLM"):
		return DefaultDimension
	default:
		return DefaultDimension
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// RemoteProvider generates embeddings via a TEI-compatible HTTP API.
type RemoteProvider struct {
	config RemoteConfig
	client *http.Client
}

// NewRemoteProvider creates a remote embedding provider.
func NewRemoteProvider(config RemoteConfig) (*RemoteProvider, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &RemoteProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// embedRequest is the request body for the TEI embed endpoint.
type embedRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

func (p *RemoteProvider) embed(ctx context.Context, inputs interface{}) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *RemoteProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *RemoteProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

// Dimension returns the embedding dimension based on the configured model.
func (p *RemoteProvider) Dimension() int {
	return p.config.Dimension
}

// Model returns the configured model name.
func (p *RemoteProvider) Model() string {
	return p.config.Model
}

// Close is a no-op for the HTTP provider.
func (p *RemoteProvider) Close() error {
	return nil
}

var _ Provider = (*RemoteProvider)(nil)
