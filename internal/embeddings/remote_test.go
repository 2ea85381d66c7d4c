package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var count int
		switch inputs := req.Inputs.(type) {
		case string:
			count = 1
		case []interface{}:
			count = len(inputs)
		default:
			t.Fatalf("unexpected inputs type %T", req.Inputs)
		}

		out := make([][]float32, count)
		for i := range out {
			out[i] = make([]float32, dim)
			out[i][0] = 1
		}
		require.NoError(t, json.NewEncoder(w).Encode(out))
	}))
}

func TestRemoteProvider_EmbedQuery(t *testing.T) {
	srv := newEmbedServer(t, 384)
	defer srv.Close()

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	defer p.Close()

	vec, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestRemoteProvider_EmbedDocuments(t *testing.T) {
	srv := newEmbedServer(t, 384)
	defer srv.Close()

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	defer p.Close()

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}

func TestRemoteProvider_EmptyInput(t *testing.T) {
	p, err := NewRemoteProvider(RemoteConfig{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRemoteProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestRemoteProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "hello")
	assert.Error(t, err, "call must fail fast instead of blocking")
}

func TestRemoteProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewRemoteProvider(RemoteConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-large-en-v1.5", 1024},
		{"sentence-transformers/all-MiniLM-L6-v2", 384},
		{"totally-unknown-model", DefaultDimension},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectDimensionFromModel(tt.model), tt.model)
	}
}
