// Package vectorstore provides vector record storage with two interchangeable
// backends: an in-process store persisted to a compressed snapshot, and a
// remote Qdrant index. Both expose the same mutators and query operation and
// behave identically to callers.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRecordNotFound is returned when an update or delete addresses a
	// missing position or id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDimensionMismatch is returned when a vector's length does not match
	// the store's fixed dimension. Writes fail closed rather than storing
	// ragged vectors.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed indicates the remote index is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrSnapshotCorrupt indicates the persisted snapshot is unreadable.
	// The store cold-starts empty instead of crashing.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
)

// Reserved and engine-populated metadata keys.
const (
	// MetaTenantID scopes a document to one tenant. Opaque, case-sensitive,
	// compared by exact match only.
	MetaTenantID = "tenant_id"

	// MetaDocumentID is the caller-supplied logical id used for idempotent
	// upsert and delete-by-id.
	MetaDocumentID = "document_id"

	MetaCreatedAt      = "created_at"
	MetaUpdatedAt      = "updated_at"
	MetaEmbeddingModel = "embedding_model"
	MetaTextLength     = "text_length"

	// MetaText is the payload key under which the remote backend stores the
	// document text so it can be reconstructed from query results.
	MetaText = "text"
)

// SearchParams controls a similarity query.
type SearchParams struct {
	// TopK caps the number of results.
	TopK int

	// Threshold is the minimum cosine similarity for a match.
	Threshold float32

	// TenantID, when non-empty, restricts results to documents whose
	// tenant_id metadata exactly matches. Documents with no tenant_id are
	// only visible when TenantID is empty.
	TenantID string
}

// Store is the common contract of both backends.
//
// All vectors held by a store share one dimension, fixed at construction.
// Every vector at rest is unit-normalized; stores re-assert this on each
// write rather than trusting callers.
type Store interface {
	// Add appends a new record and returns its handle.
	Add(ctx context.Context, doc Document) (Handle, error)

	// Upsert writes the record with the given logical id, overwriting any
	// existing record with the same id. This is the only idempotent write
	// path; re-indexing the same logical document must go through it.
	Upsert(ctx context.Context, id string, doc Document) error

	// Update overwrites the record addressed by handle.
	// Returns ErrRecordNotFound if the handle does not resolve.
	Update(ctx context.Context, h Handle, doc Document) error

	// Delete removes the record addressed by handle.
	// Returns ErrRecordNotFound if the handle does not resolve.
	Delete(ctx context.Context, h Handle) error

	// DeleteByID removes the record with the given logical id.
	// Returns ErrRecordNotFound if no record carries it.
	DeleteByID(ctx context.Context, id string) error

	// Search returns up to TopK records at or above Threshold, ranked by
	// cosine similarity descending, respecting the tenant filter.
	Search(ctx context.Context, vector []float32, p SearchParams) ([]Match, error)

	// SearchByMetadata returns records whose metadata exactly matches every
	// entry of filter, capped at limit. No ranking; administrative listing.
	SearchByMetadata(ctx context.Context, filter map[string]string, limit int) ([]Match, error)

	// Stats reports document count, dimension and snapshot size.
	Stats(ctx context.Context) (StoreStats, error)

	// Persist flushes state to durable storage. No-op for the remote backend.
	Persist(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
