package vectorstore

import "fmt"

// Document is the unit of indexing: original text, its unit-normalized
// embedding, and free-form string metadata.
type Document struct {
	// Text is the original content.
	Text string

	// Vector is the embedding; its length must equal the store dimension.
	Vector []float32

	// Metadata holds key/value annotations. Reserved keys: tenant_id,
	// document_id. Stores stamp created_at, updated_at, embedding_model
	// and text_length.
	Metadata map[string]string
}

// Handle addresses a stored record.
//
// The local backend uses Position: the record's index in the parallel
// arrays. Positions are invalidated by deletes — later records shift down
// by one — so callers must not retain them across deletes. The remote
// backend uses ID, an opaque string assigned at insert time.
type Handle struct {
	Position int
	ID       string
}

// PositionHandle addresses a local record by position.
func PositionHandle(position int) Handle {
	return Handle{Position: position, ID: ""}
}

// IDHandle addresses a remote record by id.
func IDHandle(id string) Handle {
	return Handle{Position: -1, ID: id}
}

func (h Handle) String() string {
	if h.ID != "" {
		return h.ID
	}
	return fmt.Sprintf("#%d", h.Position)
}

// Match is one similarity search result.
type Match struct {
	// Text is the matched document's content.
	Text string

	// Score is the cosine similarity to the query (higher = more similar).
	Score float32

	// Metadata is the matched document's metadata.
	Metadata map[string]string

	// Handle addresses the matched record (position or id).
	Handle Handle
}

// StoreStats reports store size information.
type StoreStats struct {
	// TotalDocuments is the number of stored records.
	TotalDocuments int

	// Dimension is the fixed embedding dimension.
	Dimension int

	// SnapshotSizeBytes is the on-disk snapshot size. Zero for the remote
	// backend, which owns its own durability.
	SnapshotSizeBytes int64
}

// ConvertMetadata normalizes free-form metadata values to strings at the
// store boundary so both backends persist and filter identically.
func ConvertMetadata(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// cloneMetadata returns a copy of m, never nil.
func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// matchesTenant applies the tenant visibility rule: a tenant-scoped search
// sees only exact tenant matches; untagged documents are visible only to
// unscoped searches.
func matchesTenant(metadata map[string]string, tenantID string) bool {
	if tenantID == "" {
		return true
	}
	return metadata[MetaTenantID] == tenantID
}
