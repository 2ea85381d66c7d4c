package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/embeddings"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

var localTracer = otel.Tracer("vectord.vectorstore.local")

// normTolerance is the floating-point tolerance for the unit-norm invariant.
const normTolerance = 1e-6

// LocalConfig holds configuration for the in-process store.
type LocalConfig struct {
	// Path is the snapshot file location.
	// Default: "~/.local/share/vectord/snapshot.gob.gz"
	Path string

	// Dimension is the fixed embedding dimension.
	Dimension int

	// EmbeddingModel is stamped into metadata on writes and persisted in
	// the snapshot header.
	EmbeddingModel string
}

// ApplyDefaults sets default values for unset fields.
func (c *LocalConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/vectord/snapshot.gob.gz"
	}
	if c.Dimension == 0 {
		c.Dimension = embeddings.DefaultDimension
	}
}

// Validate validates the configuration.
func (c *LocalConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// LocalStore is the authoritative in-process backend: three index-aligned
// parallel slices (vectors, documents, metadata) plus an id→position side
// index for O(1) amortized upsert and delete-by-id.
//
// Concurrency: one RWMutex over the whole store. Mutators and Persist are
// mutually exclusive; searches run concurrently with each other but not
// with writes. The expected dataset size does not justify finer locking.
//
// The snapshot file is owned exclusively by one store instance per process;
// sharing a path across processes is undefined behavior.
type LocalStore struct {
	config LocalConfig
	logger *zap.Logger

	mu        sync.RWMutex
	vectors   [][]float32
	documents []string
	metadata  []map[string]string
	byID      map[string]int
}

// NewLocalStore creates a LocalStore, loading any existing snapshot.
// An unreadable snapshot logs a warning and cold-starts empty.
func NewLocalStore(config LocalConfig, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expanded, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	config.Path = expanded

	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", filepath.Dir(expanded), err)
	}

	s := &LocalStore{
		config: config,
		logger: logger,
		byID:   make(map[string]int),
	}
	s.load()

	logger.Info("local store initialized",
		zap.String("path", config.Path),
		zap.Int("dimension", config.Dimension),
		zap.Int("documents", len(s.documents)),
	)
	return s, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// load reads the snapshot and re-normalizes legacy vectors. Never fails:
// missing or corrupt snapshots produce an empty store.
func (s *LocalStore) load() {
	snap, err := readSnapshot(s.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		s.logger.Warn("snapshot unreadable, cold-starting empty",
			zap.String("path", s.config.Path),
			zap.Error(err),
		)
		return
	}

	if snap.Dimension != 0 && snap.Dimension != s.config.Dimension {
		s.logger.Warn("snapshot dimension differs from configured dimension, cold-starting empty",
			zap.Int("snapshot_dimension", snap.Dimension),
			zap.Int("configured_dimension", s.config.Dimension),
		)
		return
	}

	// Startup migration: older snapshots stored unnormalized vectors.
	// Idempotent; already-normalized vectors pass through untouched.
	migrated := 0
	for _, vec := range snap.Vectors {
		norm := embeddings.Norm(vec)
		if norm != 0 && absDiff(norm, 1) > normTolerance {
			embeddings.Normalize(vec)
			migrated++
		}
	}
	if migrated > 0 {
		s.logger.Info("re-normalized legacy vectors from snapshot", zap.Int("count", migrated))
	}

	s.vectors = snap.Vectors
	s.documents = snap.Documents
	s.metadata = snap.Metadata
	for i, meta := range s.metadata {
		if id, ok := meta[MetaDocumentID]; ok && id != "" {
			s.byID[id] = i
		}
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// prepare validates and normalizes a document for storage.
// The vector is copied so callers cannot mutate stored state.
func (s *LocalStore) prepare(doc Document) (Document, error) {
	if len(doc.Vector) != s.config.Dimension {
		return Document{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(doc.Vector), s.config.Dimension)
	}
	vec := make([]float32, len(doc.Vector))
	copy(vec, doc.Vector)
	doc.Vector = embeddings.Normalize(vec)
	doc.Metadata = cloneMetadata(doc.Metadata)
	return doc, nil
}

// stampInsert fills engine-populated metadata for a new record.
func (s *LocalStore) stampInsert(meta map[string]string, text string) {
	meta[MetaCreatedAt] = timeNow().UTC().Format(time.RFC3339)
	meta[MetaEmbeddingModel] = s.config.EmbeddingModel
	meta[MetaTextLength] = strconv.Itoa(len(text))
}

// Add appends to all three parallel arrays and returns the new position.
func (s *LocalStore) Add(ctx context.Context, doc Document) (Handle, error) {
	_, span := localTracer.Start(ctx, "LocalStore.Add")
	defer span.End()

	doc, err := s.prepare(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Handle{Position: -1}, err
	}
	s.stampInsert(doc.Metadata, doc.Text)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = append(s.vectors, doc.Vector)
	s.documents = append(s.documents, doc.Text)
	s.metadata = append(s.metadata, doc.Metadata)

	pos := len(s.documents) - 1
	if id := doc.Metadata[MetaDocumentID]; id != "" {
		s.byID[id] = pos
	}

	span.SetAttributes(attribute.Int("position", pos))
	span.SetStatus(codes.Ok, "success")
	return PositionHandle(pos), nil
}

// Upsert overwrites the record carrying document_id == id, preserving its
// position, or appends a new record stamped with that id.
func (s *LocalStore) Upsert(ctx context.Context, id string, doc Document) error {
	_, span := localTracer.Start(ctx, "LocalStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	if id == "" {
		return fmt.Errorf("%w: id required for upsert", ErrInvalidConfig)
	}

	doc, err := s.prepare(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	doc.Metadata[MetaDocumentID] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.byID[id]; ok {
		created := s.metadata[pos][MetaCreatedAt]
		s.stampInsert(doc.Metadata, doc.Text)
		if created != "" {
			doc.Metadata[MetaCreatedAt] = created
		}
		doc.Metadata[MetaUpdatedAt] = timeNow().UTC().Format(time.RFC3339)
		s.vectors[pos] = doc.Vector
		s.documents[pos] = doc.Text
		s.metadata[pos] = doc.Metadata
		span.SetAttributes(attribute.Int("position", pos), attribute.Bool("updated", true))
		span.SetStatus(codes.Ok, "success")
		return nil
	}

	s.stampInsert(doc.Metadata, doc.Text)
	s.vectors = append(s.vectors, doc.Vector)
	s.documents = append(s.documents, doc.Text)
	s.metadata = append(s.metadata, doc.Metadata)
	s.byID[id] = len(s.documents) - 1

	span.SetAttributes(attribute.Int("position", len(s.documents)-1), attribute.Bool("updated", false))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Update overwrites the record at the handle's position.
func (s *LocalStore) Update(ctx context.Context, h Handle, doc Document) error {
	_, span := localTracer.Start(ctx, "LocalStore.Update")
	defer span.End()
	span.SetAttributes(attribute.Int("position", h.Position))

	doc, err := s.prepare(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos := h.Position
	if h.ID != "" {
		var ok bool
		pos, ok = s.byID[h.ID]
		if !ok {
			span.SetStatus(codes.Error, "not found")
			return ErrRecordNotFound
		}
	}
	if pos < 0 || pos >= len(s.documents) {
		span.SetStatus(codes.Error, "not found")
		return ErrRecordNotFound
	}

	old := s.metadata[pos]
	if id := old[MetaDocumentID]; id != "" && doc.Metadata[MetaDocumentID] == "" {
		doc.Metadata[MetaDocumentID] = id
	}
	s.stampInsert(doc.Metadata, doc.Text)
	if created := old[MetaCreatedAt]; created != "" {
		doc.Metadata[MetaCreatedAt] = created
	}
	doc.Metadata[MetaUpdatedAt] = timeNow().UTC().Format(time.RFC3339)

	s.vectors[pos] = doc.Vector
	s.documents[pos] = doc.Text
	s.metadata[pos] = doc.Metadata

	if id := doc.Metadata[MetaDocumentID]; id != "" {
		s.byID[id] = pos
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes the record at the handle's position from all three arrays.
// Positions of later records shift down by one.
func (s *LocalStore) Delete(ctx context.Context, h Handle) error {
	_, span := localTracer.Start(ctx, "LocalStore.Delete")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos := h.Position
	if h.ID != "" {
		var ok bool
		pos, ok = s.byID[h.ID]
		if !ok {
			span.SetStatus(codes.Error, "not found")
			return ErrRecordNotFound
		}
	}
	if err := s.deleteAt(pos); err != nil {
		span.SetStatus(codes.Error, "not found")
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByID removes the record carrying document_id == id.
func (s *LocalStore) DeleteByID(ctx context.Context, id string) error {
	_, span := localTracer.Start(ctx, "LocalStore.DeleteByID")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.byID[id]
	if !ok {
		span.SetStatus(codes.Error, "not found")
		return ErrRecordNotFound
	}
	if err := s.deleteAt(pos); err != nil {
		span.SetStatus(codes.Error, "not found")
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// deleteAt removes position pos and repairs the id index. Caller holds the
// write lock. The three arrays always shrink together; breaking their
// alignment is a programming error, not a recoverable state.
func (s *LocalStore) deleteAt(pos int) error {
	if pos < 0 || pos >= len(s.documents) {
		return ErrRecordNotFound
	}

	if id := s.metadata[pos][MetaDocumentID]; id != "" {
		delete(s.byID, id)
	}

	s.vectors = append(s.vectors[:pos], s.vectors[pos+1:]...)
	s.documents = append(s.documents[:pos], s.documents[pos+1:]...)
	s.metadata = append(s.metadata[:pos], s.metadata[pos+1:]...)

	for id, p := range s.byID {
		if p > pos {
			s.byID[id] = p - 1
		}
	}
	return nil
}

// Search scans all records once, tenant- and threshold-filtering into a
// bounded min-heap, and returns matches sorted descending by similarity.
func (s *LocalStore) Search(ctx context.Context, vector []float32, p SearchParams) ([]Match, error) {
	_, span := localTracer.Start(ctx, "LocalStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("top_k", p.TopK),
		attribute.Bool("tenant_scoped", p.TenantID != ""),
	)

	if p.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", p.TopK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	collector := NewCollector(p.TopK, p.Threshold)
	for i, vec := range s.vectors {
		if !matchesTenant(s.metadata[i], p.TenantID) {
			continue
		}
		collector.Offer(i, Cosine(vector, vec))
	}

	scored := collector.Results()
	matches := make([]Match, len(scored))
	for i, sc := range scored {
		matches[i] = Match{
			Text:     s.documents[sc.Index],
			Score:    sc.Score,
			Metadata: cloneMetadata(s.metadata[sc.Index]),
			Handle:   PositionHandle(sc.Index),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// SearchByMetadata returns records whose metadata exactly matches every
// filter entry, capped at limit.
func (s *LocalStore) SearchByMetadata(ctx context.Context, filter map[string]string, limit int) ([]Match, error) {
	_, span := localTracer.Start(ctx, "LocalStore.SearchByMetadata")
	defer span.End()

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for i, meta := range s.metadata {
		if len(matches) >= limit {
			break
		}
		if !metadataMatches(meta, filter) {
			continue
		}
		matches = append(matches, Match{
			Text:     s.documents[i],
			Metadata: cloneMetadata(meta),
			Handle:   PositionHandle(i),
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

func metadataMatches(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// Stats reports document count, dimension and snapshot file size.
func (s *LocalStore) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	total := len(s.documents)
	s.mu.RUnlock()

	stats := StoreStats{
		TotalDocuments: total,
		Dimension:      s.config.Dimension,
	}
	if info, err := os.Stat(s.config.Path); err == nil {
		stats.SnapshotSizeBytes = info.Size()
	}
	return stats, nil
}

// Persist writes the snapshot. Mutually exclusive with mutators.
func (s *LocalStore) Persist(ctx context.Context) error {
	_, span := localTracer.Start(ctx, "LocalStore.Persist")
	defer span.End()

	s.mu.RLock()
	snap := snapshot{
		Vectors:        s.vectors,
		Documents:      s.documents,
		Metadata:       s.metadata,
		EmbeddingModel: s.config.EmbeddingModel,
		Dimension:      s.config.Dimension,
		LastUpdated:    timeNow().UTC(),
	}
	err := writeSnapshot(s.config.Path, snap)
	s.mu.RUnlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("writing snapshot: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("snapshot persisted", zap.String("path", s.config.Path))
	return nil
}

// Close persists state before shutdown.
func (s *LocalStore) Close() error {
	return s.Persist(context.Background())
}

// Ensure LocalStore implements Store interface.
var _ Store = (*LocalStore)(nil)
