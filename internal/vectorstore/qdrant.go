package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/vectord/internal/embeddings"
)

var qdrantTracer = otel.Tracer("vectord.vectorstore.qdrant")

// pointNamespace is the UUIDv5 namespace for deriving Qdrant point IDs from
// logical document ids. Deterministic derivation is what makes remote upsert
// idempotent: the same document_id always maps to the same point.
var pointNamespace = uuid.MustParse("a6e1fdfc-7d34-4f0c-9b0a-52c8e74e9d11")

// QdrantConfig holds configuration for the remote index backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address. Default: "localhost".
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port). Default: 6334.
	Port int

	// Collection is the collection holding this engine's vectors.
	// Default: "vectord".
	Collection string

	// VectorSize is the embedding dimension. Must match the chain dimension.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// QueryTimeout bounds every remote call. A timed-out search returns
	// empty results upstream rather than hanging. Default: 10s.
	QueryTimeout time.Duration

	// MaxRetries is the retry budget for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry. Default: 1s.
	RetryBackoff time.Duration

	// EmbeddingModel is stamped into payload metadata on writes.
	EmbeddingModel string
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "vectord"
	}
	if c.VectorSize == 0 {
		c.VectorSize = embeddings.DefaultDimension
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore delegates storage and filtered similarity queries to a Qdrant
// index over gRPC. Embedding and normalization happen locally before points
// are upserted; the document text travels in the payload under the reserved
// "text" key so results can be reconstructed from query responses.
//
// Concurrency is delegated to the remote service; the store holds no locks.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore creates a QdrantStore, verifies connectivity and ensures
// the collection exists with the configured vector size.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.QueryTimeout)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
	)
	return s, nil
}

// ensureCollection creates the collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	_, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// retry runs op with exponential backoff on transient gRPC failures.
func (s *QdrantStore) retry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
		err := op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// pointID derives the deterministic Qdrant point ID for a document id.
func pointID(documentID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(documentID)).String())
}

// stringValue wraps a string as a Qdrant payload value.
func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

// keywordCondition builds an exact-match payload condition.
func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// buildPayload packs text and metadata into a Qdrant payload.
func buildPayload(doc Document) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+1)
	payload[MetaText] = stringValue(doc.Text)
	for k, v := range doc.Metadata {
		payload[k] = stringValue(v)
	}
	return payload
}

// matchFromPoint unpacks a scored point into a Match.
func matchFromPoint(score float32, payload map[string]*qdrant.Value) Match {
	m := Match{Score: score, Metadata: make(map[string]string, len(payload))}
	for k, v := range payload {
		sv := v.GetStringValue()
		if k == MetaText {
			m.Text = sv
			continue
		}
		m.Metadata[k] = sv
	}
	m.Handle = IDHandle(m.Metadata[MetaDocumentID])
	return m
}

// buildTenantFilter returns the server-side filter for a tenant-scoped
// query, or nil when no tenant is supplied. The nil matters: some backends
// treat an explicit empty filter differently from no filter at all.
func buildTenantFilter(tenantID string) *qdrant.Filter {
	if tenantID == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			keywordCondition(MetaTenantID, tenantID),
		},
	}
}

// upsertDoc embeds stamping and the remote upsert shared by Add and Upsert.
func (s *QdrantStore) upsertDoc(ctx context.Context, documentID string, doc Document, update bool) error {
	if len(doc.Vector) != int(s.config.VectorSize) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(doc.Vector), s.config.VectorSize)
	}

	vec := make([]float32, len(doc.Vector))
	copy(vec, doc.Vector)
	doc.Vector = embeddings.Normalize(vec)

	doc.Metadata = cloneMetadata(doc.Metadata)
	doc.Metadata[MetaDocumentID] = documentID
	doc.Metadata[MetaCreatedAt] = timeNow().UTC().Format(time.RFC3339)
	doc.Metadata[MetaEmbeddingModel] = s.config.EmbeddingModel
	doc.Metadata[MetaTextLength] = strconv.Itoa(len(doc.Text))
	if update {
		doc.Metadata[MetaUpdatedAt] = timeNow().UTC().Format(time.RFC3339)
	}

	point := &qdrant.PointStruct{
		Id:      pointID(documentID),
		Vectors: qdrant.NewVectors(doc.Vector...),
		Payload: buildPayload(doc),
	}

	return s.retry(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
}

// Add inserts a new record keyed by a generated UUID (or the document_id
// already present in metadata) and returns its id handle.
func (s *QdrantStore) Add(ctx context.Context, doc Document) (Handle, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Add")
	defer span.End()

	documentID := doc.Metadata[MetaDocumentID]
	if documentID == "" {
		documentID = uuid.New().String()
	}
	span.SetAttributes(attribute.String("document_id", documentID))

	if err := s.upsertDoc(ctx, documentID, doc, false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Handle{Position: -1}, err
	}

	span.SetStatus(codes.Ok, "success")
	return IDHandle(documentID), nil
}

// Upsert writes the record with the given logical id. The point ID is
// derived deterministically from the id, so repeated upserts overwrite one
// point instead of accumulating duplicates.
func (s *QdrantStore) Upsert(ctx context.Context, id string, doc Document) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	if id == "" {
		return fmt.Errorf("%w: id required for upsert", ErrInvalidConfig)
	}

	if err := s.upsertDoc(ctx, id, doc, true); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Update overwrites the record addressed by handle. Numeric positions do
// not exist remotely; the handle must carry the document id.
func (s *QdrantStore) Update(ctx context.Context, h Handle, doc Document) error {
	if h.ID == "" {
		return fmt.Errorf("%w: remote records are addressed by id", ErrRecordNotFound)
	}
	return s.Upsert(ctx, h.ID, doc)
}

// Delete removes the record addressed by handle.
func (s *QdrantStore) Delete(ctx context.Context, h Handle) error {
	if h.ID == "" {
		return fmt.Errorf("%w: remote records are addressed by id", ErrRecordNotFound)
	}
	return s.DeleteByID(ctx, h.ID)
}

// DeleteByID removes the record whose payload document_id matches id.
func (s *QdrantStore) DeleteByID(ctx context.Context, id string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteByID")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	err := s.retry(ctx, "delete", func(ctx context.Context) error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							keywordCondition(MetaDocumentID, id),
						},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search issues a filtered remote query and post-filters by threshold
// client-side, since the remote backend may not support thresholds natively.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, p SearchParams) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("top_k", p.TopK),
		attribute.Bool("tenant_scoped", p.TenantID != ""),
	)

	if p.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", p.TopK)
	}

	var points []*qdrant.ScoredPoint
	err := s.retry(ctx, "search", func(ctx context.Context) error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(p.TopK)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         buildTenantFilter(p.TenantID),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches := FilterByThreshold(points, p.Threshold)

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// FilterByThreshold converts scored points to matches, dropping those
// below the similarity threshold.
func FilterByThreshold(points []*qdrant.ScoredPoint, threshold float32) []Match {
	matches := make([]Match, 0, len(points))
	for _, pt := range points {
		if pt.Score < threshold {
			continue
		}
		matches = append(matches, matchFromPoint(pt.Score, pt.Payload))
	}
	return matches
}

// SearchByMetadata scrolls the collection with an exact-match payload filter.
func (s *QdrantStore) SearchByMetadata(ctx context.Context, filter map[string]string, limit int) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.SearchByMetadata")
	defer span.End()

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var conditions []*qdrant.Condition
	for k, v := range filter {
		conditions = append(conditions, keywordCondition(k, v))
	}
	var qf *qdrant.Filter
	if len(conditions) > 0 {
		qf = &qdrant.Filter{Must: conditions}
	}

	var points []*qdrant.RetrievedPoint
	err := s.retry(ctx, "scroll", func(ctx context.Context) error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Filter:         qf,
			Limit:          qdrant.PtrOf(uint32(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scrolling collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, 0, len(points))
	for _, pt := range points {
		matches = append(matches, matchFromPoint(0, pt.Payload))
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Stats reports the remote collection's point count.
func (s *QdrantStore) Stats(ctx context.Context) (StoreStats, error) {
	stats := StoreStats{Dimension: int(s.config.VectorSize)}

	err := s.retry(ctx, "collection_info", func(ctx context.Context) error {
		info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
		if err != nil {
			return err
		}
		if info.PointsCount != nil {
			stats.TotalDocuments = int(*info.PointsCount)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("getting collection info: %w", err)
	}
	return stats, nil
}

// Persist is a no-op: the remote index owns durability.
func (s *QdrantStore) Persist(ctx context.Context) error {
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
