// Package vectorstore implements domain.VectorStoreClient on Qdrant and on
// PostgreSQL with pgvector.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/rag-server/internal/domain"
)

// vectorName is the named vector chunks are stored under.
const vectorName = "content"

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
	Distance   string // cosine, dot, euclid
}

// QdrantStore wraps the Qdrant client with connection management and health checks.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	distance   qdrant.Distance
	metric     domain.Metric
}

// NewQdrantStore connects over gRPC and fails fast if Qdrant stays
// unreachable through the startup health-check retries.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	distance, metric, err := qdrantDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		distance:   distance,
		metric:     metric,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return s, nil
}

// qdrantDistance maps a config name to the Qdrant distance and the metric
// its scores are reported in. Qdrant reports euclid as a raw distance.
func qdrantDistance(name string) (qdrant.Distance, domain.Metric, error) {
	switch name {
	case "", "cosine":
		return qdrant.Distance_Cosine, domain.MetricCosineSimilarity, nil
	case "dot":
		return qdrant.Distance_Dot, domain.MetricDotProduct, nil
	case "euclid":
		return qdrant.Distance_Euclid, domain.MetricEuclideanDistance, nil
	}
	return 0, "", fmt.Errorf("%w: %q", ErrUnknownDistance, name)
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Metric reports the score metric Search returns.
func (s *QdrantStore) Metric() domain.Metric {
	return s.metric
}

// EnsureCollection creates the collection and its payload indexes if missing.
// Idempotent - safe to call multiple times.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: s.distance,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return s.createPayloadIndexes(ctx)
}

// createPayloadIndexes indexes the fields chunks are filtered by.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	for _, field := range []string{"document_id", "source_name", "job_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Upsert writes one chunk vector. Chunk ids are UUIDs, so re-ingesting a
// document overwrites its previous points.
func (s *QdrantStore) Upsert(ctx context.Context, chunkID string, vector []float32, meta domain.ChunkMetadata) error {
	if len(vector) != s.dimension {
		return domain.Invalid("vector", "%v: got %d dimensions, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	point := &qdrant.PointStruct{
		Id: qdrant.NewIDUUID(chunkID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
			vectorName: qdrant.NewVector(vector...),
		}),
		Payload: qdrant.NewValueMap(map[string]any{
			"document_id":    meta.DocumentID,
			"source_name":    meta.SourceName,
			"format":         string(meta.Format),
			"job_id":         meta.JobID,
			"sequence_index": meta.SequenceIndex,
			"text":           meta.Text,
			"header_path":    meta.HeaderPath,
			"start_offset":   meta.Offsets.Start,
			"end_offset":     meta.Offsets.End,
			"indexed_at":     meta.IndexedAt.UTC().Format(time.RFC3339),
		}),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", chunkID, err)
	}
	return nil
}

// Search returns the k nearest chunks with scores in s.Metric().
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	if len(vector) != s.dimension {
		return nil, domain.Invalid("vector", "%v: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          &using,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, domain.SearchHit{
			ChunkID:  r.Id.GetUuid(),
			Score:    float64(r.Score),
			Metric:   s.metric,
			Metadata: metadataFromPayload(r.Payload),
		})
	}
	return hits, nil
}

func metadataFromPayload(p map[string]*qdrant.Value) domain.ChunkMetadata {
	indexedAt, err := time.Parse(time.RFC3339, p["indexed_at"].GetStringValue())
	if err != nil {
		indexedAt = time.Time{}
	}
	return domain.ChunkMetadata{
		DocumentID:    p["document_id"].GetStringValue(),
		SourceName:    p["source_name"].GetStringValue(),
		Format:        domain.Format(p["format"].GetStringValue()),
		JobID:         p["job_id"].GetStringValue(),
		SequenceIndex: int(p["sequence_index"].GetIntegerValue()),
		Text:          p["text"].GetStringValue(),
		HeaderPath:    p["header_path"].GetStringValue(),
		Offsets: domain.Offsets{
			Start: int(p["start_offset"].GetIntegerValue()),
			End:   int(p["end_offset"].GetIntegerValue()),
		},
		IndexedAt: indexedAt,
	}
}

// DeleteDocument removes every chunk of a document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
