package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(host string, port int) (*QdrantStorage, error) {
	// Create Qdrant client using gRPC
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client: client,
		host:   host,
		port:   port,
	}

	err = storage.healthCheckWithRetry(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

// newRetryBackOff returns the backoff used for health checks and upserts.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func newRetryBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

// healthCheckWithRetry performs health check with exponential backoff.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	operation := func() error {
		return s.Health(ctx)
	}
	return backoff.Retry(operation, newRetryBackOff(ctx))
}

// Health performs a single health check against Qdrant.
// Returns nil if Qdrant is healthy, error otherwise.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// CreateCollection creates a collection with cosine distance vectors of the given size
// and payload indexes for the segment metadata.
func (s *QdrantStorage) CreateCollection(ctx context.Context, name string, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx, name); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes indexes the integer metadata used for citations.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context, name string) error {
	fields := []string{
		"source_page", // Filter segments by page
		"sequence_id", // Lookup segments by position
	}

	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// DeleteCollection deletes the collection and all its points.
// Deleting a collection that does not exist is a no-op.
func (s *QdrantStorage) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}

	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, name string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}

	return backoff.Retry(operation, newRetryBackOff(ctx))
}

// Upsert stores records with embeddings in Qdrant.
// Records are batched in groups of 100 for performance.
func (s *QdrantStorage) Upsert(ctx context.Context, name string, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	dimension := len(records[0].Embedding)
	for i, r := range records {
		if len(r.Embedding) != dimension || dimension == 0 {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Embedding), dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))

		batch := records[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, r := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(r.ID),
				Vectors: qdrant.NewVectors(r.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"text":        r.Text,
					"source_page": r.SourcePage,
					"sequence_id": r.SequenceID,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, name, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// Search performs vector similarity search in the collection.
// Returns the top limit records ordered by similarity score.
func (s *QdrantStorage) Search(ctx context.Context, name string, vector []float32, limit int) ([]*ScoredRecord, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", name, err)
	}

	scored := make([]*ScoredRecord, 0, len(results))
	for _, result := range results {
		payload := result.Payload

		scored = append(scored, &ScoredRecord{
			Record: &Record{
				ID:         result.Id.GetUuid(),
				Text:       payload["text"].GetStringValue(),
				SourcePage: int(payload["source_page"].GetIntegerValue()),
				SequenceID: int(payload["sequence_id"].GetIntegerValue()),
			},
			Score: float64(result.Score),
		})
	}

	return scored, nil
}

// CountPoints returns the exact number of points stored in the collection.
func (s *QdrantStorage) CountPoints(ctx context.Context, name string) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}
