// Package index embeds document segments into a vector store and retrieves
// them for questions.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/storage"
)

// DefaultCollectionPrefix names collections when no prefix is configured.
const DefaultCollectionPrefix = "local-rag"

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Collection is the handle to one document's indexed segments.
type Collection struct {
	name      string
	segments  int
	dimension int
	createdAt time.Time

	mu        sync.Mutex
	destroyed bool
}

// Name returns the vector store collection name.
func (c *Collection) Name() string { return c.name }

// Segments returns the number of indexed segments.
func (c *Collection) Segments() int { return c.segments }

// Dimension returns the embedding dimension.
func (c *Collection) Dimension() int { return c.dimension }

// CreatedAt returns when the collection was built.
func (c *Collection) CreatedAt() time.Time { return c.createdAt }

// Destroyed reports whether the collection has been torn down.
func (c *Collection) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Hit is one retrieved segment with its 1-based relevance rank.
type Hit struct {
	Segment chunker.Segment
	Rank    int
	Score   float64
}

// Result is an ordered retrieval result, most relevant first.
type Result []Hit

// Segments returns the segments of the result in rank order.
func (r Result) Segments() []chunker.Segment {
	out := make([]chunker.Segment, len(r))
	for i, h := range r {
		out[i] = h.Segment
	}
	return out
}

// Adapter builds, queries and destroys collections.
type Adapter struct {
	embedder Embedder
	store    storage.VectorStore
	prefix   string
	logger   *slog.Logger
}

// NewAdapter creates an index adapter. An empty prefix selects DefaultCollectionPrefix.
func NewAdapter(embedder Embedder, store storage.VectorStore, prefix string, logger *slog.Logger) *Adapter {
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		embedder: embedder,
		store:    store,
		prefix:   prefix,
		logger:   logger,
	}
}

// Build embeds every segment and stores it in a fresh, uniquely named collection.
// The build is all-or-nothing: any failure deletes the partial collection and
// returns ErrIndexBuild.
func (a *Adapter) Build(ctx context.Context, segments []chunker.Segment) (*Collection, error) {
	start := time.Now()

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: document has no text to index", ErrIndexBuild)
	}

	// 1. Validate segment text
	texts := make([]string, len(segments))
	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", ErrIndexBuild, seg.SequenceID)
		}
		texts[i] = seg.Text
	}

	// 2. Generate embeddings for all segments
	embeddings, err := a.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings: %v", ErrIndexBuild, err)
	}
	if len(embeddings) != len(segments) || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: got %d embeddings for %d segments", ErrIndexBuild, len(embeddings), len(segments))
	}

	// 3. Create the collection
	coll := &Collection{
		name:      fmt.Sprintf("%s-%s", a.prefix, uuid.New().String()),
		segments:  len(segments),
		dimension: len(embeddings[0]),
	}
	if err := a.store.CreateCollection(ctx, coll.name, coll.dimension); err != nil {
		// the store may have created the collection before failing
		if derr := a.Destroy(context.WithoutCancel(ctx), coll); derr != nil {
			a.logger.Warn("Failed to remove partial collection", "collection", coll.name, "error", derr)
		}
		return nil, fmt.Errorf("%w: create collection: %v", ErrIndexBuild, err)
	}

	// 4. Store records
	records := make([]*storage.Record, len(segments))
	for i, seg := range segments {
		records[i] = &storage.Record{
			ID:         uuid.New().String(),
			Text:       seg.Text,
			SourcePage: seg.SourcePage,
			SequenceID: seg.SequenceID,
			Embedding:  embeddings[i],
		}
	}
	if err := a.store.Upsert(ctx, coll.name, records); err != nil {
		if derr := a.Destroy(context.WithoutCancel(ctx), coll); derr != nil {
			a.logger.Warn("Failed to remove partial collection", "collection", coll.name, "error", derr)
		}
		return nil, fmt.Errorf("%w: store segments: %v", ErrIndexBuild, err)
	}

	coll.createdAt = time.Now()
	a.logger.Info("Indexed document",
		"collection", coll.name,
		"segments", coll.segments,
		"dimension", coll.dimension,
		"duration", time.Since(start),
	)
	return coll, nil
}

// Query returns up to k segments ranked by relevance to question.
// On failure it returns an empty result together with ErrRetrieval.
func (a *Adapter) Query(ctx context.Context, coll *Collection, question string, k int) (Result, error) {
	if coll == nil || coll.Destroyed() {
		return Result{}, fmt.Errorf("%w: no active collection", ErrRetrieval)
	}
	if k <= 0 {
		return Result{}, fmt.Errorf("%w: k must be positive, got %d", ErrRetrieval, k)
	}

	embeddings, err := a.embedder.GenerateEmbeddings(ctx, []string{question})
	if err != nil {
		return Result{}, fmt.Errorf("%w: embed question: %v", ErrRetrieval, err)
	}
	if len(embeddings) != 1 {
		return Result{}, fmt.Errorf("%w: embed question: got %d vectors", ErrRetrieval, len(embeddings))
	}

	scored, err := a.store.Search(ctx, coll.name, embeddings[0], k)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	result := make(Result, 0, min(k, len(scored)))
	for i, s := range scored {
		if i >= k {
			break
		}
		result = append(result, Hit{
			Segment: chunker.Segment{
				Text:       s.Record.Text,
				SourcePage: s.Record.SourcePage,
				SequenceID: s.Record.SequenceID,
			},
			Rank:  i + 1,
			Score: s.Score,
		})
	}

	a.logger.Debug("Retrieved segments", "collection", coll.name, "k", k, "hits", len(result))
	return result, nil
}

// Destroy releases the collection's storage. It is safe to call on nil,
// already destroyed, or partially built collections.
func (a *Adapter) Destroy(ctx context.Context, coll *Collection) error {
	if coll == nil {
		return nil
	}

	coll.mu.Lock()
	defer coll.mu.Unlock()
	if coll.destroyed {
		return nil
	}

	if err := a.store.DeleteCollection(ctx, coll.name); err != nil {
		return fmt.Errorf("delete collection %s: %w", coll.name, err)
	}
	coll.destroyed = true
	a.logger.Info("Vector database collection deleted", "collection", coll.name)
	return nil
}

// Health reports whether the underlying vector store is reachable.
func (a *Adapter) Health(ctx context.Context) error {
	return a.store.Health(ctx)
}
