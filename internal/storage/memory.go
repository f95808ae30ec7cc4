package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStorage is an in-process vector store using brute-force cosine similarity.
// It is used for tests and for running without an external vector database.
type MemoryStorage struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	records   []*Record
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{collections: make(map[string]*memoryCollection)}
}

// CreateCollection creates an empty collection.
func (s *MemoryStorage) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	s.collections[name] = &memoryCollection{dimension: dimension}
	return nil
}

// Upsert appends records, replacing any record with the same ID.
func (s *MemoryStorage) Upsert(ctx context.Context, name string, records []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	for i, r := range records {
		if len(r.Embedding) != coll.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Embedding), coll.dimension)
		}
	}

	for _, r := range records {
		replaced := false
		for j, existing := range coll.records {
			if existing.ID == r.ID {
				coll.records[j] = r
				replaced = true
				break
			}
		}
		if !replaced {
			coll.records = append(coll.records, r)
		}
	}
	return nil
}

// Search ranks every record in the collection by cosine similarity.
// Ties keep insertion order so results are deterministic.
func (s *MemoryStorage) Search(ctx context.Context, name string, vector []float32, limit int) ([]*ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if len(vector) != coll.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), coll.dimension)
	}

	scored := make([]*ScoredRecord, 0, len(coll.records))
	for _, r := range coll.records {
		scored = append(scored, &ScoredRecord{Record: r, Score: cosineSimilarity(vector, r.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && limit < len(scored) {
		scored = scored[:limit]
	}
	return scored, nil
}

// DeleteCollection drops a collection. Missing collections are ignored.
func (s *MemoryStorage) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

// HasCollection reports whether the named collection exists.
func (s *MemoryStorage) HasCollection(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok
}

// Health always succeeds.
func (s *MemoryStorage) Health(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStorage) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
