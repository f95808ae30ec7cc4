// Package storage provides vector store backends for indexed document segments.
package storage

import "context"

// Record is one embedded segment stored in a collection.
type Record struct {
	ID         string    // UUID
	Text       string    // Segment text
	SourcePage int       // 0-based page the segment starts on
	SequenceID int       // Segment position in the document
	Embedding  []float32 // Vector for similarity search
}

// ScoredRecord is a search hit. Higher scores are more relevant.
type ScoredRecord struct {
	Record *Record
	Score  float64
}

// VectorStore is the vector storage capability used by the index adapter.
// Collections are namespaced so that each indexed document owns exactly one.
type VectorStore interface {
	// CreateCollection creates an empty collection for vectors of the given dimension.
	CreateCollection(ctx context.Context, name string, dimension int) error
	// Upsert stores records in an existing collection.
	Upsert(ctx context.Context, name string, records []*Record) error
	// Search returns up to limit records ordered by descending similarity.
	Search(ctx context.Context, name string, vector []float32, limit int) ([]*ScoredRecord, error)
	// DeleteCollection removes a collection. Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error
	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
	// Close releases the backend connection.
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendQdrant = "qdrant"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)
