package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrUnknownBackend     = errors.New("unknown vector store backend")
)
