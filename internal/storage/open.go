package storage

import "fmt"

// Options selects and configures a vector store backend.
type Options struct {
	Backend    string
	QdrantHost string
	QdrantPort int
	SQLitePath string
}

// Open connects to the configured backend.
func Open(opts Options) (VectorStore, error) {
	switch opts.Backend {
	case BackendQdrant:
		store, err := NewQdrantStorage(opts.QdrantHost, opts.QdrantPort)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		store, err := NewSQLiteStorage(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory, "":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
