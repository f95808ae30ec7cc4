package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // Import sqlite3 driver
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteStorage is an embedded vector store backed by sqlite-vec. Each
// collection is a metadata table plus a vec0 virtual table.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at dsn.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// vec0 tables are not safe to share across pooled connections of an in-memory db
	db.SetMaxOpenConns(1)

	const catalog = `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(catalog); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create collections table: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

var unsafeIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// tableNames maps a collection name onto safe SQL identifiers.
func tableNames(name string) (segments, vectors string) {
	safe := unsafeIdent.ReplaceAllString(name, "_")
	return "seg_" + safe, "vec_" + safe
}

// CreateCollection creates the metadata and vector tables for a collection.
func (s *SQLiteStorage) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, dimension)
	}
	if _, err := s.dimension(ctx, name); err == nil {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	segTable, vecTable := tableNames(name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			source_page INTEGER NOT NULL,
			sequence_id INTEGER NOT NULL
		)`, segTable),
		fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING vec0(
			id TEXT PRIMARY KEY,
			embedding FLOAT[%d] distance_metric=cosine
		)`, vecTable, dimension),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO collections (name, dimension) VALUES (?, ?)`, name, dimension); err != nil {
		return fmt.Errorf("failed to register collection %s: %w", name, err)
	}

	return tx.Commit()
}

func (s *SQLiteStorage) dimension(ctx context.Context, name string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, name).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up collection %s: %w", name, err)
	}
	return dim, nil
}

// serializeFloat32Vector converts a float32 slice to the byte format expected by sqlite-vec
func serializeFloat32Vector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(v))
	}
	return buf
}

// Upsert inserts or replaces records in a single transaction.
func (s *SQLiteStorage) Upsert(ctx context.Context, name string, records []*Record) error {
	dim, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	for i, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Embedding), dim)
		}
	}

	segTable, vecTable := tableNames(name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		upsert := fmt.Sprintf(`
			INSERT INTO %s (id, text, source_page, sequence_id)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				text = excluded.text,
				source_page = excluded.source_page,
				sequence_id = excluded.sequence_id
		`, segTable)
		if _, err := tx.ExecContext(ctx, upsert, r.ID, r.Text, r.SourcePage, r.SequenceID); err != nil {
			return fmt.Errorf("failed to upsert segment metadata: %w", err)
		}

		// vec0 doesn't support UPDATE, so delete and insert
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, vecTable), r.ID); err != nil {
			return fmt.Errorf("failed to delete old vector: %w", err)
		}
		insert := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES (?, ?)`, vecTable)
		if _, err := tx.ExecContext(ctx, insert, r.ID, serializeFloat32Vector(r.Embedding)); err != nil {
			return fmt.Errorf("failed to insert segment vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search performs KNN search with sqlite-vec. Scores are 1 - cosine distance.
func (s *SQLiteStorage) Search(ctx context.Context, name string, vector []float32, limit int) ([]*ScoredRecord, error) {
	dim, err := s.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dim)
	}

	segTable, vecTable := tableNames(name)

	// sqlite-vec requires the k parameter to be passed as part of the MATCH expression
	query := fmt.Sprintf(`
		SELECT s.id, s.text, s.source_page, s.sequence_id, v.distance
		FROM %s v
		JOIN %s s ON s.id = v.id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance, s.sequence_id
	`, vecTable, segTable)

	rows, err := s.db.QueryContext(ctx, query, serializeFloat32Vector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to perform vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*ScoredRecord
	for rows.Next() {
		r := &Record{}
		var distance float64
		if err := rows.Scan(&r.ID, &r.Text, &r.SourcePage, &r.SequenceID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		results = append(results, &ScoredRecord{Record: r, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}

// DeleteCollection drops both tables of a collection. Missing collections are ignored.
func (s *SQLiteStorage) DeleteCollection(ctx context.Context, name string) error {
	segTable, vecTable := tableNames(name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, vecTable),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, segTable),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to unregister collection %s: %w", name, err)
	}

	return tx.Commit()
}

// Health pings the database.
func (s *SQLiteStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
