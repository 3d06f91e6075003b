package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteIndex implements VectorIndex on a single SQLite database. Vectors are
// stored as little-endian float32 blobs keyed by (scan_id, chunk_id).
type SQLiteIndex struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection serialises writers and keeps :memory: databases
	// alive for the life of the pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteIndex opens or creates the index database at dbPath
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, scanID, chunkID string, vector []float32, meta ChunkMetadata) error {
	if err := validateVector(vector); err != nil {
		return err
	}

	query := `
		INSERT INTO embeddings (scan_id, chunk_id, vector, dimension, file_path, start_line, end_line, language, function_name, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			file_path = excluded.file_path,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			language = excluded.language,
			function_name = excluded.function_name,
			content = excluded.content,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query,
		scanID, chunkID, serializeVector(vector), len(vector),
		meta.FilePath, meta.StartLine, meta.EndLine, meta.Language, meta.FunctionName, meta.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Query(ctx context.Context, scanID string, vector []float32, k int) ([]Match, error) {
	if err := validateVector(vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	return searchVector(ctx, s.db, scanID, vector, k)
}

func (s *SQLiteIndex) Count(ctx context.Context, scanID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE scan_id = ?", scanID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

func (s *SQLiteIndex) DeleteScan(ctx context.Context, scanID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE scan_id = ?", scanID); err != nil {
		return fmt.Errorf("failed to delete scan %s: %w", scanID, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
