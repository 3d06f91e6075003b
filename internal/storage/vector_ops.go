package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

const matchColumns = `chunk_id, file_path, start_line, end_line, COALESCE(language, ''), COALESCE(function_name, ''), COALESCE(content, '')`

// searchVector ranks the scan's vectors against queryVector
func searchVector(ctx context.Context, db *sql.DB, scanID string, queryVector []float32, limit int) ([]Match, error) {
	// Use SQL-side ranking when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, scanID, queryVector, limit)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, scanID, queryVector, limit)
}

// searchVectorOptimized uses the sqlite-vec extension for SQL-based similarity
func searchVectorOptimized(ctx context.Context, db *sql.DB, scanID string, queryVector []float32, limit int) ([]Match, error) {
	// vec_distance_cosine returns distance (lower is better), converted to similarity
	query := `
		SELECT ` + matchColumns + `,
			1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM embeddings
		WHERE scan_id = ? AND dimension = ?
		ORDER BY similarity DESC, chunk_id ASC
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, serializeVector(queryVector), scanID, len(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var m Match
		md := &m.Metadata
		if err := rows.Scan(&m.ChunkID, &md.FilePath, &md.StartLine, &md.EndLine, &md.Language, &md.FunctionName, &md.Content, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// searchVectorFallback loads the namespace and ranks it in Go
func searchVectorFallback(ctx context.Context, db *sql.DB, scanID string, queryVector []float32, limit int) ([]Match, error) {
	query := `SELECT ` + matchColumns + `, vector FROM embeddings WHERE scan_id = ? AND dimension = ?`
	rows, err := db.QueryContext(ctx, query, scanID, len(queryVector))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildMatches(candidates, limit), nil
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var c candidate
		var vectorBlob []byte
		md := &c.meta
		if err := rows.Scan(&c.chunkID, &md.FilePath, &md.StartLine, &md.EndLine, &md.Language, &md.FunctionName, &md.Content, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}
		c.score = cosineSimilarity(queryVector, vector)
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunkID string
	score   float64
	meta    ChunkMetadata
}

// sortCandidates orders by descending score, then ascending chunk ID
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// buildMatches returns the first limit candidates as matches
func buildMatches(candidates []candidate, limit int) []Match {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	matches := make([]Match, limit)
	for i := 0; i < limit; i++ {
		matches[i] = Match{
			ChunkID:  candidates[i].chunkID,
			Score:    candidates[i].score,
			Metadata: candidates[i].meta,
		}
	}
	return matches
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarity is the similarity measure used by every index
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
