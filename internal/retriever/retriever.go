// Package retriever finds chunks related to the chunk under analysis within
// the same scan namespace.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/codeguard/internal/embedder"
	"github.com/dshills/codeguard/internal/storage"
	"github.com/dshills/codeguard/pkg/types"
)

const (
	// DefaultTopK is the number of context chunks returned per query
	DefaultTopK = 3

	// overlapSlack is how many extra matches are requested to make up for
	// same-file overlapping windows that are dropped
	overlapSlack = 2
)

// ErrIndexNotInitialized is returned when the retriever has no index
var ErrIndexNotInitialized = errors.New("vector index not initialized")

// Options configures retrieval
type Options struct {
	TopK     int     // Zero disables retrieval
	MinScore float64 // Matches scoring below this are dropped
}

// DefaultOptions returns the default retrieval settings
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK}
}

// Retriever queries the vector index for context chunks
type Retriever struct {
	index    storage.VectorIndex
	embedder embedder.Embedder
	topK     int
	minScore float64
}

// New creates a new Retriever. emb may be nil, in which case a chunk
// without a vector gets no context.
func New(index storage.VectorIndex, emb embedder.Embedder, opts Options) *Retriever {
	if opts.TopK < 0 {
		opts.TopK = 0
	}
	return &Retriever{
		index:    index,
		embedder: emb,
		topK:     opts.TopK,
		minScore: opts.MinScore,
	}
}

// TopK returns the configured context size
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve returns up to TopK chunks related to chunk, excluding the chunk
// itself and same-file chunks overlapping it. vector is the chunk's stored
// embedding; when nil the chunk is embedded on demand.
func (r *Retriever) Retrieve(ctx context.Context, scanID string, chunk types.Chunk, vector []float32) ([]types.ContextChunk, error) {
	if r.index == nil {
		return nil, ErrIndexNotInitialized
	}
	if r.topK == 0 {
		return nil, nil
	}

	if len(vector) == 0 {
		if r.embedder == nil {
			return nil, nil
		}
		emb, err := r.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: chunk.Content})
		if err != nil {
			return nil, fmt.Errorf("failed to generate query embedding: %w", err)
		}
		vector = emb.Vector
	}

	matches, err := r.index.Query(ctx, scanID, vector, r.topK+1+overlapSlack)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]types.ContextChunk, 0, r.topK)
	for _, m := range matches {
		if len(results) == r.topK {
			break
		}
		if m.ChunkID == chunk.ID || m.Score < r.minScore {
			continue
		}
		loc := types.Location{FilePath: m.Metadata.FilePath, StartLine: m.Metadata.StartLine, EndLine: m.Metadata.EndLine}
		if chunk.Location.Overlap(loc) > 0 {
			continue
		}
		results = append(results, types.ContextChunk{
			ChunkID:      m.ChunkID,
			FilePath:     m.Metadata.FilePath,
			StartLine:    m.Metadata.StartLine,
			EndLine:      m.Metadata.EndLine,
			Language:     m.Metadata.Language,
			FunctionName: m.Metadata.FunctionName,
			Content:      m.Metadata.Content,
			Score:        m.Score,
		})
	}
	return results, nil
}
