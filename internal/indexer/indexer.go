package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codeguard/internal/chunker"
	"github.com/dshills/codeguard/internal/embedder"
	"github.com/dshills/codeguard/internal/logging"
	"github.com/dshills/codeguard/internal/storage"
	"github.com/dshills/codeguard/pkg/types"
)

// ErrIndexInProgress is returned when a scan namespace is already being indexed
var ErrIndexInProgress = errors.New("indexing already in progress for scan")

// Options configures the indexing pool
type Options struct {
	Workers   int // Concurrent files, defaults to NumCPU
	BatchSize int // Texts per embedding call, defaults to embedder.MaxBatchSize
}

// Indexer chunks, embeds and stores files for a scan
type Indexer struct {
	chunker   *chunker.Chunker
	embedder  embedder.Embedder
	index     storage.VectorIndex
	workers   int
	batchSize int
	locks     namespaceLocks
	logger    zerolog.Logger
}

// IndexedFile is the outcome of indexing one file
type IndexedFile struct {
	File      types.FileDescriptor
	Chunks    []types.Chunk
	Vectors   map[string][]float32 // By chunk ID; absent for degraded chunks
	LineCount int
	Warnings  []types.Warning
	Done      bool // False when dispatch stopped before the file was picked up
}

// Degraded reports whether chunk has no stored embedding
func (f *IndexedFile) Degraded(chunkID string) bool {
	_, ok := f.Vectors[chunkID]
	return !ok
}

// Statistics tracks indexing metrics
type Statistics struct {
	FilesIndexed   int
	FilesFailed    int
	ChunksCreated  int
	ChunksEmbedded int
	ChunksDegraded int
	Duration       time.Duration
}

// New creates a new indexer
func New(c *chunker.Chunker, emb embedder.Embedder, index storage.VectorIndex, opts Options) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 || opts.BatchSize > embedder.MaxBatchSize {
		opts.BatchSize = embedder.MaxBatchSize
	}
	return &Indexer{
		chunker:   c,
		embedder:  emb,
		index:     index,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		logger:    logging.New("indexer"),
	}
}

// IndexFiles indexes files into scanID's namespace. Results are returned in
// input order; entries for files never dispatched have Done unset. The
// returned error is non-nil only when dispatch was stopped by ctx or the
// namespace is busy.
func (idx *Indexer) IndexFiles(ctx, work context.Context, scanID string, files []types.FileDescriptor) ([]*IndexedFile, *Statistics, error) {
	lock := idx.locks.get(scanID)
	if !lock.TryAcquire() {
		return nil, nil, fmt.Errorf("%w: %s", ErrIndexInProgress, scanID)
	}
	defer lock.Release()
	defer idx.locks.forget(scanID)

	start := time.Now()
	results := make([]*IndexedFile, len(files))
	for i := range files {
		results[i] = &IndexedFile{File: files[i]}
	}

	var filesIndexed, filesFailed, chunksCreated, chunksEmbedded atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(idx.workers)

	var stopErr error
	for i := range files {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		res := results[i]
		g.Go(func() error {
			idx.indexFile(work, scanID, res)
			res.Done = true
			if len(res.Warnings) > 0 && len(res.Chunks) == 0 {
				filesFailed.Add(1)
			} else {
				filesIndexed.Add(1)
			}
			chunksCreated.Add(int32(len(res.Chunks)))
			chunksEmbedded.Add(int32(len(res.Vectors)))
			return nil
		})
	}
	_ = g.Wait()

	stats := &Statistics{
		FilesIndexed:   int(filesIndexed.Load()),
		FilesFailed:    int(filesFailed.Load()),
		ChunksCreated:  int(chunksCreated.Load()),
		ChunksEmbedded: int(chunksEmbedded.Load()),
		Duration:       time.Since(start),
	}
	stats.ChunksDegraded = stats.ChunksCreated - stats.ChunksEmbedded

	idx.logger.Debug().
		Str("scan_id", scanID).
		Int("files", stats.FilesIndexed).
		Int("chunks", stats.ChunksCreated).
		Int("degraded", stats.ChunksDegraded).
		Dur("duration", stats.Duration).
		Msg("indexing finished")

	return results, stats, stopErr
}

func (idx *Indexer) indexFile(ctx context.Context, scanID string, res *IndexedFile) {
	content, err := os.ReadFile(res.File.AbsPath)
	if err != nil {
		res.Warnings = append(res.Warnings, types.Warning{
			Stage:    types.StageChunking,
			FilePath: res.File.Path,
			Message:  fmt.Sprintf("read file: %v", err),
		})
		return
	}

	text := string(content)
	res.LineCount = countLines(text)

	chunks, err := idx.chunker.ChunkFile(res.File, text)
	if err != nil {
		res.Warnings = append(res.Warnings, types.Warning{
			Stage:    types.StageChunking,
			FilePath: res.File.Path,
			Message:  err.Error(),
		})
		return
	}
	res.Chunks = chunks
	res.Vectors = make(map[string][]float32, len(chunks))

	for from := 0; from < len(chunks); from += idx.batchSize {
		to := min(from+idx.batchSize, len(chunks))
		idx.embedBatch(ctx, scanID, res, chunks[from:to])
	}
}

// embedBatch embeds and stores one batch. When the batch call fails each
// chunk is embedded on its own, so only chunks that still fail are degraded.
func (idx *Indexer) embedBatch(ctx context.Context, scanID string, res *IndexedFile, batch []types.Chunk) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Content
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err == nil && len(resp.Embeddings) != len(batch) {
		err = fmt.Errorf("%w: got %d embeddings for %d texts", embedder.ErrProviderFailed, len(resp.Embeddings), len(batch))
	}
	if err == nil {
		for i := range batch {
			idx.store(ctx, scanID, res, &batch[i], resp.Embeddings[i].Vector)
		}
		return
	}

	if len(batch) == 1 || ctx.Err() != nil {
		for i := range batch {
			res.Warnings = append(res.Warnings, degradedWarning(&batch[i], err))
		}
		return
	}

	for i := range batch {
		c := &batch[i]
		emb, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: c.Content})
		if err != nil {
			res.Warnings = append(res.Warnings, degradedWarning(c, err))
			continue
		}
		idx.store(ctx, scanID, res, c, emb.Vector)
	}
}

// store upserts one chunk vector; a failed write degrades the chunk
func (idx *Indexer) store(ctx context.Context, scanID string, res *IndexedFile, c *types.Chunk, vector []float32) {
	meta := storage.ChunkMetadata{
		FilePath:     c.FilePath,
		StartLine:    c.Location.StartLine,
		EndLine:      c.Location.EndLine,
		Language:     c.Language,
		FunctionName: c.Location.FunctionName,
		Content:      c.Content,
	}
	if err := idx.index.Upsert(ctx, scanID, c.ID, vector, meta); err != nil {
		res.Warnings = append(res.Warnings, degradedWarning(c, err))
		return
	}
	res.Vectors[c.ID] = vector
}

func degradedWarning(c *types.Chunk, err error) types.Warning {
	embErr := &types.EmbeddingError{ChunkID: c.ID, Err: err}
	return types.Warning{
		Stage:    types.StageEmbedding,
		FilePath: c.FilePath,
		ChunkID:  c.ID,
		Message:  embErr.Error(),
	}
}

// countLines counts lines the way the chunker numbers them
func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
