// Package indexer runs the indexing phase of a scan: every admitted file is
// read, chunked, embedded and written into the scan's vector namespace.
//
// # Basic Usage
//
//	idx := indexer.New(chunker, embedder, index, indexer.Options{Workers: 4})
//
//	files, stats, err := idx.IndexFiles(ctx, ctx, scanID, source.Files)
//
// Files are processed by a bounded worker pool. Failures are local: a file
// that cannot be chunked is kept with zero chunks, and a chunk whose
// embedding fails is kept as Degraded so detection can still run on it
// without retrieved context.
//
// # Cancellation
//
// IndexFiles takes two contexts. The dispatch context stops new files from
// being picked up; the work context bounds the calls already in flight.
// Passing the same context for both gives the usual behaviour.
package indexer
