// Package storage provides the vector index that backs retrieval.
//
// Every vector belongs to a scan namespace. Queries only ever see the
// namespace they name, and DeleteScan tears a namespace down in one call.
//
// Two implementations are available:
//   - MemoryIndex: nested maps behind an RWMutex, lost on exit
//   - SQLiteIndex: an embeddings table keyed by (scan_id, chunk_id)
//
// # Basic Usage
//
//	idx, err := storage.NewIndex("sqlite", "~/.cache/codeguard/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	err = idx.Upsert(ctx, scanID, chunk.ID, vector, storage.ChunkMetadata{
//	    FilePath:  chunk.FilePath,
//	    StartLine: chunk.Location.StartLine,
//	    EndLine:   chunk.Location.EndLine,
//	    Content:   chunk.Content,
//	})
//
//	matches, err := idx.Query(ctx, scanID, vector, 4)
//
// # Build Modes
//
// The SQLite driver is chosen at compile time:
//
//	go build ./...                                   # modernc.org/sqlite, Go-side ranking
//	CGO_ENABLED=1 go build -tags sqlite_vec ./...     # mattn/go-sqlite3, SQL-side ranking
//
// BuildMode and DriverName report the active choice.
//
// # Schema Migrations
//
// Schema versions are semver strings recorded in schema_version and applied
// in order on open. RollbackMigration reverts the latest one.
package storage
