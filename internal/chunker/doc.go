// Package chunker divides source files into bounded, located chunks for
// embedding and detection.
//
// Chunks follow structural boundaries where the parser recognises them
// (functions, classes, types) and fall back to fixed line windows with
// overlap everywhere else.
//
// # Basic Usage
//
//	c := chunker.New(chunker.Config{})
//	chunks, err := c.ChunkFile(file, content)
//	if err != nil {
//	    var cerr *types.ChunkingError
//	    if errors.As(err, &cerr) {
//	        // file is unparsable, record a warning and move on
//	    }
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("%s lines %d-%d (%d tokens)\n",
//	        chunk.FilePath, chunk.Location.StartLine, chunk.Location.EndLine, chunk.TokenCount)
//	}
//
// # Segmentation
//
// A file is cut into segments first:
//   - Top-level blocks reported by the parser, one segment each
//   - The code between blocks (imports, globals, the preamble)
//
// A segment that fits both WindowLines and MaxTokens becomes one chunk.
// Anything larger is split into windows of WindowLines lines, each
// overlapping the previous by OverlapLines. A window that is still over
// MaxTokens shrinks one line at a time, down to a single line.
//
// # Determinism
//
// The chunk set is a pure function of path, content and config. Chunk IDs
// derive from path and line range, so re-chunking the same file yields the
// same IDs.
//
// Token estimation uses the chars/4 heuristic in types.EstimateTokens.
package chunker
