// Package embedder generates vector embeddings for code chunks.
//
// Four providers are available:
//   - local: offline feature hashing, 384 dimensions, no network
//   - openai: the OpenAI embeddings API or any compatible server
//   - jina: the Jina AI REST API
//   - ollama: a local Ollama server
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{chunk1.Content, chunk2.Content},
//	})
//
// # Caching
//
// Every provider consults an optional LRU cache keyed by provider, model and
// content hash before calling out. Cached vectors are deep-copied on the way
// in and on the way out, so callers may mutate what they receive.
//
// # Error Handling
//
// Remote calls run under a retry.Policy. Rate limits, server errors and
// timeouts are retried with exponential backoff; other client errors fail
// immediately. Exhausting the policy returns an error wrapping
// ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // degrade: continue without retrieved context
//	}
package embedder
