package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/codeguard/internal/aggregator"
	"github.com/dshills/codeguard/internal/chunker"
	"github.com/dshills/codeguard/internal/config"
	"github.com/dshills/codeguard/internal/embedder"
	"github.com/dshills/codeguard/internal/finding"
	"github.com/dshills/codeguard/internal/indexer"
	"github.com/dshills/codeguard/internal/ingest"
	"github.com/dshills/codeguard/internal/llm"
	"github.com/dshills/codeguard/internal/metrics"
	"github.com/dshills/codeguard/internal/retriever"
	"github.com/dshills/codeguard/internal/retry"
	"github.com/dshills/codeguard/internal/storage"
)

// NewFromConfig wires the full pipeline from cfg. m may be nil.
func NewFromConfig(cfg *config.Config, m *metrics.Metrics) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		CacheSize: cfg.Embedding.CacheSize,
		Timeout:   cfg.Embedding.Timeout,
		Retry:     policy(cfg.Embedding.MaxAttempts, cfg.Embedding.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	index, err := storage.NewIndex(cfg.Index.Backend, cfg.Index.Path)
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	client, err := llm.New(cfg.Generator.Backends)
	if err != nil {
		_ = index.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("create generation backend: %w", err)
	}

	generator := finding.NewGenerator(
		finding.NewLLMCapability(client, cfg.Generator.Temperature, cfg.Generator.MaxTokens),
		finding.Options{
			Passes:            finding.EnabledPasses(cfg.Generator.Passes),
			MaxConcurrent:     cfg.Generator.MaxConcurrent,
			RequestsPerSecond: cfg.Generator.RequestsPerSecond,
			Retry:             policy(cfg.Generator.MaxAttempts, cfg.Generator.Timeout),
			Observer: func(_ finding.Pass, elapsed time.Duration, _ error) {
				m.ObserveCapability("generation", elapsed)
			},
		},
	)

	deps := Dependencies{
		Ingestor: ingest.New(ingest.Config{
			WorkDir:      cfg.Ingest.WorkDir,
			MaxFileSize:  int64(cfg.Ingest.MaxFileSizeMB) << 20,
			CloneTimeout: cfg.Ingest.CloneTimeout,
			GitToken:     cfg.Ingest.GitToken,
			IgnoreDirs:   cfg.Ingest.IgnoreDirs,
		}),
		Indexer: indexer.New(
			chunker.New(chunker.Config{
				WindowLines:  cfg.Chunker.WindowLines,
				OverlapLines: cfg.Chunker.OverlapLines,
				MaxTokens:    cfg.Chunker.MaxTokens,
			}),
			emb, index,
			indexer.Options{Workers: cfg.Scan.Workers},
		),
		Index: index,
		Retriever: retriever.New(index, emb, retriever.Options{
			TopK:     cfg.Retriever.TopK,
			MinScore: cfg.Retriever.MinScore,
		}),
		Generator: generator,
		Metrics:   m,
	}

	c := New(deps, Options{
		Workers:            cfg.Scan.Workers,
		MaxFailureFraction: cfg.Scan.MaxFailureFraction,
		MaxDuration:        cfg.Scan.MaxDuration,
		Aggregator: aggregator.Config{
			OverlapFraction: cfg.Aggregator.OverlapFraction,
			TitleSimilarity: cfg.Aggregator.TitleSimilarity,
		},
	})
	c.closers = []func() error{index.Close, emb.Close}

	c.logger.Info().
		Str("embedder", emb.Provider()).
		Str("embedding_model", emb.Model()).
		Str("index", cfg.Index.Backend).
		Str("backend", client.Name()).
		Int("passes", len(generator.Passes())).
		Msg("scan pipeline ready")
	return c, nil
}

func policy(attempts int, timeout time.Duration) retry.Policy {
	p := retry.DefaultPolicy()
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	if timeout > 0 {
		p.AttemptTimeout = timeout
	}
	return p
}

// Close releases the index and embedder opened by NewFromConfig. Call it
// after Shutdown.
func (c *Controller) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
