package finding

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dshills/codeguard/internal/logging"
	"github.com/dshills/codeguard/internal/retry"
	"github.com/dshills/codeguard/pkg/types"
)

// DefaultMaxConcurrent bounds in-flight capability calls
const DefaultMaxConcurrent = 4

// Observer is notified after every pass call, successful or not
type Observer func(pass Pass, elapsed time.Duration, err error)

// Options configures a Generator
type Options struct {
	Passes            []Pass  // nil selects AllPasses; empty runs nothing
	MaxConcurrent     int     // Concurrent capability calls across all chunks
	RequestsPerSecond float64 // 0 disables pacing
	Retry             retry.Policy
	Observer          Observer
}

// Outcome is the resolved result of one (chunk, pass) unit
type Outcome struct {
	Pass     Pass
	ChunkID  string
	Findings []types.Finding
	Attempts int
	Err      error // *types.GenerationError when the unit failed
}

// Generator runs detection passes over chunks. It is safe for concurrent
// use; concurrency and pacing limits are shared by all callers.
type Generator struct {
	capability Capability
	passes     []Pass
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	policy     retry.Policy
	observer   Observer
	logger     zerolog.Logger
}

// NewGenerator creates a generator over capability
func NewGenerator(capability Capability, opts Options) *Generator {
	if opts.Passes == nil {
		opts.Passes = AllPasses
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Retry.MaxAttempts <= 0 {
		timeout := opts.Retry.AttemptTimeout
		opts.Retry = retry.DefaultPolicy()
		if timeout > 0 {
			opts.Retry.AttemptTimeout = timeout
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Generator{
		capability: capability,
		passes:     opts.Passes,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limiter:    limiter,
		policy:     opts.Retry,
		observer:   opts.Observer,
		logger:     logging.New("finding"),
	}
}

// Passes returns the enabled passes in execution order
func (g *Generator) Passes() []Pass {
	return g.passes
}

// Run executes every enabled pass for chunk and returns one outcome per
// pass, in pass order. It never fails as a whole: failed units carry a
// GenerationError and no findings.
func (g *Generator) Run(ctx context.Context, chunk types.Chunk, related []types.ContextChunk, fileLines int) []Outcome {
	outcomes := make([]Outcome, len(g.passes))

	var wg sync.WaitGroup
	for i, pass := range g.passes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = g.runPass(ctx, pass, chunk, related, fileLines)
		}()
	}
	wg.Wait()

	return outcomes
}

func (g *Generator) runPass(ctx context.Context, pass Pass, chunk types.Chunk, related []types.ContextChunk, fileLines int) Outcome {
	out := Outcome{Pass: pass, ChunkID: chunk.ID}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		out.Err = &types.GenerationError{ChunkID: chunk.ID, Pass: string(pass), Err: err}
		return out
	}
	defer g.sem.Release(1)

	// Malformed output earns one more attempt, then fails
	policy := g.policy
	malformed := 0
	policy.Retryable = func(err error) bool {
		if errors.Is(err, ErrMalformedOutput) {
			malformed++
			return malformed == 1
		}
		return retry.IsTransient(err)
	}

	req := Request{Pass: pass, Chunk: chunk, Context: related}
	start := time.Now()
	drafts, attempts, err := retry.Do(ctx, policy, func(ctx context.Context) ([]Draft, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return g.capability.Generate(ctx, req)
	})
	elapsed := time.Since(start)
	out.Attempts = attempts

	if g.observer != nil {
		g.observer(pass, elapsed, err)
	}

	if err != nil {
		out.Err = &types.GenerationError{ChunkID: chunk.ID, Pass: string(pass), Attempts: attempts, Err: err}
		g.logger.Warn().
			Err(err).
			Str("file", chunk.FilePath).
			Str("chunk_id", chunk.ID).
			Str("pass", string(pass)).
			Int("attempts", attempts).
			Msg("pass failed")
		return out
	}

	out.Findings = make([]types.Finding, 0, len(drafts))
	for _, d := range drafts {
		out.Findings = append(out.Findings, ToFinding(pass, chunk, d, fileLines))
	}
	g.logger.Debug().
		Str("chunk_id", chunk.ID).
		Str("pass", string(pass)).
		Int("findings", len(out.Findings)).
		Dur("elapsed", elapsed).
		Msg("pass completed")
	return out
}

// ToFinding converts a draft into a located finding. Offsets become
// absolute lines clamped to the chunk and to [1, fileLines].
func ToFinding(pass Pass, chunk types.Chunk, d Draft, fileLines int) types.Finding {
	lo, hi := chunk.Location.StartLine, chunk.Location.EndLine
	if fileLines > 0 {
		hi = min(hi, fileLines)
	}
	lo = max(lo, 1)
	hi = max(hi, lo)

	start := clamp(chunk.Location.StartLine+d.StartOffset, lo, hi)
	end := clamp(chunk.Location.StartLine+d.EndOffset, lo, hi)
	if end < start {
		end = start
	}

	sev, ok := types.ParseSeverity(d.Severity)
	if !ok {
		sev = pass.DefaultSeverity()
	}
	if pass == PassAutoComment {
		sev = types.SeverityInfo
	}

	var meta map[string]any
	if len(d.Metadata) > 0 {
		meta = maps.Clone(d.Metadata)
	}

	return types.Finding{
		Type:     pass.IssueType(),
		Severity: sev,
		Title:    d.Title,
		Location: types.Location{
			FilePath:     chunk.FilePath,
			StartLine:    start,
			EndLine:      end,
			FunctionName: chunk.Location.FunctionName,
		},
		Description:   d.Description,
		RuleID:        d.RuleID,
		CWEID:         d.CWEID,
		OWASPCategory: d.OWASPCategory,
		Suggestion:    d.Suggestion,
		CodeSnippet:   d.CodeSnippet,
		FixedCode:     d.FixedCode,
		Metadata:      meta,
		ChunkID:       chunk.ID,
		Pass:          string(pass),
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
