package finding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeguard/internal/config"
	"github.com/dshills/codeguard/internal/llm"
	"github.com/dshills/codeguard/internal/retry"
	"github.com/dshills/codeguard/pkg/types"
)

func testChunk() types.Chunk {
	return types.Chunk{
		ID:       "c1",
		FilePath: "app/db.py",
		Language: "python",
		Location: types.Location{FilePath: "app/db.py", StartLine: 11, EndLine: 20, FunctionName: "get_user"},
		Content:  strings.Repeat("line\n", 10),
	}
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		"fenced":      "Here you go:\n```json\n{\"findings\": []}\n```\nthanks",
		"plain fence": "```\n{\"findings\": []}\n```",
		"bare":        "Sure! {\"findings\": []} Hope that helps.",
		"raw":         "{\"findings\": []}",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, `{"findings": []}`, extractJSON(in))
		})
	}
}

func TestParseDrafts(t *testing.T) {
	text := "```json\n" + `{
		"vulnerabilities": [
			{"severity": "HIGH", "title": "SQL injection", "description": "user input concatenated",
			 "start_line": 3, "end_line": "4", "cwe_id": "CWE-89", "confidence": 0.9}
		],
		"code_review": [
			{"severity": "low", "title": "Long function", "start_line": 1, "end_line": 10}
		],
		"auto_comments": [
			{"line": 2, "comment": "Builds the query string"}
		]
	}` + "\n```"

	vulns, err := ParseDrafts(PassVulnerability, text)
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	assert.Equal(t, "SQL injection", vulns[0].Title)
	assert.Equal(t, 2, vulns[0].StartOffset)
	assert.Equal(t, 3, vulns[0].EndOffset)
	assert.Equal(t, "CWE-89", vulns[0].CWEID)
	assert.Equal(t, 0.9, vulns[0].Metadata["confidence"])

	reviews, err := ParseDrafts(PassCodeReview, text)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Long function", reviews[0].Title)

	comments, err := ParseDrafts(PassAutoComment, text)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, 1, comments[0].StartOffset)
	assert.Equal(t, "Builds the query string", comments[0].Description)
	assert.Equal(t, "Builds the query string", comments[0].Title)
}

func TestParseDraftsFindingsKey(t *testing.T) {
	drafts, err := ParseDrafts(PassCodeReview, `{"findings": [{"title": "x", "start_line": 5, "end_line": 2}, {"severity": "low"}]}`)
	require.NoError(t, err)
	require.Len(t, drafts, 1, "findings without title or description are dropped")
	assert.Equal(t, 4, drafts[0].StartOffset)
	assert.Equal(t, 4, drafts[0].EndOffset, "end before start collapses to start")
}

func TestParseDraftsMalformed(t *testing.T) {
	_, err := ParseDrafts(PassVulnerability, "I could not analyze this code.")
	assert.ErrorIs(t, err, ErrMalformedOutput)

	_, err = ParseDrafts(PassVulnerability, `{"findings": [ {"title": }`)
	assert.ErrorIs(t, err, ErrMalformedOutput)

	drafts, err := ParseDrafts(PassVulnerability, `{}`)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestBuildPrompt(t *testing.T) {
	chunk := testChunk()
	chunk.Content = "query = 'SELECT'\ncursor.execute(query)\n"
	related := []types.ContextChunk{{FilePath: "app/api.py", StartLine: 1, EndLine: 5, Language: "python", Content: "get_user(id)"}}

	prompt := BuildPrompt(PassVulnerability, chunk, related)
	assert.Contains(t, prompt, "1| query = 'SELECT'")
	assert.Contains(t, prompt, "2| cursor.execute(query)")
	assert.Contains(t, prompt, "### app/api.py (lines 1-5)")
	assert.Contains(t, prompt, "get_user")
	assert.Contains(t, prompt, `"findings"`)

	comment := BuildPrompt(PassAutoComment, chunk, nil)
	assert.NotContains(t, comment, "Related Code Context")
	assert.Contains(t, comment, `"auto_comments"`)
}

func TestToFindingClampsLines(t *testing.T) {
	chunk := testChunk()

	f := ToFinding(PassVulnerability, chunk, Draft{Severity: "high", Title: "t", StartOffset: 2, EndOffset: 50}, 100)
	assert.Equal(t, 13, f.Location.StartLine)
	assert.Equal(t, 20, f.Location.EndLine, "clamped to the chunk")
	assert.Equal(t, "get_user", f.Location.FunctionName)
	assert.Equal(t, types.SeverityHigh, f.Severity)
	assert.Equal(t, types.IssueVulnerability, f.Type)
	assert.Equal(t, "c1", f.ChunkID)

	f = ToFinding(PassCodeReview, chunk, Draft{Title: "t", StartOffset: -5, EndOffset: 8}, 15)
	assert.Equal(t, 11, f.Location.StartLine)
	assert.Equal(t, 15, f.Location.EndLine, "clamped to the file")
	assert.Equal(t, types.SeverityInfo, f.Severity, "unknown severity defaults to info for reviews")

	f = ToFinding(PassVulnerability, chunk, Draft{Severity: "catastrophic", Title: "t"}, 0)
	assert.Equal(t, types.SeverityMedium, f.Severity)

	f = ToFinding(PassAutoComment, chunk, Draft{Severity: "critical", Title: "t"}, 0)
	assert.Equal(t, types.SeverityInfo, f.Severity, "comments are always info")
	assert.Equal(t, types.IssueAutoComment, f.Type)
}

func TestGeneratorRunsEnabledPasses(t *testing.T) {
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		return []Draft{{Severity: "high", Title: string(req.Pass), StartOffset: 0, EndOffset: 1}}, nil
	})

	passes := EnabledPasses(config.PassesConfig{Vulnerability: true, AutoComment: true})
	g := NewGenerator(capability, Options{Passes: passes, Retry: fastPolicy()})
	assert.Equal(t, []Pass{PassVulnerability, PassAutoComment}, g.Passes())

	outcomes := g.Run(context.Background(), testChunk(), nil, 100)
	require.Len(t, outcomes, 2)
	assert.Equal(t, PassVulnerability, outcomes[0].Pass)
	assert.Equal(t, PassAutoComment, outcomes[1].Pass)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		require.Len(t, o.Findings, 1)
		assert.Equal(t, 1, o.Attempts)
		assert.Equal(t, string(o.Pass), o.Findings[0].Title)
	}
}

func TestGeneratorNoPassesEnabled(t *testing.T) {
	var calls atomic.Int32
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		calls.Add(1)
		return nil, nil
	})

	g := NewGenerator(capability, Options{Passes: EnabledPasses(config.PassesConfig{}), Retry: fastPolicy()})
	assert.Empty(t, g.Passes())
	assert.Empty(t, g.Run(context.Background(), testChunk(), nil, 100))
	assert.Zero(t, calls.Load())

	assert.Equal(t, AllPasses, NewGenerator(capability, Options{}).Passes(), "unset passes run all")
}

func TestGeneratorRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		if calls.Add(1) == 1 {
			return nil, &llm.StatusError{Backend: "x", Status: 503}
		}
		return nil, nil
	})

	g := NewGenerator(capability, Options{Passes: []Pass{PassCodeReview}, Retry: fastPolicy()})
	outcomes := g.Run(context.Background(), testChunk(), nil, 0)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.Empty(t, outcomes[0].Findings)
}

func TestGeneratorPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		calls.Add(1)
		return nil, &llm.StatusError{Backend: "x", Status: 401}
	})

	g := NewGenerator(capability, Options{Passes: []Pass{PassVulnerability}, Retry: fastPolicy()})
	outcomes := g.Run(context.Background(), testChunk(), nil, 0)

	var genErr *types.GenerationError
	require.True(t, errors.As(outcomes[0].Err, &genErr))
	assert.Equal(t, "vulnerability", genErr.Pass)
	assert.Equal(t, "c1", genErr.ChunkID)
	assert.Equal(t, 1, genErr.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, outcomes[0].Findings)
}

func TestGeneratorMalformedRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		calls.Add(1)
		return ParseDrafts(req.Pass, "no json here")
	})

	g := NewGenerator(capability, Options{Passes: []Pass{PassVulnerability}, Retry: fastPolicy()})
	outcomes := g.Run(context.Background(), testChunk(), nil, 0)
	require.Error(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[0].Err, ErrMalformedOutput)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeneratorAttemptTimeout(t *testing.T) {
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	policy := fastPolicy()
	policy.MaxAttempts = 2
	policy.AttemptTimeout = 20 * time.Millisecond

	var observed atomic.Int32
	g := NewGenerator(capability, Options{
		Passes:   []Pass{PassVulnerability},
		Retry:    policy,
		Observer: func(Pass, time.Duration, error) { observed.Add(1) },
	})

	outcomes := g.Run(context.Background(), testChunk(), nil, 0)
	require.Error(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.Equal(t, int32(1), observed.Load())
}

func TestGeneratorBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	g := NewGenerator(capability, Options{MaxConcurrent: 2, Retry: fastPolicy()})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Run(context.Background(), testChunk(), nil, 0)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestGeneratorCancelledContext(t *testing.T) {
	capability := CapabilityFunc(func(ctx context.Context, req Request) ([]Draft, error) {
		return nil, nil
	})
	g := NewGenerator(capability, Options{MaxConcurrent: 1, Retry: fastPolicy()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, o := range g.Run(ctx, testChunk(), nil, 0) {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

type scriptedClient struct {
	reply string
	got   llm.Request
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.got = req
	return &llm.Response{Text: s.reply}, nil
}

func TestLLMCapability(t *testing.T) {
	client := &scriptedClient{reply: `{"findings":[{"severity":"critical","title":"Hardcoded secret","start_line":1}]}`}
	c := NewLLMCapability(client, 0.1, 4000)
	assert.Equal(t, "scripted", c.Name())

	drafts, err := c.Generate(context.Background(), Request{Pass: PassVulnerability, Chunk: testChunk()})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Hardcoded secret", drafts[0].Title)

	assert.Equal(t, systemPrompt, client.got.System)
	assert.Equal(t, 4000, client.got.MaxTokens)
	assert.Contains(t, client.got.Prompt, "app/db.py")
}

func TestParsePass(t *testing.T) {
	p, err := ParsePass("code_review")
	require.NoError(t, err)
	assert.Equal(t, PassCodeReview, p)

	_, err = ParsePass("style")
	assert.Error(t, err)
}
