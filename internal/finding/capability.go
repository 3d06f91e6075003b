package finding

import (
	"context"

	"github.com/dshills/codeguard/internal/llm"
	"github.com/dshills/codeguard/pkg/types"
)

// Request is the input of one pass over one chunk
type Request struct {
	Pass    Pass
	Chunk   types.Chunk
	Context []types.ContextChunk
}

// Draft is a finding as reported by a capability. Offsets are 0-based line
// offsets from the chunk's first line.
type Draft struct {
	Severity      string
	Title         string
	Description   string
	StartOffset   int
	EndOffset     int
	RuleID        string
	CWEID         string
	OWASPCategory string
	Suggestion    string
	CodeSnippet   string
	FixedCode     string
	Metadata      map[string]any
}

// Capability produces draft findings for a chunk
type Capability interface {
	Generate(ctx context.Context, req Request) ([]Draft, error)
}

// CapabilityFunc adapts a function to Capability
type CapabilityFunc func(ctx context.Context, req Request) ([]Draft, error)

// Generate calls f
func (f CapabilityFunc) Generate(ctx context.Context, req Request) ([]Draft, error) {
	return f(ctx, req)
}

// LLMCapability drives a text generation backend with pass prompts
type LLMCapability struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

// NewLLMCapability creates a capability over client
func NewLLMCapability(client llm.Client, temperature float64, maxTokens int) *LLMCapability {
	return &LLMCapability{client: client, temperature: temperature, maxTokens: maxTokens}
}

// Name identifies the backing client
func (c *LLMCapability) Name() string {
	return c.client.Name()
}

// Generate prompts the backend and parses its answer
func (c *LLMCapability) Generate(ctx context.Context, req Request) ([]Draft, error) {
	resp, err := c.client.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      BuildPrompt(req.Pass, req.Chunk, req.Context),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return ParseDrafts(req.Pass, resp.Text)
}
