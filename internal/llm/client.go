// Package llm provides text generation backends used by the finding passes.
//
// Every backend implements Client. Backends make a single attempt per call;
// retry and pacing belong to the caller. Errors carrying an HTTP status are
// returned as *StatusError so the retry policy can classify them.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Provider names
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Generation defaults
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4000

	DefaultOllamaURL      = "http://localhost:11434"
	DefaultOllamaModel    = "codellama:34b-instruct"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-sonnet-4-5"
)

// Common errors
var (
	ErrNoBackends    = errors.New("no generation backend configured")
	ErrEmptyResponse = errors.New("backend returned an empty response")
	ErrMissingAPIKey = errors.New("api key not set")
)

// Request is one generation call
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

func (r Request) withDefaults() Request {
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// Response is the generated text and the backend that produced it
type Response struct {
	Text         string
	Backend      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client generates text from a prompt
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend and model, e.g. "ollama/codellama"
	Name() string
}

// StatusError is a non-2xx response from a backend
type StatusError struct {
	Backend string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Backend, e.Status, e.Body)
}

// StatusCode lets retry classify rate limits and server errors
func (e *StatusError) StatusCode() int {
	return e.Status
}
