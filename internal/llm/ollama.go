package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OllamaClient calls a local Ollama server's generate endpoint
type OllamaClient struct {
	model string
	http  *resty.Client
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(model, baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaClient{
		model: model,
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json"),
	}
}

// Name returns the provider and model
func (c *OllamaClient) Name() string {
	return ProviderOllama + "/" + c.model
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// Generate sends a non-streaming generate request
func (c *OllamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	req = req.withDefaults()

	var out ollamaResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ollamaRequest{
			Model:  c.model,
			Prompt: req.Prompt,
			System: req.System,
			Stream: false,
			Options: ollamaOptions{
				Temperature: req.Temperature,
				NumPredict:  req.MaxTokens,
			},
		}).
		SetResult(&out).
		Post("/api/generate")
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Backend: c.Name(), Status: resp.StatusCode(), Body: resp.String()}
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, fmt.Errorf("%s: %w", c.Name(), ErrEmptyResponse)
	}

	return &Response{
		Text:         out.Response,
		Backend:      ProviderOllama,
		Model:        c.model,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}, nil
}
