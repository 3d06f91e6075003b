package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx response from an embedding endpoint
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
}

// StatusCode lets retry classify rate limits and server errors
func (e *APIError) StatusCode() int {
	return e.Status
}

func newRestClient(baseURL, apiKey string, timeout time.Duration) *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return c
}

func closeRest(c *resty.Client) func() error {
	return func() error {
		c.GetClient().CloseIdleConnections()
		return nil
	}
}

// JinaProvider implements Embedder using the Jina AI API
type JinaProvider struct {
	*provider
	http *resty.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg Config, cache *Cache) (*JinaProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: jina api key not set", ErrNoProviderEnabled)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultJinaURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultJinaModel
	}

	j := &JinaProvider{http: newRestClient(baseURL, cfg.APIKey, cfg.Timeout)}
	j.provider = &provider{
		name:      ProviderJina,
		model:     model,
		dimension: JinaDimension,
		maxBatch:  MaxBatchSize,
		cache:     cache,
		policy:    cfg.Retry,
		embed:     j.callAPI,
		closeFn:   closeRest(j.http),
	}
	return j, nil
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	var out jinaResponse
	resp, err := j.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"input": texts,
			"model": model,
		}).
		SetResult(&out).
		Post("/v1/embeddings")
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderFailed, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("%w: missing embedding for text %d", ErrProviderFailed, i)
		}
	}
	return vectors, nil
}

// OllamaProvider implements Embedder using a local Ollama server. The API
// embeds one prompt per request.
type OllamaProvider struct {
	*provider
	http *resty.Client
}

// NewOllamaProvider creates a new Ollama embedder
func NewOllamaProvider(cfg Config, cache *Cache) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}

	o := &OllamaProvider{http: newRestClient(baseURL, "", cfg.Timeout)}
	o.provider = &provider{
		name:      ProviderOllama,
		model:     model,
		dimension: OllamaDimension,
		cache:     cache,
		policy:    cfg.Retry,
		embed:     o.callAPI,
		closeFn:   closeRest(o.http),
	}
	return o
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var out struct {
			Embedding []float32 `json:"embedding"`
		}
		resp, err := o.http.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{
				"model":  model,
				"prompt": text,
			}).
			SetResult(&out).
			Post("/api/embeddings")
		if err != nil {
			return nil, fmt.Errorf("api call: %w", err)
		}
		if resp.IsError() {
			return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
		}
		if len(out.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for text %d", ErrProviderFailed, i)
		}
		vectors[i] = out.Embedding
	}
	return vectors, nil
}
