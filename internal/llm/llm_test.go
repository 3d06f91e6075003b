package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeguard/internal/config"
	"github.com/dshills/codeguard/internal/retry"
)

func TestOllamaGenerate(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","response":"{\"findings\":[]}","done":true,"eval_count":7}`))
	}))
	defer srv.Close()

	c := NewOllamaClient("m", srv.URL)
	resp, err := c.Generate(context.Background(), Request{Prompt: "scan this"})
	require.NoError(t, err)

	assert.Equal(t, `{"findings":[]}`, resp.Text)
	assert.Equal(t, 7, resp.OutputTokens)
	assert.Equal(t, "ollama/m", c.Name())

	assert.False(t, got.Stream)
	assert.Equal(t, "scan this", got.Prompt)
	assert.Equal(t, DefaultTemperature, got.Options.Temperature)
	assert.Equal(t, DefaultMaxTokens, got.Options.NumPredict)
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaClient("m", srv.URL).Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode())
	assert.True(t, retry.IsTransient(err))
}

func TestOllamaEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","response":"  ","done":true}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClient("m", srv.URL).Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Len(t, body["messages"], 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-test",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "ok"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("gpt-test", srv.URL+"/v1/", "key")
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), Request{System: "sys", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, ProviderOpenAI, resp.Backend)
	assert.Equal(t, 5, resp.InputTokens)
}

func TestOpenAIRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("gpt-test", srv.URL+"/v1/", "key")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{Prompt: "p"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Status)
	assert.True(t, retry.IsTransient(err))
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("claude-test", srv.URL, "key")
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), Request{System: "sys", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 2, resp.OutputTokens)
}

func TestRemoteClientsRequireKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = NewAnthropicClient("", "", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

type stubClient struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Generate(ctx context.Context, req Request) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Text: s.text, Backend: s.name}, nil
}

func TestChainFallsBack(t *testing.T) {
	primary := &stubClient{name: "primary", err: &StatusError{Backend: "primary", Status: 503}}
	fallback := &stubClient{name: "fallback", text: "done"}
	unused := &stubClient{name: "unused", text: "never"}

	chain, err := NewChain(primary, fallback, unused)
	require.NoError(t, err)

	resp, err := chain.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, unused.calls)
	assert.Equal(t, "primary,fallback,unused", chain.Name())
}

func TestChainAllFail(t *testing.T) {
	a := &stubClient{name: "a", err: &StatusError{Backend: "a", Status: 503}}
	b := &stubClient{name: "b", err: errors.New("connection refused")}

	chain, err := NewChain(a, b)
	require.NoError(t, err)

	_, err = chain.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, retry.IsTransient(err))

	_, err = NewChain()
	assert.ErrorIs(t, err, ErrNoBackends)
}

func TestNewFromConfig(t *testing.T) {
	client, err := New([]config.BackendConfig{{Provider: "ollama", Model: "m"}})
	require.NoError(t, err)
	assert.Equal(t, "ollama/m", client.Name())

	client, err = New([]config.BackendConfig{
		{Provider: "ollama", Model: "a"},
		{Provider: "openai"}, // No key, skipped
		{Provider: "ollama", Model: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ollama/a,ollama/b", client.Name())

	_, err = New([]config.BackendConfig{{Provider: "anthropic"}})
	assert.ErrorIs(t, err, ErrNoBackends)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrNoBackends)

	_, err = NewClient(config.BackendConfig{Provider: "bogus"})
	assert.Error(t, err)
}
