package llm

import (
	"fmt"
	"strings"

	"github.com/dshills/codeguard/internal/config"
)

// NewClient creates the client for one backend
func NewClient(b config.BackendConfig) (Client, error) {
	switch strings.ToLower(b.Provider) {
	case ProviderOllama:
		return NewOllamaClient(b.Model, b.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAIClient(b.Model, b.BaseURL, b.APIKey)
	case ProviderAnthropic:
		return NewAnthropicClient(b.Model, b.BaseURL, b.APIKey)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", b.Provider)
	}
}

// New builds a client from the configured backends. A single backend is
// returned as is; several are wrapped in a Chain in the given order.
// Backends that cannot be created, such as a remote provider without a
// key, are skipped as long as one remains.
func New(backends []config.BackendConfig) (Client, error) {
	var clients []Client
	var firstErr error
	for _, b := range backends {
		client, err := NewClient(b)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		clients = append(clients, client)
	}

	switch len(clients) {
	case 0:
		if firstErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoBackends, firstErr)
		}
		return nil, ErrNoBackends
	case 1:
		return clients[0], nil
	default:
		return NewChain(clients...)
	}
}
