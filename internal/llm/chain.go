package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dshills/codeguard/internal/logging"
)

// Chain tries its clients in order and returns the first success
type Chain struct {
	clients []Client
	logger  zerolog.Logger
}

// NewChain creates a fallback chain. At least one client is required.
func NewChain(clients ...Client) (*Chain, error) {
	if len(clients) == 0 {
		return nil, ErrNoBackends
	}
	return &Chain{clients: clients, logger: logging.New("llm")}, nil
}

// Name lists the chained backends
func (c *Chain) Name() string {
	names := make([]string, len(c.clients))
	for i, client := range c.clients {
		names[i] = client.Name()
	}
	return strings.Join(names, ",")
}

// Generate calls each client until one succeeds. When all fail the errors
// are joined so retry classification sees every cause.
func (c *Chain) Generate(ctx context.Context, req Request) (*Response, error) {
	var errs []error
	for _, client := range c.clients {
		resp, err := client.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("backend", client.Name()).Msg("generation backend failed, trying next")
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("all generation backends failed: %w", errors.Join(errs...))
}
