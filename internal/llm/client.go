// Package llm provides the completion boundary used by auditors and the
// alignment validator: a provider-routed HTTP client wrapped in logging,
// rate limiting and cost accounting middleware.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/providers"
	"github.com/ErikCohenDev/consensus-council/internal/llm/ratelimit"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// Completer is the external completion function. Any transport or
// provider failure surfaces as an error.
type Completer interface {
	Complete(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req *transport.Request) (*transport.Response, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return f(ctx, req)
}

// ErrEmptyCompletion is returned when the provider answers with no content.
var ErrEmptyCompletion = errors.New("empty completion content")

// Config assembles a Client.
type Config struct {
	// DefaultProvider serves requests with an empty Provider.
	DefaultProvider string
	Providers       []providers.Config
	RateLimit       ratelimit.Config
	Pricing         PricingTable
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client sends completions through the middleware chain.
type Client struct {
	handler transport.Handler
}

// NewClient builds the provider router and wraps the HTTP core handler as
// logging -> rate limit -> pricing -> HTTP.
func NewClient(cfg Config) (*Client, error) {
	router, err := providers.NewRouter(cfg.DefaultProvider, cfg.Providers...)
	if err != nil {
		return nil, fmt.Errorf("build provider router: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "llm")
	}

	core := transport.NewHTTPHandler(cfg.HTTPClient, router)
	return NewClientWithHandler(core,
		NewLoggingMiddleware(logger),
		ratelimit.New(cfg.RateLimit).Middleware(),
		NewPricingMiddleware(cfg.Pricing),
	), nil
}

// NewClientWithHandler wraps an arbitrary core handler, mainly for tests.
func NewClientWithHandler(core transport.Handler, middlewares ...transport.Middleware) *Client {
	return &Client{handler: transport.Chain(core, middlewares...)}
}

// Complete sends req and rejects blank completions.
func (c *Client) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", llmerrors.ErrInvalidResponse)
	}
	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, ErrEmptyCompletion
	}
	return resp, nil
}
