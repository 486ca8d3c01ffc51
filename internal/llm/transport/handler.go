// Package transport defines the request pipeline for LLM completions:
// normalized request and response types, the Handler abstraction, and
// middleware composition around the HTTP core handler.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Router selects the adapter for a provider name.
type Router interface {
	Pick(provider string) (ProviderAdapter, error)
}

// ProviderAdapter translates between normalized requests and one provider's
// HTTP API.
type ProviderAdapter interface {
	Build(ctx context.Context, req *Request) (*http.Request, error)
	Parse(httpResp *http.Response) (*Response, error)
	Name() string
}

// Handler processes LLM requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps a Handler with additional behavior.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// The first middleware is outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPHandler returns the core handler that performs the HTTP exchange.
func NewHTTPHandler(client *http.Client, router Router) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpHandler{
		client: client,
		router: router,
		logger: slog.Default().With("component", "llm_transport"),
	}
}

type httpHandler struct {
	client *http.Client
	router Router
	logger *slog.Logger
}

// Handle picks the adapter, sends the request and parses the response.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	adapter, err := h.router.Pick(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider: %w", err)
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := adapter.Build(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			h.logger.Debug("response body close failed", "error", closeErr)
		}
	}()

	resp, err := adapter.Parse(httpResp)
	if err != nil {
		return nil, err
	}
	resp.Usage.LatencyMs = latency.Milliseconds()
	return resp, nil
}
