// Package providers implements provider adapters for the LLM transport and
// the router that selects among them.
package providers

import (
	"fmt"

	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// Supported provider identifiers.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

// DefaultOpenRouterEndpoint is the OpenRouter OpenAI-compatible base URL.
const DefaultOpenRouterEndpoint = "https://openrouter.ai/api/v1"

// Config configures one provider adapter.
type Config struct {
	Name     string
	Endpoint string
	APIKey   string
	Headers  map[string]string
}

// NewRouter creates a router over the configured providers. defaultProvider
// serves requests that leave Provider empty.
func NewRouter(defaultProvider string, configs ...Config) (transport.Router, error) {
	adapters := make(map[string]transport.ProviderAdapter, len(configs))
	for _, cfg := range configs {
		switch cfg.Name {
		case ProviderOpenAI:
			adapters[cfg.Name] = NewOpenAIAdapter(cfg)
		case ProviderOpenRouter:
			if cfg.Endpoint == "" {
				cfg.Endpoint = DefaultOpenRouterEndpoint
			}
			adapters[cfg.Name] = NewOpenAIAdapter(cfg)
		default:
			return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, cfg.Name)
		}
	}
	if _, ok := adapters[defaultProvider]; !ok {
		return nil, fmt.Errorf("%w: default %q not configured", llmerrors.ErrUnknownProvider, defaultProvider)
	}
	return &router{adapters: adapters, defaultProvider: defaultProvider}, nil
}

type router struct {
	adapters        map[string]transport.ProviderAdapter
	defaultProvider string
}

// Pick returns the adapter for provider, or the default when provider is empty.
func (r *router) Pick(provider string) (transport.ProviderAdapter, error) {
	if provider == "" {
		provider = r.defaultProvider
	}
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}
