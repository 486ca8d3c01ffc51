package transport

import "time"

// FinishReason reports why the model stopped generating.
type FinishReason string

// Normalized finish reasons.
const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolUse       FinishReason = "tool_use"
)

// Request is a provider-neutral chat completion request.
type Request struct {
	// Provider selects the adapter; empty uses the router default.
	Provider string `json:"provider"`

	// Model is the exact model identifier sent to the provider.
	Model string `json:"model"`

	SystemPrompt string  `json:"system_prompt,omitempty"`
	UserPrompt   string  `json:"user_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int64   `json:"max_tokens,omitempty"`

	// JSONMode asks the provider for a JSON object response when supported.
	JSONMode bool `json:"json_mode,omitempty"`

	// Timeout bounds a single HTTP exchange. Zero defers to ctx.
	Timeout time.Duration `json:"timeout"`

	// Metadata carries log labels such as role and stage. Never sent upstream.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Usage provides consistent usage metrics across providers.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}

// Response is a normalized chat completion.
type Response struct {
	Content            string       `json:"content"`
	Model              string       `json:"model"`
	FinishReason       FinishReason `json:"finish_reason"`
	ProviderRequestIDs []string     `json:"provider_request_ids,omitempty"`
	Usage              Usage        `json:"usage"`

	// EstimatedCostUSD is filled by the pricing middleware.
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}
