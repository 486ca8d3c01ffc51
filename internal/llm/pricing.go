package llm

import (
	"context"

	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// ModelPrice holds USD rates per thousand tokens.
type ModelPrice struct {
	PromptPer1K     float64 `mapstructure:"prompt_per_1k" json:"prompt_per_1k"`
	CompletionPer1K float64 `mapstructure:"completion_per_1k" json:"completion_per_1k"`
}

// PricingTable maps model identifiers to prices. Models absent from the
// table are costed at zero.
type PricingTable map[string]ModelPrice

// Cost estimates the USD cost of usage on model.
func (p PricingTable) Cost(model string, usage transport.Usage) float64 {
	price, ok := p[model]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1000*price.PromptPer1K +
		float64(usage.CompletionTokens)/1000*price.CompletionPer1K
}

// NewPricingMiddleware stamps EstimatedCostUSD on successful responses.
func NewPricingMiddleware(table PricingTable) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			resp, err := next.Handle(ctx, req)
			if err != nil || resp == nil {
				return resp, err
			}
			model := resp.Model
			if _, ok := table[model]; !ok {
				model = req.Model
			}
			resp.EstimatedCostUSD = table.Cost(model, resp.Usage)
			return resp, nil
		})
	}
}
