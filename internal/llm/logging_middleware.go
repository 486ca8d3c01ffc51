package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// NewLoggingMiddleware logs the lifecycle of each completion request.
// Prompt text is never logged, only its size and the request labels.
func NewLoggingMiddleware(logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			requestID := uuid.NewString()
			fields := []any{
				"request_id", requestID,
				"provider", req.Provider,
				"model", req.Model,
				"prompt_chars", len(req.SystemPrompt) + len(req.UserPrompt),
			}
			for k, v := range req.Metadata {
				fields = append(fields, k, v)
			}
			log := logger.With(fields...)
			log.DebugContext(ctx, "llm request started")

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, context.Canceled) {
					level = slog.LevelDebug
				}
				log.Log(ctx, level, "llm request failed",
					"duration_ms", duration.Milliseconds(),
					"retryable", llmerrors.IsRetryable(err),
					"error", err)
				return nil, err
			}

			log.InfoContext(ctx, "llm request completed",
				"duration_ms", duration.Milliseconds(),
				"prompt_tokens", resp.Usage.PromptTokens,
				"completion_tokens", resp.Usage.CompletionTokens,
				"finish_reason", resp.FinishReason,
				"cost_usd", resp.EstimatedCostUSD)
			return resp, nil
		})
	}
}
