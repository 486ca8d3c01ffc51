package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// DefaultOpenAIEndpoint is the OpenAI production API base URL.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1"

// maxErrorBody caps how much of an error body is copied into messages.
const maxErrorBody = 2048

// OpenAIAdapter implements ProviderAdapter for the chat/completions API.
// Any OpenAI-compatible gateway, including OpenRouter, works by pointing
// Endpoint at it.
type OpenAIAdapter struct {
	config Config
}

// NewOpenAIAdapter creates an adapter, defaulting the endpoint to OpenAI.
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOpenAIEndpoint
	}
	if cfg.Name == "" {
		cfg.Name = ProviderOpenAI
	}
	return &OpenAIAdapter{config: cfg}
}

// Name returns the provider name used for routing.
func (a *OpenAIAdapter) Name() string { return a.config.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int64         `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

// Build constructs the chat/completions HTTP request.
func (a *OpenAIAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	if a.config.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrMissingAPIKey, a.config.Name)
	}

	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.UserPrompt})
	if req.JSONMode {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := a.config.Endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// Parse extracts the first choice and usage from a chat/completions response.
func (a *OpenAIAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &llmerrors.ProviderError{
			Provider: a.config.Name,
			Message:  fmt.Sprintf("failed to read response: %v", err),
			Type:     llmerrors.ErrorTypeNetwork,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.parseError(httpResp, body)
	}

	var resp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			TotalTokens      int64 `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", llmerrors.ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", llmerrors.ErrInvalidResponse)
	}

	var requestIDs []string
	if reqID := httpResp.Header.Get("x-request-id"); reqID != "" {
		requestIDs = append(requestIDs, reqID)
	} else if resp.ID != "" {
		requestIDs = append(requestIDs, resp.ID)
	}

	total := resp.Usage.TotalTokens
	if total == 0 {
		total = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}

	return &transport.Response{
		Content:            resp.Choices[0].Message.Content,
		Model:              resp.Model,
		FinishReason:       mapFinishReason(resp.Choices[0].FinishReason),
		ProviderRequestIDs: requestIDs,
		Usage: transport.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      total,
		},
	}, nil
}

func mapFinishReason(reason string) transport.FinishReason {
	switch reason {
	case "length":
		return transport.FinishLength
	case "content_filter":
		return transport.FinishContentFilter
	case "tool_calls", "function_call":
		return transport.FinishToolUse
	default:
		return transport.FinishStop
	}
}

// parseError converts an error response to ProviderError.
func (a *OpenAIAdapter) parseError(httpResp *http.Response, body []byte) error {
	retryAfter, _ := strconv.Atoi(httpResp.Header.Get("Retry-After"))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		code := ""
		if errResp.Error.Code != nil {
			code = fmt.Sprint(errResp.Error.Code)
		}
		return &llmerrors.ProviderError{
			Provider:   a.config.Name,
			StatusCode: httpResp.StatusCode,
			Message:    errResp.Error.Message,
			Code:       code,
			Type:       classifyErrorType(httpResp.StatusCode, code+" "+errResp.Error.Type),
			RetryAfter: retryAfter,
		}
	}

	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &llmerrors.ProviderError{
		Provider:   a.config.Name,
		StatusCode: httpResp.StatusCode,
		Message:    msg,
		Type:       classifyErrorType(httpResp.StatusCode, ""),
		RetryAfter: retryAfter,
	}
}
