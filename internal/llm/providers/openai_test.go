package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

func TestNewOpenAIAdapter(t *testing.T) {
	tests := []struct {
		name             string
		config           Config
		expectedEndpoint string
		expectedName     string
	}{
		{
			name:             "default_endpoint_when_empty",
			config:           Config{APIKey: "test-key"},
			expectedEndpoint: DefaultOpenAIEndpoint,
			expectedName:     ProviderOpenAI,
		},
		{
			name:             "custom_endpoint_preserved",
			config:           Config{Name: ProviderOpenRouter, APIKey: "k", Endpoint: "https://gw.example/v1"},
			expectedEndpoint: "https://gw.example/v1",
			expectedName:     ProviderOpenRouter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewOpenAIAdapter(tt.config)
			assert.Equal(t, tt.expectedName, adapter.Name())
			assert.Equal(t, tt.expectedEndpoint, adapter.config.Endpoint)
		})
	}
}

func TestOpenAIAdapter_Build(t *testing.T) {
	adapter := NewOpenAIAdapter(Config{
		APIKey:   "test-key",
		Endpoint: "https://api.example/v1",
		Headers:  map[string]string{"X-Title": "council"},
	})

	httpReq, err := adapter.Build(context.Background(), &transport.Request{
		Model:        "gpt-4o",
		SystemPrompt: "You are an auditor.",
		UserPrompt:   "Review this.",
		Temperature:  0.1,
		MaxTokens:    500,
		JSONMode:     true,
		Metadata:     map[string]string{"role": "security"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, httpReq.Method)
	assert.Equal(t, "https://api.example/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer test-key", httpReq.Header.Get("Authorization"))
	assert.Equal(t, "council", httpReq.Header.Get("X-Title"))

	raw, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Len(t, body["messages"], 2)
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	assert.NotContains(t, string(raw), "security", "metadata must not be sent upstream")
}

func TestOpenAIAdapter_BuildWithoutKey(t *testing.T) {
	adapter := NewOpenAIAdapter(Config{})
	_, err := adapter.Build(context.Background(), &transport.Request{Model: "m", UserPrompt: "p"})
	require.ErrorIs(t, err, llmerrors.ErrMissingAPIKey)
}

func newResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestOpenAIAdapter_Parse(t *testing.T) {
	adapter := NewOpenAIAdapter(Config{APIKey: "k"})

	resp, err := adapter.Parse(newResponse(http.StatusOK, `{
		"id":"chatcmpl-1","model":"gpt-4o",
		"choices":[{"message":{"role":"assistant","content":"{\"auditor_role\":\"pm\"}"},"finish_reason":"length"}],
		"usage":{"prompt_tokens":10,"completion_tokens":5}
	}`, nil))
	require.NoError(t, err)
	assert.Equal(t, `{"auditor_role":"pm"}`, resp.Content)
	assert.Equal(t, transport.FinishLength, resp.FinishReason)
	assert.Equal(t, int64(15), resp.Usage.TotalTokens)
	assert.Equal(t, []string{"chatcmpl-1"}, resp.ProviderRequestIDs)
}

func TestOpenAIAdapter_ParseErrors(t *testing.T) {
	adapter := NewOpenAIAdapter(Config{APIKey: "k"})

	tests := []struct {
		name          string
		status        int
		body          string
		header        http.Header
		wantType      llmerrors.ErrorType
		wantRetryable bool
		wantAfter     int
	}{
		{
			name:          "rate_limited_with_retry_after",
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`,
			header:        http.Header{"Retry-After": []string{"7"}},
			wantType:      llmerrors.ErrorTypeRateLimit,
			wantRetryable: true,
			wantAfter:     7,
		},
		{
			name:     "invalid_key",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantType: llmerrors.ErrorTypeAuth,
		},
		{
			name:     "quota",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"no credits","type":"insufficient_quota","code":null}}`,
			wantType: llmerrors.ErrorTypeQuota,
		},
		{
			name:          "bad_gateway_plain_body",
			status:        http.StatusBadGateway,
			body:          `upstream exploded`,
			wantType:      llmerrors.ErrorTypeProvider,
			wantRetryable: true,
		},
		{
			name:     "numeric_code",
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"bad","code":400}}`,
			wantType: llmerrors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.Parse(newResponse(tt.status, tt.body, tt.header))
			var providerErr *llmerrors.ProviderError
			require.True(t, errors.As(err, &providerErr))
			assert.Equal(t, tt.wantType, providerErr.Type)
			assert.Equal(t, tt.status, providerErr.StatusCode)
			assert.Equal(t, tt.wantRetryable, providerErr.IsRetryable())
			assert.Equal(t, tt.wantAfter, providerErr.RetryAfter)
		})
	}
}

func TestOpenAIAdapter_ParseNoChoices(t *testing.T) {
	adapter := NewOpenAIAdapter(Config{APIKey: "k"})
	_, err := adapter.Parse(newResponse(http.StatusOK, `{"choices":[]}`, nil))
	require.ErrorIs(t, err, llmerrors.ErrInvalidResponse)

	_, err = adapter.Parse(newResponse(http.StatusOK, `not json`, nil))
	require.ErrorIs(t, err, llmerrors.ErrInvalidResponse)
}

// TestOpenAIAdapter_RoundTrip drives the adapter through the transport core
// handler against a local server.
func TestOpenAIAdapter_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("x-request-id", "req-42")
		_, _ = io.WriteString(w, `{"model":"m","choices":[{"message":{"content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer server.Close()

	router, err := NewRouter(ProviderOpenRouter, Config{Name: ProviderOpenRouter, APIKey: "k", Endpoint: server.URL + "/v1"})
	require.NoError(t, err)

	handler := transport.NewHTTPHandler(server.Client(), router)
	resp, err := handler.Handle(context.Background(), &transport.Request{Model: "m", UserPrompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, []string{"req-42"}, resp.ProviderRequestIDs)
	assert.GreaterOrEqual(t, resp.Usage.LatencyMs, int64(0))
}
