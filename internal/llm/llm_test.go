package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/config"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare object",
			input:    `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "markdown fence",
			input:    "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "surrounding prose",
			input:    "Here is the result: {\"a\": {\"b\": 2}} hope that helps",
			expected: `{"a": {"b": 2}}`,
		},
		{
			name:     "brace inside string",
			input:    `{"msg": "use {curly} braces"}`,
			expected: `{"msg": "use {curly} braces"}`,
		},
		{
			name:     "no object",
			input:    "plain text answer",
			expected: "",
		},
		{
			name:     "unbalanced",
			input:    `{"a": 1`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.input))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ErrRateLimited, classifyStatus(http.StatusTooManyRequests))
	assert.Equal(t, ErrAuthFailed, classifyStatus(http.StatusUnauthorized))
	assert.Equal(t, ErrAuthFailed, classifyStatus(http.StatusForbidden))
	assert.Equal(t, ErrInvalidRequest, classifyStatus(http.StatusBadRequest))
	assert.Equal(t, ErrTimeout, classifyStatus(http.StatusGatewayTimeout))
	assert.Equal(t, ErrUnknown, classifyStatus(http.StatusInternalServerError))
}

func TestGenerationErrorRetryable(t *testing.T) {
	assert.True(t, (&GenerationError{Kind: ErrRateLimited}).Retryable())
	assert.True(t, (&GenerationError{Kind: ErrTimeout}).Retryable())
	assert.False(t, (&GenerationError{Kind: ErrAuthFailed}).Retryable())
	assert.False(t, (&GenerationError{Kind: ErrInvalidRequest}).Retryable())
}

func TestOpenAIClientRetriesRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	cfg := config.DefaultLLMConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = server.URL
	cfg.MaxRetries = 3
	cfg.RetryBaseDelay = time.Millisecond

	client := NewOpenAIClient(cfg)
	out, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestOpenAIClientAuthFailureNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := config.DefaultLLMConfig()
	cfg.APIKey = "bad-key"
	cfg.BaseURL = server.URL
	cfg.RetryBaseDelay = time.Millisecond

	client := NewOpenAIClient(cfg)
	_, err := client.Complete(context.Background(), "hello")
	require.Error(t, err)

	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, ErrAuthFailed, gerr.Kind)
	assert.Equal(t, 1, calls)
}

func TestOpenAIClientMissingKey(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	client := NewOpenAIClient(cfg)
	_, err := client.Complete(context.Background(), "hello")

	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, ErrAuthFailed, gerr.Kind)
}

func TestFakeClientScriptedResponses(t *testing.T) {
	fake := &FakeClient{Responses: []string{"first", "second"}}

	out, err := fake.Complete(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = fake.CompleteWithSystem(context.Background(), "sys", "b")
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	out, err = fake.Complete(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "", out)

	assert.Equal(t, 3, fake.CallCount())
	assert.Equal(t, []string{"a", "b", "c"}, fake.Prompts)
}
