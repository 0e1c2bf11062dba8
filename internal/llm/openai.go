package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"triage/internal/config"
	"triage/internal/logging"
)

// OpenAIClient implements Client against any OpenAI-compatible
// chat-completions endpoint.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	maxRetries  int
	baseDelay   time.Duration
	httpClient  *http.Client
}

// NewOpenAIClient creates a client from the LLM configuration.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   cfg.RetryBaseDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message. Retryable
// failures back off exponentially from the configured base delay.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", genErr(ErrAuthFailed, fmt.Errorf("API key not configured"))
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", genErr(ErrInvalidRequest, fmt.Errorf("marshal request: %w", err))
	}

	var lastErr *GenerationError
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			delay := c.baseDelay * time.Duration(1<<uint(i-1))
			logging.LLM().Debugw("retrying completion", "attempt", i, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", genErr(ErrTimeout, ctx.Err())
			}
		}

		content, gerr := c.doRequest(ctx, jsonData)
		if gerr == nil {
			return content, nil
		}
		lastErr = gerr
		if !gerr.Retryable() {
			return "", gerr
		}
	}

	return "", &GenerationError{Kind: lastErr.Kind, Err: fmt.Errorf("max retries exceeded: %w", lastErr.Err)}
}

func (c *OpenAIClient) doRequest(ctx context.Context, jsonData []byte) (string, *GenerationError) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", genErr(ErrInvalidRequest, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", genErr(ErrTimeout, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", genErr(ErrUnknown, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", genErr(classifyStatus(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", genErr(ErrUnknown, fmt.Errorf("parse response: %w", err))
	}
	if chat.Error != nil {
		return "", genErr(ErrUnknown, fmt.Errorf("API error: %s", chat.Error.Message))
	}
	if len(chat.Choices) == 0 {
		return "", genErr(ErrUnknown, fmt.Errorf("no completion returned"))
	}
	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}
