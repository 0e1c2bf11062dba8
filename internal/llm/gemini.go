package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"triage/internal/config"
	"triage/internal/logging"
)

// GeminiClient implements Client using Google's GenAI SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	maxRetries  int
	baseDelay   time.Duration
}

// NewGeminiClient creates a Gemini client from the LLM configuration.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, genErr(ErrAuthFailed, fmt.Errorf("Gemini API key is required"))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   cfg.RetryBaseDelay,
	}, nil
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction, retrying
// rate-limit and timeout failures with exponential backoff.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(c.temperature)),
		MaxOutputTokens: int32(c.maxTokens),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
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

		result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
		if err != nil {
			lastErr = classifyGenAIError(err)
			if !lastErr.Retryable() {
				return "", lastErr
			}
			continue
		}

		text := strings.TrimSpace(result.Text())
		if text == "" {
			return "", genErr(ErrUnknown, fmt.Errorf("no completion returned"))
		}
		return text, nil
	}

	return "", &GenerationError{Kind: lastErr.Kind, Err: fmt.Errorf("max retries exceeded: %w", lastErr.Err)}
}

func classifyGenAIError(err error) *GenerationError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return genErr(classifyStatus(apiErr.Code), err)
	}
	return genErr(ErrUnknown, err)
}
