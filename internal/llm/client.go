// Package llm provides the narrow completion interface the engine talks
// through, with provider clients for Gemini and OpenAI-compatible APIs.
package llm

import (
	"context"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
