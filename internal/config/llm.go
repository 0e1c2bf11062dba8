package config

import "time"

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	// Provider selects the client: gemini, openai-compatible, fake.
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries caps transient-error retries (exponential backoff).
	MaxRetries int `yaml:"max_retries"`
	// RetryBaseDelay is the first backoff step; doubles per attempt.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// MaxTokens is the default completion cap per call.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature is kept low for structured outputs.
	Temperature float64 `yaml:"temperature"`
}

// DefaultLLMConfig returns sensible defaults for structured generation.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "gemini",
		Model:          "gemini-2.5-flash",
		Timeout:        120 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		MaxTokens:      4096,
		Temperature:    0.1,
	}
}
