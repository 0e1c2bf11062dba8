// Package config loads engine configuration from a YAML file with
// environment-variable overrides. Each subsystem owns a sub-struct with a
// Default constructor so components can be built in isolation in tests.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"triage/internal/logging"
)

// Config is the root configuration for the investigation engine.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	OODA     OODAConfig     `yaml:"ooda"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Safety   SafetyConfig   `yaml:"safety"`
	Store    StoreConfig    `yaml:"store"`
	Logging  logging.Config `yaml:"logging"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		LLM:      DefaultLLMConfig(),
		Memory:   DefaultMemoryConfig(),
		OODA:     DefaultOODAConfig(),
		Recovery: DefaultRecoveryConfig(),
		Safety:   DefaultSafetyConfig(),
		Store:    DefaultStoreConfig(),
		Logging:  logging.DefaultConfig(),
	}
}

// Load reads the YAML file at path, layered over defaults, then applies
// environment overrides. A missing file is not an error: defaults plus
// environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays TRIAGE_* environment variables on the loaded config.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRIAGE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TRIAGE_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("TRIAGE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("TRIAGE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("TRIAGE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRIAGE_MEMORY_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Memory.TokenBudget = n
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Memory.TokenBudget <= 0 {
		return fmt.Errorf("memory.token_budget must be positive, got %d", c.Memory.TokenBudget)
	}
	if c.Memory.WarmTargetTokens <= 0 || c.Memory.ColdTargetTokens <= 0 {
		return fmt.Errorf("memory tier token targets must be positive")
	}
	if c.Memory.CompressEveryNTurns <= 0 {
		return fmt.Errorf("memory.compress_every_n_turns must be positive, got %d", c.Memory.CompressEveryNTurns)
	}
	if c.OODA.RefutationConfidenceThreshold <= 0 || c.OODA.RefutationConfidenceThreshold > 1 {
		return fmt.Errorf("ooda.refutation_confidence_threshold must be in (0,1], got %v", c.OODA.RefutationConfidenceThreshold)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be non-negative, got %d", c.LLM.MaxRetries)
	}
	return nil
}
