package config

// MemoryConfig configures the four-tier memory manager.
type MemoryConfig struct {
	// TokenBudget bounds the assembled memory context. Compression is
	// mandatory, not optional, when the budget would be exceeded.
	TokenBudget int `yaml:"token_budget"`

	// HotIterations is how many recent iterations stay verbatim.
	HotIterations int `yaml:"hot_iterations"`
	// WarmPositions is how far back warm snapshots reach before
	// reduction to cold facts. Warm covers the history positions from
	// HotIterations+1 through WarmPositions.
	WarmPositions int `yaml:"warm_positions"`

	// WarmTargetTokens is the summarization target per warm snapshot.
	WarmTargetTokens int `yaml:"warm_target_tokens"`
	// ColdTargetTokens is the fact-extraction target per cold snapshot.
	ColdTargetTokens int `yaml:"cold_target_tokens"`
	// PersistentTargetTokens caps the persistent-insight block.
	PersistentTargetTokens int `yaml:"persistent_target_tokens"`

	// CompressEveryNTurns is the compaction cadence.
	CompressEveryNTurns int `yaml:"compress_every_n_turns"`

	// DeferCompaction runs compaction after the turn's response instead
	// of inline, guarded by the per-case lease.
	DeferCompaction bool `yaml:"defer_compaction"`

	// TokenizerEncoding names the tiktoken encoding used for counting;
	// the counter falls back to a chars/4 heuristic when unavailable.
	TokenizerEncoding string `yaml:"tokenizer_encoding"`
}

// DefaultMemoryConfig mirrors the engine's documented tier targets.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		TokenBudget:            1000,
		HotIterations:          2,
		WarmPositions:          5,
		WarmTargetTokens:       300,
		ColdTargetTokens:       100,
		PersistentTargetTokens: 100,
		CompressEveryNTurns:    3,
		DeferCompaction:        false,
		TokenizerEncoding:      "cl100k_base",
	}
}
