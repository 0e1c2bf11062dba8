package config

// OODAConfig configures the loop controller.
type OODAConfig struct {
	// RefutationConfidenceThreshold is the contradiction confidence above
	// which the controller pauses for explicit user confirmation.
	RefutationConfidenceThreshold float64 `yaml:"refutation_confidence_threshold"`

	// MinHypotheses / MaxHypotheses bound the ranked set the Hypothesis
	// phase must produce before it can complete.
	MinHypotheses int `yaml:"min_hypotheses"`
	MaxHypotheses int `yaml:"max_hypotheses"`

	// HistoryWindow is how many recent turns the classifier sees.
	HistoryWindow int `yaml:"history_window"`

	// MaxRequestsPerTurn caps evidence requests emitted in one turn.
	MaxRequestsPerTurn int `yaml:"max_requests_per_turn"`
}

// DefaultOODAConfig returns the documented loop policy.
func DefaultOODAConfig() OODAConfig {
	return OODAConfig{
		RefutationConfidenceThreshold: 0.7,
		MinHypotheses:                 2,
		MaxHypotheses:                 4,
		HistoryWindow:                 6,
		MaxRequestsPerTurn:            3,
	}
}

// RecoveryConfig configures loop/stall detection and recovery.
type RecoveryConfig struct {
	// StepLoopWindow is how many recent OODA steps are inspected for a
	// repeated-step loop.
	StepLoopWindow int `yaml:"step_loop_window"`
	// HypothesisTestLimit flags a hypothesis tested this many times
	// without a status change as anchoring.
	HypothesisTestLimit int `yaml:"hypothesis_test_limit"`
	// StagnationTurns flags a stall when no phase-history entry appears
	// within this many turns.
	StagnationTurns int `yaml:"stagnation_turns"`
	// BlockedRequestThreshold moves the case to Stalled when this many
	// requests are blocked simultaneously.
	BlockedRequestThreshold int `yaml:"blocked_request_threshold"`
	// RetireLikelihoodBelow is the cutoff for the retire-weak-hypotheses
	// recovery strategy.
	RetireLikelihoodBelow float64 `yaml:"retire_likelihood_below"`
}

// DefaultRecoveryConfig returns the documented detection thresholds.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		StepLoopWindow:          5,
		HypothesisTestLimit:     3,
		StagnationTurns:         5,
		BlockedRequestThreshold: 3,
		RetireLikelihoodBelow:   0.3,
	}
}

// SafetyConfig configures the command deny-list filter.
type SafetyConfig struct {
	// ExtraDenyPatterns are appended to the built-in deny-list
	// (regular expressions).
	ExtraDenyPatterns []string `yaml:"extra_deny_patterns"`
}

// DefaultSafetyConfig returns an empty extension list; the built-in
// deny-list always applies.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{}
}

// StoreConfig configures case-state persistence.
type StoreConfig struct {
	// Backend selects sqlite or memory.
	Backend string `yaml:"backend"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// DefaultStoreConfig persists to a local SQLite file.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "sqlite",
		Path:    "triage.db",
	}
}
