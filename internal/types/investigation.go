package types

import "time"

// =============================================================================
// HYPOTHESES & DEAD ENDS
// =============================================================================

// HypothesisStatus is the lifecycle state of a hypothesis.
type HypothesisStatus string

const (
	HypothesisExploring HypothesisStatus = "exploring"
	HypothesisTesting   HypothesisStatus = "testing"
	HypothesisValidated HypothesisStatus = "validated"
	HypothesisRefuted   HypothesisStatus = "refuted"
	HypothesisRetired   HypothesisStatus = "retired"
)

// Hypothesis is one candidate root-cause explanation. Statements are unique
// case-insensitively within a case; duplicates are merged on write.
type Hypothesis struct {
	ID            string           `json:"id"`
	Statement     string           `json:"statement"`
	Likelihood    float64          `json:"likelihood"`
	Status        HypothesisStatus `json:"status"`
	EvidenceLinks []string         `json:"evidence_links,omitempty"`
	// TestingStrategy is required before the Hypothesis phase can complete.
	TestingStrategy string `json:"testing_strategy,omitempty"`
	// TestCount counts validation attempts; three tests without a status
	// change is an anchoring signal for the loop detector.
	TestCount     int `json:"test_count"`
	CreatedAtTurn int `json:"created_at_turn"`
	UpdatedAtTurn int `json:"updated_at_turn"`
}

// DeadEnd is an append-only audit record of a ruled-out hypothesis.
// Dead ends are never deleted; the loop detector reads them to catch
// anchoring (re-proposing what was already eliminated).
type DeadEnd struct {
	Hypothesis           string    `json:"hypothesis"`
	EvidenceChecked      []string  `json:"evidence_checked"`
	WhyRuledOut          string    `json:"why_ruled_out"`
	TurnNumber           int       `json:"turn_number"`
	ConfidenceEliminated float64   `json:"confidence_eliminated"`
	RecordedAt           time.Time `json:"recorded_at"`
}

// RefutationDecision is the user's answer to a refutation confirmation.
type RefutationDecision string

const (
	RefutationConfirm   RefutationDecision = "confirm"
	RefutationDispute   RefutationDecision = "dispute"
	RefutationUncertain RefutationDecision = "uncertain"
)

// PendingRefutation is the suspended state of the refutation confirmation
// sub-flow: a high-confidence contradiction awaiting the user's verdict.
type PendingRefutation struct {
	HypothesisID  string  `json:"hypothesis_id"`
	EvidenceID    string  `json:"evidence_id"`
	Contradiction string  `json:"contradiction"`
	Confidence    float64 `json:"confidence"`
	RaisedAtTurn  int     `json:"raised_at_turn"`
}

// RefutationConfirmedEvent is appended to history when the user confirms a
// refutation. No hypothesis reaches refuted without one.
type RefutationConfirmedEvent struct {
	HypothesisID string    `json:"hypothesis_id"`
	EvidenceID   string    `json:"evidence_id"`
	TurnNumber   int       `json:"turn_number"`
	At           time.Time `json:"at"`
}

// =============================================================================
// MEMORY TIERS
// =============================================================================

// IterationRecord is one full-fidelity investigation iteration in hot memory.
type IterationRecord struct {
	TurnNumber int                `json:"turn_number"`
	Phase      InvestigationPhase `json:"phase"`
	UserInput  string             `json:"user_input"`
	AgentReply string             `json:"agent_reply"`
	// Findings are the decision-relevant deltas of the iteration.
	Findings []string  `json:"findings,omitempty"`
	At       time.Time `json:"at"`
}

// WarmSnapshot is an LLM-summarized iteration (positions 3-5 of history).
type WarmSnapshot struct {
	StartTurn int    `json:"start_turn"`
	EndTurn   int    `json:"end_turn"`
	Summary   string `json:"summary"`
	Tokens    int    `json:"tokens"`
}

// ColdSnapshot is a fact-only reduction of aged warm snapshots.
type ColdSnapshot struct {
	StartTurn int      `json:"start_turn"`
	EndTurn   int      `json:"end_turn"`
	Facts     []string `json:"facts"`
	Tokens    int      `json:"tokens"`
}

// PersistentInsight is a permanent root-cause/solution/critical-learning
// record. Never demoted or dropped until the case closes.
type PersistentInsight struct {
	Kind       string `json:"kind"` // root_cause, solution, learning
	Text       string `json:"text"`
	TurnNumber int    `json:"turn_number"`
}

// MemoryState is the serializable four-tier memory of one investigation.
// The memory manager is its only writer.
type MemoryState struct {
	Hot        []IterationRecord   `json:"hot,omitempty"`
	Warm       []WarmSnapshot      `json:"warm,omitempty"`
	Cold       []ColdSnapshot      `json:"cold,omitempty"`
	Persistent []PersistentInsight `json:"persistent,omitempty"`
	// LastCompressedTurn is the turn number of the last compaction cycle.
	LastCompressedTurn int `json:"last_compressed_turn"`
	// PendingCompression prevents duplicate deferred compaction scheduling.
	PendingCompression bool `json:"pending_compression,omitempty"`
}

// =============================================================================
// INVESTIGATION STATE
// =============================================================================

// PromptTier selects how much context the prompt assembler may spend.
// Recovery forces the minimal tier when token pressure caused a stall.
type PromptTier string

const (
	PromptTierNormal  PromptTier = "normal"
	PromptTierMinimal PromptTier = "minimal"
)

// InvestigationState is the complete, serializable state of one case.
// It is the unit the persistence collaborator loads and saves atomically,
// and the unit a turn transaction snapshots for rollback.
type InvestigationState struct {
	CaseID string `json:"case_id"`

	Phase    InvestigationPhase    `json:"phase"`
	Mode     EngagementMode        `json:"mode"`
	Status   CaseStatus            `json:"status"`
	Strategy InvestigationStrategy `json:"strategy,omitempty"`

	ProblemStatement    string               `json:"problem_statement,omitempty"`
	Urgency             Urgency              `json:"urgency,omitempty"`
	ProblemConfirmation *ProblemConfirmation `json:"problem_confirmation,omitempty"`
	MitigationRecorded  bool                 `json:"mitigation_recorded,omitempty"`

	TurnNumber     int `json:"turn_number"`
	PhaseIteration int `json:"phase_iteration"`

	Requests []*EvidenceRequest `json:"requests,omitempty"`
	Provided []EvidenceProvided `json:"provided,omitempty"`

	Hypotheses []*Hypothesis `json:"hypotheses,omitempty"`
	DeadEnds   []DeadEnd     `json:"dead_ends,omitempty"`

	Memory MemoryState `json:"memory"`

	PhaseHistory []PhaseTransition `json:"phase_history,omitempty"`
	StepHistory  []StepRecord      `json:"step_history,omitempty"`

	AwaitingRefutationConfirmation bool                       `json:"awaiting_refutation_confirmation,omitempty"`
	PendingRefutation              *PendingRefutation         `json:"pending_refutation,omitempty"`
	RefutationHistory              []RefutationConfirmedEvent `json:"refutation_history,omitempty"`

	StallReason    string     `json:"stall_reason,omitempty"`
	EscalationFlag bool       `json:"escalation_flag,omitempty"`
	PromptTier     PromptTier `json:"prompt_tier,omitempty"`

	RootCause           *RootCauseConclusion `json:"root_cause,omitempty"`
	ResolutionArtifacts ResolutionArtifacts  `json:"resolution_artifacts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInvestigationState returns a fresh case in consultant intake.
func NewInvestigationState(caseID string, now time.Time) *InvestigationState {
	return &InvestigationState{
		CaseID:     caseID,
		Phase:      PhaseIntake,
		Mode:       ModeConsultant,
		Status:     StatusIntake,
		PromptTier: PromptTierNormal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// RequestByID returns the request with the given ID, or nil.
func (s *InvestigationState) RequestByID(id string) *EvidenceRequest {
	for _, r := range s.Requests {
		if r.RequestID == id {
			return r
		}
	}
	return nil
}

// ActiveRequests returns requests still soliciting evidence.
func (s *InvestigationState) ActiveRequests() []*EvidenceRequest {
	var out []*EvidenceRequest
	for _, r := range s.Requests {
		if r.Active() {
			out = append(out, r)
		}
	}
	return out
}

// OpenRequests returns requests a user turn may still address. Blocked
// requests are included: evidence for them can still arrive through an
// alternative route, which unblocks them.
func (s *InvestigationState) OpenRequests() []*EvidenceRequest {
	var out []*EvidenceRequest
	for _, r := range s.Requests {
		if r.Active() || r.Status == RequestBlocked {
			out = append(out, r)
		}
	}
	return out
}

// BlockedRequestCount counts requests currently in blocked status.
func (s *InvestigationState) BlockedRequestCount() int {
	n := 0
	for _, r := range s.Requests {
		if r.Status == RequestBlocked {
			n++
		}
	}
	return n
}

// HypothesisByID returns the hypothesis with the given ID, or nil.
func (s *InvestigationState) HypothesisByID(id string) *Hypothesis {
	for _, h := range s.Hypotheses {
		if h.ID == id {
			return h
		}
	}
	return nil
}
