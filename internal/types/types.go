// Package types defines the core data structures shared across the
// investigation engine: phases, engagement modes, case status, evidence
// records, hypotheses, and the serializable per-case state snapshot.
//
// Ownership rules (enforced by the owning packages, documented here):
//   - internal/state is the only writer of Phase, Mode, Status, Strategy.
//   - internal/evidence is the only writer of request/provided records.
//   - internal/memory is the only writer of MemoryState tier contents.
package types

import "time"

// =============================================================================
// PHASES, MODES, STATUS
// =============================================================================

// InvestigationPhase is the ordered seven-phase ladder of an investigation.
// Phases are monotonically non-decreasing except an explicit recovery reset.
type InvestigationPhase int

const (
	PhaseIntake InvestigationPhase = iota
	PhaseBlastRadius
	PhaseTimeline
	PhaseHypothesis
	PhaseValidation
	PhaseSolution
	PhaseDocument
)

// phaseNames indexes InvestigationPhase for String().
var phaseNames = [...]string{
	"intake",
	"blast_radius",
	"timeline",
	"hypothesis",
	"validation",
	"solution",
	"document",
}

func (p InvestigationPhase) String() string {
	if p < PhaseIntake || p > PhaseDocument {
		return "unknown"
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the seven defined phases.
func (p InvestigationPhase) Valid() bool {
	return p >= PhaseIntake && p <= PhaseDocument
}

// EngagementMode selects how the engine drives a case.
type EngagementMode string

const (
	// ModeConsultant is reactive Q&A. Phase 0 only; the OODA loop is inactive.
	ModeConsultant EngagementMode = "consultant"
	// ModeLeadInvestigator is proactive evidence-driven investigation,
	// phases 1-6, OODA loop active. Entered once, never reversed in a case.
	ModeLeadInvestigator EngagementMode = "lead_investigator"
)

// CaseStatus is the lifecycle status of a case, orthogonal to phase.
type CaseStatus string

const (
	StatusIntake     CaseStatus = "intake"
	StatusInProgress CaseStatus = "in_progress"
	StatusMitigated  CaseStatus = "mitigated"
	StatusResolved   CaseStatus = "resolved"
	StatusStalled    CaseStatus = "stalled"
	StatusAbandoned  CaseStatus = "abandoned"
	StatusClosed     CaseStatus = "closed"
)

// Terminal reports whether the status accepts no further transitions.
// Terminal cases accept no evidence or memory writes either.
func (s CaseStatus) Terminal() bool {
	return s == StatusClosed || s == StatusAbandoned
}

// InvestigationStrategy selects speed vs thoroughness once lead-investigator
// mode activates. ActiveIncident may move to PostMortem (one-way) when the
// user confirms service restoration.
type InvestigationStrategy string

const (
	StrategyActiveIncident InvestigationStrategy = "active_incident"
	StrategyPostMortem     InvestigationStrategy = "post_mortem"
)

// Urgency grades the user's framing of the problem statement.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// =============================================================================
// OODA LOOP
// =============================================================================

// OODAStep names one step of the Observe-Orient-Decide-Act cycle.
type OODAStep string

const (
	StepObserve OODAStep = "observe"
	StepOrient  OODAStep = "orient"
	StepDecide  OODAStep = "decide"
	StepAct     OODAStep = "act"
)

// Intensity governs how many OODA iterations are expected before phase
// completion is considered. It is a policy hint, not a hard cap.
type Intensity string

const (
	IntensityLight  Intensity = "light"  // 1-2 iterations
	IntensityMedium Intensity = "medium" // 2-4 iterations
	IntensityFull   Intensity = "full"   // 3-6 iterations
)

// IntensityForPhase returns the expected loop intensity for a phase.
func IntensityForPhase(p InvestigationPhase) Intensity {
	switch p {
	case PhaseHypothesis, PhaseSolution:
		return IntensityMedium
	case PhaseValidation:
		return IntensityFull
	default:
		return IntensityLight
	}
}

// IterationRange returns the expected (min, max) iterations for an intensity.
func (i Intensity) IterationRange() (int, int) {
	switch i {
	case IntensityMedium:
		return 2, 4
	case IntensityFull:
		return 3, 6
	default:
		return 1, 2
	}
}

// AgentActionKind classifies what the engine emits at the end of a turn.
type AgentActionKind string

const (
	ActionRespond         AgentActionKind = "respond"
	ActionRequestEvidence AgentActionKind = "request_evidence"
	ActionConfirmRefute   AgentActionKind = "confirm_refutation"
	ActionAdvancePhase    AgentActionKind = "advance_phase"
	ActionOfferReport     AgentActionKind = "offer_report"
	ActionEscalate        AgentActionKind = "escalate"
	ActionConfirmEngage   AgentActionKind = "confirm_engagement"
	ActionRetryPending    AgentActionKind = "retry_pending"
	ActionClarify         AgentActionKind = "clarify"
)

// AgentAction is the engine's output for one processed user turn.
type AgentAction struct {
	Kind             AgentActionKind    `json:"kind"`
	Message          string             `json:"message"`
	Requests         []*EvidenceRequest `json:"requests,omitempty"`
	SuggestedReplies []string           `json:"suggested_replies,omitempty"`
	LowConfidence    bool               `json:"low_confidence,omitempty"`
}

// PhaseTransition records one phase change for the audit trail and for
// stagnation detection.
type PhaseTransition struct {
	From       InvestigationPhase `json:"from"`
	To         InvestigationPhase `json:"to"`
	TurnNumber int                `json:"turn_number"`
	Reason     string             `json:"reason,omitempty"`
	At         time.Time          `json:"at"`
}

// StepRecord records one executed OODA step for loop detection.
type StepRecord struct {
	Step       OODAStep `json:"step"`
	TurnNumber int      `json:"turn_number"`
	Iteration  int      `json:"iteration"`
}

// =============================================================================
// PROBLEM CONFIRMATION & RESOLUTION
// =============================================================================

// ProblemConfirmation captures explicit user consent for the engine to take
// the lead. Required before the Consultant -> LeadInvestigator transition.
type ProblemConfirmation struct {
	Statement   string    `json:"statement"`
	Urgency     Urgency   `json:"urgency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	TurnNumber  int       `json:"turn_number"`
}

// RootCauseConclusion is the validated end state of the hypothesis pipeline.
type RootCauseConclusion struct {
	Statement    string  `json:"statement"`
	HypothesisID string  `json:"hypothesis_id"`
	Confidence   float64 `json:"confidence"`
	TurnNumber   int     `json:"turn_number"`
}

// ResolutionArtifacts tracks delegated document generation offers. The engine
// only raises the offer signal; rendering belongs to an external collaborator.
type ResolutionArtifacts struct {
	CaseReportOffered bool `json:"case_report_offered"`
	RunbookOffered    bool `json:"runbook_offered"`
}
