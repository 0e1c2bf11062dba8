package types

import "time"

// =============================================================================
// EVIDENCE REQUESTS
// =============================================================================

// EvidenceCategory buckets what kind of diagnostic data a request asks for.
type EvidenceCategory string

const (
	CategorySymptoms      EvidenceCategory = "symptoms"
	CategoryTimeline      EvidenceCategory = "timeline"
	CategoryChanges       EvidenceCategory = "changes"
	CategoryConfiguration EvidenceCategory = "configuration"
	CategoryScope         EvidenceCategory = "scope"
	CategoryMetrics       EvidenceCategory = "metrics"
	CategoryEnvironment   EvidenceCategory = "environment"
)

// Valid reports whether c is one of the known categories.
func (c EvidenceCategory) Valid() bool {
	switch c {
	case CategorySymptoms, CategoryTimeline, CategoryChanges,
		CategoryConfiguration, CategoryScope, CategoryMetrics, CategoryEnvironment:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of an evidence request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestPartial  RequestStatus = "partial"
	RequestComplete RequestStatus = "complete"
	RequestBlocked  RequestStatus = "blocked"
	RequestObsolete RequestStatus = "obsolete"
)

// Guidance list caps and the expected-output length cap. Guidance beyond
// these limits is truncated on ingest, never rejected wholesale.
const (
	MaxGuidanceCommands      = 3
	MaxGuidanceFileLocations = 3
	MaxGuidanceUILocations   = 3
	MaxGuidanceAlternatives  = 3
	MaxGuidancePrerequisites = 2
	MaxExpectedOutputChars   = 200
)

// AcquisitionGuidance tells the user how to obtain the requested evidence.
// Commands must pass the safety deny-list before they are attached; the
// presentation layer renders these, the engine never formats UI strings.
type AcquisitionGuidance struct {
	Commands       []string `json:"commands,omitempty"`
	FileLocations  []string `json:"file_locations,omitempty"`
	UILocations    []string `json:"ui_locations,omitempty"`
	Alternatives   []string `json:"alternatives,omitempty"`
	Prerequisites  []string `json:"prerequisites,omitempty"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
}

// EvidenceRequest is a structured ask for specific diagnostic data.
// Completeness is monotone non-decreasing under classification updates;
// the only reset is the explicit obsolete transition on phase advance.
type EvidenceRequest struct {
	RequestID    string              `json:"request_id"`
	Label        string              `json:"label"`
	Description  string              `json:"description"`
	Category     EvidenceCategory    `json:"category"`
	Guidance     AcquisitionGuidance `json:"guidance"`
	Status       RequestStatus       `json:"status"`
	Completeness float64             `json:"completeness"`
	// BlockedReason holds the user's stated reason when Status is blocked.
	BlockedReason string `json:"blocked_reason,omitempty"`
	CreatedAtTurn int    `json:"created_at_turn"`
	UpdatedAtTurn int    `json:"updated_at_turn"`
}

// Active reports whether the request still solicits evidence.
func (r *EvidenceRequest) Active() bool {
	return r.Status == RequestPending || r.Status == RequestPartial
}

// =============================================================================
// PROVIDED EVIDENCE
// =============================================================================

// EvidenceForm distinguishes typed user input from an attached document.
type EvidenceForm string

const (
	FormUserInput EvidenceForm = "user_input"
	FormDocument  EvidenceForm = "document"
)

// CompletenessLevel is the categorical completeness of one provided piece.
// OverComplete means the piece addressed more than one request; it is a
// match-count property, never a numeric score above 1.
type CompletenessLevel string

const (
	LevelPartial      CompletenessLevel = "partial"
	LevelComplete     CompletenessLevel = "complete"
	LevelOverComplete CompletenessLevel = "over_complete"
)

// EvidenceType is the evidential relation of a piece to active hypotheses.
// Absence (checked, found nothing) is a distinct and valid outcome from
// Neutral (ambiguous); neither is ever discarded.
type EvidenceType string

const (
	EvidenceSupportive EvidenceType = "supportive"
	EvidenceRefuting   EvidenceType = "refuting"
	EvidenceNeutral    EvidenceType = "neutral"
	EvidenceAbsence    EvidenceType = "absence"
)

// UserIntent classifies what the user was doing with their turn.
type UserIntent string

const (
	IntentProvidingEvidence    UserIntent = "providing_evidence"
	IntentAskingQuestion       UserIntent = "asking_question"
	IntentReportingUnavailable UserIntent = "reporting_unavailable"
	IntentReportingStatus      UserIntent = "reporting_status"
	IntentClarifying           UserIntent = "clarifying"
	IntentOffTopic             UserIntent = "off_topic"
)

// FileMetadata describes an attached document.
type FileMetadata struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// EvidenceProvided records one user contribution and its classification
// outcome. AddressesRequests may be empty (off-topic input is valid).
type EvidenceProvided struct {
	EvidenceID        string            `json:"evidence_id"`
	TurnNumber        int               `json:"turn_number"`
	Form              EvidenceForm      `json:"form"`
	Content           string            `json:"content"`
	FileMetadata      *FileMetadata     `json:"file_metadata,omitempty"`
	AddressesRequests []string          `json:"addresses_requests"`
	Completeness      CompletenessLevel `json:"completeness"`
	EvidenceType      EvidenceType      `json:"evidence_type"`
	UserIntent        UserIntent        `json:"user_intent"`
	CreatedAt         time.Time         `json:"created_at"`
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// RequestMatch scores one matched request. The score is clamped to [0,1]
// on ingest; "addresses multiple requests" is expressed by match count only.
type RequestMatch struct {
	RequestID         string  `json:"request_id"`
	CompletenessScore float64 `json:"completeness_score"`
}

// EvidenceClassification carries the five independent judgments produced
// for one user turn against the set of active requests.
type EvidenceClassification struct {
	Matches      []RequestMatch `json:"matches"`
	Form         EvidenceForm   `json:"form"`
	EvidenceType EvidenceType   `json:"evidence_type"`
	Intent       UserIntent     `json:"intent"`
	// UnavailableReason carries the user's stated reason when Intent is
	// reporting_unavailable; it is stored on the blocked request.
	UnavailableReason string `json:"unavailable_reason,omitempty"`
	// ContradictionConfidence is only meaningful when EvidenceType is
	// refuting; above the confirmation threshold the controller must ask
	// the user before any hypothesis state changes.
	ContradictionConfidence float64 `json:"contradiction_confidence,omitempty"`
	// ContradictedHypothesisID names the hypothesis the refuting evidence
	// speaks against, when the classifier could tell.
	ContradictedHypothesisID string `json:"contradicted_hypothesis_id,omitempty"`
	// LowConfidence marks results recovered through the text-pattern
	// fallback parser rather than the structured path.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// MatchedRequestIDs returns the matched request IDs in match order.
func (c *EvidenceClassification) MatchedRequestIDs() []string {
	ids := make([]string, len(c.Matches))
	for i, m := range c.Matches {
		ids[i] = m.RequestID
	}
	return ids
}

// Level derives the categorical completeness level from the match set.
func (c *EvidenceClassification) Level() CompletenessLevel {
	if len(c.Matches) > 1 {
		return LevelOverComplete
	}
	for _, m := range c.Matches {
		if m.CompletenessScore >= 0.8 {
			return LevelComplete
		}
	}
	return LevelPartial
}
