package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"triage/internal/llm"
	"triage/internal/logging"
	"triage/internal/types"
)

// Classifier produces the five independent judgments for one user turn:
// request matching, per-request completeness, form, evidential type, and
// intent. Matching is bounded to the request snapshot the caller passes
// in, so classification never sees requests created later in the turn.
type Classifier struct {
	client        llm.Client
	historyWindow int
}

// NewClassifier creates a classifier over the given completion client.
func NewClassifier(client llm.Client, historyWindow int) *Classifier {
	if historyWindow <= 0 {
		historyWindow = 6
	}
	return &Classifier{client: client, historyWindow: historyWindow}
}

const classifierSystemPrompt = `You classify a user's message in a technical incident investigation.
Judge five independent dimensions and answer ONLY with a JSON object:
{
  "matches": [{"request_id": "...", "completeness_score": 0.0}],
  "form": "user_input" | "document",
  "evidence_type": "supportive" | "refuting" | "neutral" | "absence",
  "intent": "providing_evidence" | "asking_question" | "reporting_unavailable" | "reporting_status" | "clarifying" | "off_topic",
  "unavailable_reason": "only when intent is reporting_unavailable",
  "contradiction_confidence": 0.0,
  "contradicted_hypothesis_id": "only when evidence_type is refuting"
}
Rules:
- Match requests by semantic relevance, not keyword overlap. Zero, one, or many matches are all valid.
- completeness_score is in [0,1] per matched request: how fully this message satisfies that request.
- "absence" means the user checked and found nothing. "neutral" means the content is ambiguous. Never confuse the two.
- If the user says they cannot obtain requested evidence, intent is reporting_unavailable and unavailable_reason quotes their stated reason.
- contradiction_confidence is in [0,1] and only meaningful when evidence_type is refuting.`

// Classify runs the classifier against a snapshot of active requests plus
// a bounded window of recent conversation history. A structured-parse
// failure falls back to text-pattern heuristics tagged LowConfidence.
func (c *Classifier) Classify(ctx context.Context, userInput string, activeRequests []*types.EvidenceRequest, hypotheses []*types.Hypothesis, history []string) (types.EvidenceClassification, error) {
	prompt := c.buildPrompt(userInput, activeRequests, hypotheses, history)

	raw, err := c.client.CompleteWithSystem(ctx, classifierSystemPrompt, prompt)
	if err != nil {
		return types.EvidenceClassification{}, fmt.Errorf("classification call failed: %w", err)
	}

	cls, perr := parseClassification(raw)
	if perr != nil {
		logging.Classifier().Warnw("structured parse failed, using fallback",
			"error", perr)
		cls = fallbackClassify(userInput)
	}

	sanitizeClassification(&cls, activeRequests)
	return cls, nil
}

func (c *Classifier) buildPrompt(userInput string, activeRequests []*types.EvidenceRequest, hypotheses []*types.Hypothesis, history []string) string {
	var b strings.Builder

	if len(history) > 0 {
		start := 0
		if len(history) > c.historyWindow {
			start = len(history) - c.historyWindow
		}
		b.WriteString("Recent conversation:\n")
		for _, line := range history[start:] {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Open evidence requests:\n")
	if len(activeRequests) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, req := range activeRequests {
		fmt.Fprintf(&b, "  - id=%s category=%s label=%q description=%q status=%s\n",
			req.RequestID, req.Category, req.Label, req.Description, req.Status)
	}

	if len(hypotheses) > 0 {
		b.WriteString("\nActive hypotheses:\n")
		for _, h := range hypotheses {
			fmt.Fprintf(&b, "  - id=%s likelihood=%.2f statement=%q\n",
				h.ID, h.Likelihood, h.Statement)
		}
	}

	b.WriteString("\nUser message:\n")
	b.WriteString(userInput)
	return b.String()
}

func parseClassification(raw string) (types.EvidenceClassification, error) {
	jsonStr := llm.ExtractJSON(raw)
	if jsonStr == "" {
		return types.EvidenceClassification{}, fmt.Errorf("no JSON object in response")
	}

	var wire struct {
		Matches []struct {
			RequestID         string  `json:"request_id"`
			CompletenessScore float64 `json:"completeness_score"`
		} `json:"matches"`
		Form                     string  `json:"form"`
		EvidenceType             string  `json:"evidence_type"`
		Intent                   string  `json:"intent"`
		UnavailableReason        string  `json:"unavailable_reason"`
		ContradictionConfidence  float64 `json:"contradiction_confidence"`
		ContradictedHypothesisID string  `json:"contradicted_hypothesis_id"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		return types.EvidenceClassification{}, fmt.Errorf("JSON parse failed: %w", err)
	}

	cls := types.EvidenceClassification{
		Form:                     types.EvidenceForm(wire.Form),
		EvidenceType:             types.EvidenceType(wire.EvidenceType),
		Intent:                   types.UserIntent(wire.Intent),
		UnavailableReason:        wire.UnavailableReason,
		ContradictionConfidence:  wire.ContradictionConfidence,
		ContradictedHypothesisID: wire.ContradictedHypothesisID,
	}
	for _, m := range wire.Matches {
		cls.Matches = append(cls.Matches, types.RequestMatch{
			RequestID:         m.RequestID,
			CompletenessScore: m.CompletenessScore,
		})
	}
	return cls, nil
}

// fallbackClassify recovers a usable classification from plain text when
// the structured path fails. Results are tagged low-confidence and never
// match any request.
func fallbackClassify(userInput string) types.EvidenceClassification {
	lower := strings.ToLower(userInput)

	cls := types.EvidenceClassification{
		Form:          types.FormUserInput,
		EvidenceType:  types.EvidenceNeutral,
		Intent:        types.IntentProvidingEvidence,
		LowConfidence: true,
	}

	switch {
	case containsAny(lower, []string{"don't have access", "do not have access", "no access", "can't access", "cannot access", "don't have", "unavailable", "not available"}):
		cls.Intent = types.IntentReportingUnavailable
		cls.UnavailableReason = strings.TrimSpace(userInput)
	case strings.Contains(lower, "?"):
		cls.Intent = types.IntentAskingQuestion
	case containsAny(lower, []string{"still down", "still broken", "recovered", "back up", "restored", "working again", "mitigated"}):
		cls.Intent = types.IntentReportingStatus
	}

	switch {
	case containsAny(lower, []string{"nothing in the logs", "found nothing", "no errors", "no entries", "came back empty", "empty result"}):
		cls.EvidenceType = types.EvidenceAbsence
	case containsAny(lower, []string{"that's not it", "rules out", "ruled out", "contradicts", "disproves"}):
		cls.EvidenceType = types.EvidenceRefuting
		cls.ContradictionConfidence = 0.5
	}

	return cls
}

// sanitizeClassification clamps scores, drops matches against request IDs
// outside the snapshot, and fills dimension defaults so callers always see
// valid enum values.
func sanitizeClassification(cls *types.EvidenceClassification, activeRequests []*types.EvidenceRequest) {
	known := make(map[string]bool, len(activeRequests))
	for _, req := range activeRequests {
		known[req.RequestID] = true
	}

	kept := cls.Matches[:0]
	for _, m := range cls.Matches {
		if !known[m.RequestID] {
			logging.Classifier().Debugw("dropped match outside request snapshot",
				"request_id", m.RequestID)
			continue
		}
		m.CompletenessScore = clamp01(m.CompletenessScore)
		kept = append(kept, m)
	}
	cls.Matches = kept
	cls.ContradictionConfidence = clamp01(cls.ContradictionConfidence)

	switch cls.Form {
	case types.FormUserInput, types.FormDocument:
	default:
		cls.Form = types.FormUserInput
	}
	switch cls.EvidenceType {
	case types.EvidenceSupportive, types.EvidenceRefuting, types.EvidenceNeutral, types.EvidenceAbsence:
	default:
		cls.EvidenceType = types.EvidenceNeutral
	}
	switch cls.Intent {
	case types.IntentProvidingEvidence, types.IntentAskingQuestion, types.IntentReportingUnavailable,
		types.IntentReportingStatus, types.IntentClarifying, types.IntentOffTopic:
	default:
		cls.Intent = types.IntentProvidingEvidence
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
