package ooda

import (
	"time"

	"github.com/google/uuid"

	"triage/internal/logging"
	"triage/internal/state"
	"triage/internal/types"
)

// upsertHypothesis adds a hypothesis or merges it into an existing one
// with the same statement (case-insensitive). Merging keeps the original
// ID, takes the higher likelihood, and unions evidence links.
func upsertHypothesis(st *types.InvestigationState, statement string, likelihood float64, evidenceLinks []string, turn int) *types.Hypothesis {
	norm := state.NormalizeStatement(statement)
	for _, h := range st.Hypotheses {
		if state.NormalizeStatement(h.Statement) != norm {
			continue
		}
		if likelihood > h.Likelihood {
			h.Likelihood = likelihood
		}
		h.EvidenceLinks = unionStrings(h.EvidenceLinks, evidenceLinks)
		h.UpdatedAtTurn = turn
		logging.Engine().Debugw("merged duplicate hypothesis",
			"case_id", st.CaseID, "hypothesis_id", h.ID, "statement", statement)
		return h
	}

	h := &types.Hypothesis{
		ID:            uuid.NewString(),
		Statement:     statement,
		Likelihood:    clamp01(likelihood),
		Status:        types.HypothesisExploring,
		EvidenceLinks: evidenceLinks,
		CreatedAtTurn: turn,
		UpdatedAtTurn: turn,
	}
	st.Hypotheses = append(st.Hypotheses, h)
	return h
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			a = append(a, s)
			seen[s] = true
		}
	}
	return a
}

// refuteHypothesis applies a user-confirmed refutation: status change,
// dead-end record, and the confirmation event the audit trail requires.
func refuteHypothesis(st *types.InvestigationState, h *types.Hypothesis, evidenceID, why string, confidence float64, turn int, now time.Time) {
	h.Status = types.HypothesisRefuted
	h.UpdatedAtTurn = turn

	st.DeadEnds = append(st.DeadEnds, types.DeadEnd{
		Hypothesis:           h.Statement,
		EvidenceChecked:      h.EvidenceLinks,
		WhyRuledOut:          why,
		TurnNumber:           turn,
		ConfidenceEliminated: confidence,
		RecordedAt:           now,
	})
	st.RefutationHistory = append(st.RefutationHistory, types.RefutationConfirmedEvent{
		HypothesisID: h.ID,
		EvidenceID:   evidenceID,
		TurnNumber:   turn,
		At:           now,
	})

	logging.Engine().Infow("hypothesis refuted with user confirmation",
		"case_id", st.CaseID, "hypothesis_id", h.ID, "turn", turn)
}

// isDeadEnd reports whether a statement matches an already ruled-out
// hypothesis, case-insensitively.
func isDeadEnd(st *types.InvestigationState, statement string) bool {
	norm := state.NormalizeStatement(statement)
	for _, d := range st.DeadEnds {
		if state.NormalizeStatement(d.Hypothesis) == norm {
			return true
		}
	}
	return false
}

// activeHypotheses returns hypotheses still in play.
func activeHypotheses(st *types.InvestigationState) []*types.Hypothesis {
	var out []*types.Hypothesis
	for _, h := range st.Hypotheses {
		switch h.Status {
		case types.HypothesisExploring, types.HypothesisTesting:
			out = append(out, h)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
