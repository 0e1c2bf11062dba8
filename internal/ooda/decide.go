package ooda

import (
	"triage/internal/types"
)

// phaseComplete evaluates the phase-specific objective completion check.
// Evidence completeness feeds several of them but none is purely
// completeness-driven; each phase has its own exit criterion.
func (c *Controller) phaseComplete(st *types.InvestigationState) bool {
	minIters, _ := types.IntensityForPhase(st.Phase).IterationRange()
	if st.PhaseIteration < minIters {
		return false
	}

	switch st.Phase {
	case types.PhaseIntake:
		return st.ProblemConfirmation != nil

	case types.PhaseBlastRadius:
		return hasCompleteRequest(st, types.CategoryScope, types.CategorySymptoms)

	case types.PhaseTimeline:
		return hasCompleteRequest(st, types.CategoryTimeline, types.CategoryChanges)

	case types.PhaseHypothesis:
		ranked := 0
		for _, h := range activeHypotheses(st) {
			if h.TestingStrategy != "" {
				ranked++
			}
		}
		return ranked >= c.cfg.MinHypotheses && ranked <= c.cfg.MaxHypotheses

	case types.PhaseValidation:
		return st.RootCause != nil

	case types.PhaseSolution:
		return st.RootCause != nil && st.MitigationRecorded

	case types.PhaseDocument:
		// Document never auto-completes; closing is a user decision.
		return false
	}
	return false
}

func hasCompleteRequest(st *types.InvestigationState, categories ...types.EvidenceCategory) bool {
	for _, r := range st.Requests {
		if r.Status != types.RequestComplete {
			continue
		}
		for _, cat := range categories {
			if r.Category == cat {
				return true
			}
		}
	}
	return false
}

// needsRequests reports whether Observe should generate fresh evidence
// requests for the current phase.
func (c *Controller) needsRequests(st *types.InvestigationState) bool {
	if st.AwaitingRefutationConfirmation {
		return false
	}
	active := 0
	for _, r := range st.Requests {
		if r.Active() && r.CreatedAtTurn >= lastPhaseEntryTurn(st) {
			active++
		}
	}
	return active == 0
}

func lastPhaseEntryTurn(st *types.InvestigationState) int {
	if n := len(st.PhaseHistory); n > 0 {
		return st.PhaseHistory[n-1].TurnNumber
	}
	return 0
}

// requestCategoriesForPhase maps each phase to the evidence categories it
// investigates.
func requestCategoriesForPhase(p types.InvestigationPhase) []types.EvidenceCategory {
	switch p {
	case types.PhaseBlastRadius:
		return []types.EvidenceCategory{types.CategoryScope, types.CategorySymptoms, types.CategoryEnvironment}
	case types.PhaseTimeline:
		return []types.EvidenceCategory{types.CategoryTimeline, types.CategoryChanges}
	case types.PhaseHypothesis:
		return []types.EvidenceCategory{types.CategoryConfiguration, types.CategoryMetrics, types.CategoryChanges}
	case types.PhaseValidation:
		return []types.EvidenceCategory{types.CategoryMetrics, types.CategoryConfiguration, types.CategorySymptoms}
	case types.PhaseSolution:
		return []types.EvidenceCategory{types.CategoryConfiguration, types.CategoryChanges}
	default:
		return []types.EvidenceCategory{types.CategorySymptoms}
	}
}
