package recovery

import (
	"context"
	"fmt"
	"time"

	"triage/internal/config"
	"triage/internal/logging"
	"triage/internal/state"
	"triage/internal/types"
)

// Compressor is the slice of the memory manager recovery needs.
type Compressor interface {
	Compress(ctx context.Context, st *types.InvestigationState, turn int) error
	ContextTokens(st *types.InvestigationState) int
	TokenBudget() int
}

// ExhaustedError is returned when every recovery strategy failed. It is
// not retryable; the caller must surface it and honor the escalation flag.
type ExhaustedError struct {
	CaseID    string
	Detection Detection
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("case %s: all recovery strategies exhausted after %s (%s)",
		e.CaseID, e.Detection.Kind, e.Detection.Reason)
}

// Manager applies the ordered recovery strategies. Each strategy is
// independently reversible; the first one that reports progress wins.
type Manager struct {
	cfg        config.RecoveryConfig
	compressor Compressor
}

// NewManager creates a recovery manager over the memory compressor.
func NewManager(cfg config.RecoveryConfig, compressor Compressor) *Manager {
	return &Manager{cfg: cfg, compressor: compressor}
}

// Recover tries the strategies in order: force compression, retire weak
// hypotheses, minimal prompt tier, revert to the prior phase. When none
// makes progress it sets the escalation flag and returns *ExhaustedError.
func (m *Manager) Recover(ctx context.Context, st *types.InvestigationState, det Detection, turn int) (string, error) {
	log := logging.Recovery()

	if m.forceCompression(ctx, st, turn) {
		log.Infow("recovered by forced compression", "case_id", st.CaseID, "kind", det.Kind)
		return "compressed working memory", nil
	}
	if retired := m.retireWeakHypotheses(st, turn); retired > 0 {
		log.Infow("recovered by retiring weak hypotheses",
			"case_id", st.CaseID, "kind", det.Kind, "retired", retired)
		return fmt.Sprintf("retired %d low-likelihood hypotheses", retired), nil
	}
	if m.forceMinimalPromptTier(st) {
		log.Infow("recovered by forcing minimal prompt tier", "case_id", st.CaseID, "kind", det.Kind)
		return "switched to minimal prompt tier", nil
	}
	if m.revertPhase(st, det) {
		log.Infow("recovered by reverting phase",
			"case_id", st.CaseID, "kind", det.Kind, "phase", st.Phase)
		return fmt.Sprintf("reverted to the %s phase", st.Phase), nil
	}

	st.EscalationFlag = true
	log.Errorw("recovery exhausted, escalating",
		"case_id", st.CaseID, "kind", det.Kind, "reason", det.Reason)
	return "", &ExhaustedError{CaseID: st.CaseID, Detection: det}
}

// forceCompression applies only when the failure looks token-pressure
// related: the assembled context is over budget.
func (m *Manager) forceCompression(ctx context.Context, st *types.InvestigationState, turn int) bool {
	if m.compressor.ContextTokens(st) <= m.compressor.TokenBudget() {
		return false
	}
	before := m.compressor.ContextTokens(st)
	if err := m.compressor.Compress(ctx, st, turn); err != nil {
		logging.Recovery().Warnw("forced compression failed",
			"case_id", st.CaseID, "error", err)
		return false
	}
	return m.compressor.ContextTokens(st) < before
}

// retireWeakHypotheses moves low-likelihood hypotheses to retired and
// records them as dead ends for the audit trail.
func (m *Manager) retireWeakHypotheses(st *types.InvestigationState, turn int) int {
	retired := 0
	for _, h := range st.Hypotheses {
		if h.Status == types.HypothesisRetired || h.Status == types.HypothesisRefuted ||
			h.Status == types.HypothesisValidated {
			continue
		}
		if h.Likelihood >= m.cfg.RetireLikelihoodBelow {
			continue
		}
		h.Status = types.HypothesisRetired
		h.UpdatedAtTurn = turn
		st.DeadEnds = append(st.DeadEnds, types.DeadEnd{
			Hypothesis:           h.Statement,
			EvidenceChecked:      h.EvidenceLinks,
			WhyRuledOut:          "retired during loop recovery for low likelihood",
			TurnNumber:           turn,
			ConfidenceEliminated: 1 - h.Likelihood,
			RecordedAt:           time.Now().UTC(),
		})
		retired++
	}
	return retired
}

func (m *Manager) forceMinimalPromptTier(st *types.InvestigationState) bool {
	if st.PromptTier == types.PromptTierMinimal {
		return false
	}
	st.PromptTier = types.PromptTierMinimal
	return true
}

func (m *Manager) revertPhase(st *types.InvestigationState, det Detection) bool {
	err := state.RevertPhase(st, fmt.Sprintf("recovery after %s", det.Kind), time.Now().UTC())
	return err == nil
}
