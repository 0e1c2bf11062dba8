// Package recovery watches investigations for loops and stalls and tries
// ordered, reversible strategies to break them before escalating.
package recovery

import (
	"fmt"

	"triage/internal/config"
	"triage/internal/logging"
	"triage/internal/types"
)

// DetectionKind names the failure pattern the detector found.
type DetectionKind string

const (
	DetectStepLoop       DetectionKind = "step_loop"
	DetectHypothesisLoop DetectionKind = "hypothesis_loop"
	DetectStagnation     DetectionKind = "stagnation"
	DetectEvidenceBlock  DetectionKind = "evidence_block"
)

// Detection is one triggered detection rule with a human-readable reason.
type Detection struct {
	Kind   DetectionKind
	Reason string
}

// Detector evaluates the four loop/stall rules against recent history.
type Detector struct {
	cfg config.RecoveryConfig
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg config.RecoveryConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Check runs every rule for the current turn and returns the first
// detection, most specific rule first. Nil means the investigation is
// progressing normally.
func (d *Detector) Check(st *types.InvestigationState, turn int) *Detection {
	if det := d.checkEvidenceBlock(st); det != nil {
		return det
	}
	if det := d.checkStepLoop(st, turn); det != nil {
		return det
	}
	if det := d.checkHypothesisLoop(st); det != nil {
		return det
	}
	if det := d.checkStagnation(st, turn); det != nil {
		return det
	}
	return nil
}

// checkStepLoop fires when the cycle keeps cutting out at the same step
// turn after turn. A full cycle ends at Act, so a window of completed
// turns that all stopped short at one earlier step means the loop is
// circling. The in-flight turn is excluded; its final step is not known
// yet.
func (d *Detector) checkStepLoop(st *types.InvestigationState, turn int) *Detection {
	window := d.cfg.StepLoopWindow
	finals := finalStepsBefore(st.StepHistory, turn)
	if len(finals) < window {
		return nil
	}
	recent := finals[len(finals)-window:]
	first := recent[0]
	if first == types.StepAct {
		return nil
	}
	for _, s := range recent[1:] {
		if s != first {
			return nil
		}
	}
	return &Detection{
		Kind:   DetectStepLoop,
		Reason: fmt.Sprintf("the last %d turns all stopped at the %s step", window, first),
	}
}

// finalStepsBefore reduces the step history to the last recorded step of
// each turn before the given one, in turn order.
func finalStepsBefore(history []types.StepRecord, turn int) []types.OODAStep {
	var steps []types.OODAStep
	lastTurn := -1
	for _, rec := range history {
		if rec.TurnNumber >= turn {
			continue
		}
		if rec.TurnNumber == lastTurn {
			steps[len(steps)-1] = rec.Step
			continue
		}
		lastTurn = rec.TurnNumber
		steps = append(steps, rec.Step)
	}
	return steps
}

// checkHypothesisLoop fires on anchoring: a hypothesis tested repeatedly
// without ever changing status.
func (d *Detector) checkHypothesisLoop(st *types.InvestigationState) *Detection {
	for _, h := range st.Hypotheses {
		if h.TestCount >= d.cfg.HypothesisTestLimit &&
			(h.Status == types.HypothesisTesting || h.Status == types.HypothesisExploring) {
			return &Detection{
				Kind:   DetectHypothesisLoop,
				Reason: fmt.Sprintf("hypothesis %q tested %d times without a status change", h.Statement, h.TestCount),
			}
		}
	}
	return nil
}

// checkStagnation fires when the investigation has not recorded a phase
// transition in the stagnation window. Only meaningful once the OODA loop
// is active.
func (d *Detector) checkStagnation(st *types.InvestigationState, turn int) *Detection {
	if st.Mode != types.ModeLeadInvestigator {
		return nil
	}
	lastTransitionTurn := 0
	if n := len(st.PhaseHistory); n > 0 {
		lastTransitionTurn = st.PhaseHistory[n-1].TurnNumber
	}
	if turn-lastTransitionTurn < d.cfg.StagnationTurns {
		return nil
	}
	return &Detection{
		Kind:   DetectStagnation,
		Reason: fmt.Sprintf("no phase progress in %d turns", turn-lastTransitionTurn),
	}
}

// checkEvidenceBlock fires when enough requests are simultaneously blocked
// that the investigation cannot move. The controller responds by moving
// the case to Stalled with the blocking reasons as stall_reason.
func (d *Detector) checkEvidenceBlock(st *types.InvestigationState) *Detection {
	blocked := st.BlockedRequestCount()
	if blocked < d.cfg.BlockedRequestThreshold {
		return nil
	}

	det := &Detection{
		Kind:   DetectEvidenceBlock,
		Reason: fmt.Sprintf("%d evidence requests blocked: %s", blocked, blockedReasons(st)),
	}
	logging.Recovery().Warnw("evidence-block stall detected",
		"case_id", st.CaseID, "blocked", blocked)
	return det
}

func blockedReasons(st *types.InvestigationState) string {
	var reasons string
	for _, r := range st.Requests {
		if r.Status != types.RequestBlocked {
			continue
		}
		if reasons != "" {
			reasons += "; "
		}
		reasons += r.BlockedReason
	}
	return reasons
}
