// Package state implements the case status machine, engagement mode
// activation, and investigation strategy selection. Only the loop
// controller calls into it; nothing else writes phase, mode, or status.
package state

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"triage/internal/logging"
	"triage/internal/types"
)

// InvalidTransitionError reports an attempted illegal status transition.
// The case is left untouched when one is returned.
type InvalidTransitionError struct {
	CaseID string
	From   types.CaseStatus
	To     types.CaseStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("case %s: illegal status transition %s -> %s", e.CaseID, e.From, e.To)
}

// AllowedTransitions is the full status transition table. Closed and
// Abandoned are terminal and have empty sets.
var AllowedTransitions = map[types.CaseStatus][]types.CaseStatus{
	types.StatusIntake:     {types.StatusInProgress, types.StatusAbandoned},
	types.StatusInProgress: {types.StatusMitigated, types.StatusResolved, types.StatusStalled, types.StatusAbandoned},
	types.StatusMitigated:  {types.StatusInProgress, types.StatusResolved, types.StatusStalled, types.StatusAbandoned},
	types.StatusResolved:   {types.StatusClosed, types.StatusInProgress},
	types.StatusStalled:    {types.StatusInProgress, types.StatusAbandoned},
	types.StatusAbandoned:  {},
	types.StatusClosed:     {},
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to types.CaseStatus) bool {
	for _, allowed := range AllowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the case to target or fails with
// *InvalidTransitionError without mutating anything.
func Transition(st *types.InvestigationState, target types.CaseStatus) error {
	if !CanTransition(st.Status, target) {
		return &InvalidTransitionError{CaseID: st.CaseID, From: st.Status, To: target}
	}

	from := st.Status
	st.Status = target
	st.UpdatedAt = time.Now().UTC()

	logging.State().Infow("status transition",
		"case_id", st.CaseID, "from", from, "to", target)
	return nil
}

// Guard rejects writes to a terminal case. Callers check it before any
// evidence or memory mutation.
func Guard(st *types.InvestigationState) error {
	if st.Status.Terminal() {
		return fmt.Errorf("case %s is %s: no further writes allowed", st.CaseID, st.Status)
	}
	return nil
}

// postMortemLanguage matches temporal framing that indicates the incident
// is already over and the user wants a retrospective.
var postMortemLanguage = regexp.MustCompile(`(?i)\b(what caused|why did|yesterday|last (week|night|month)|post[- ]?mortem|retrospective|root cause analysis|already (fixed|resolved|recovered))\b`)

// SelectStrategy picks the investigation strategy from the problem
// statement and urgency. Post-mortem temporal language wins; otherwise an
// unmitigated high-urgency problem is treated as an active incident;
// PostMortem is the safer default.
func SelectStrategy(st *types.InvestigationState) types.InvestigationStrategy {
	if postMortemLanguage.MatchString(st.ProblemStatement) {
		return types.StrategyPostMortem
	}
	if (st.Urgency == types.UrgencyHigh || st.Urgency == types.UrgencyCritical) && !st.MitigationRecorded {
		return types.StrategyActiveIncident
	}
	return types.StrategyPostMortem
}

// EnterLeadInvestigator activates proactive investigation. It requires a
// captured problem confirmation and phase 0; on success the case enters
// phase 1, status InProgress, and a strategy is selected once.
func EnterLeadInvestigator(st *types.InvestigationState, now time.Time) error {
	if st.Mode == types.ModeLeadInvestigator {
		return fmt.Errorf("case %s is already in lead-investigator mode", st.CaseID)
	}
	if st.ProblemConfirmation == nil {
		return fmt.Errorf("case %s: lead-investigator mode requires a confirmed problem statement", st.CaseID)
	}
	if st.Phase != types.PhaseIntake {
		return fmt.Errorf("case %s: lead-investigator mode can only start from intake, got %s", st.CaseID, st.Phase)
	}
	if err := Transition(st, types.StatusInProgress); err != nil {
		return err
	}

	st.Mode = types.ModeLeadInvestigator
	st.Strategy = SelectStrategy(st)
	advancePhase(st, types.PhaseBlastRadius, "lead investigator engaged", now)

	logging.State().Infow("entered lead-investigator mode",
		"case_id", st.CaseID, "strategy", st.Strategy)
	return nil
}

// ShiftToPostMortem is the one-way ActiveIncident -> PostMortem shift,
// taken when the user confirms service restoration.
func ShiftToPostMortem(st *types.InvestigationState, now time.Time) {
	if st.Strategy != types.StrategyActiveIncident {
		return
	}
	st.Strategy = types.StrategyPostMortem
	st.MitigationRecorded = true
	st.UpdatedAt = now
	logging.State().Infow("strategy shifted to post-mortem", "case_id", st.CaseID)
}

// AdvancePhase moves the investigation forward one phase and records the
// transition. Unresolved evidence handling is the caller's job.
func AdvancePhase(st *types.InvestigationState, reason string, now time.Time) error {
	if st.Phase >= types.PhaseDocument {
		return fmt.Errorf("case %s: already in the final phase", st.CaseID)
	}
	advancePhase(st, st.Phase+1, reason, now)
	return nil
}

// RevertPhase is the recovery path back to the immediately prior recorded
// phase. It is the only sanctioned phase decrease.
func RevertPhase(st *types.InvestigationState, reason string, now time.Time) error {
	if len(st.PhaseHistory) == 0 {
		return fmt.Errorf("case %s: no prior phase to revert to", st.CaseID)
	}
	prior := st.PhaseHistory[len(st.PhaseHistory)-1].From
	advancePhase(st, prior, reason, now)
	return nil
}

func advancePhase(st *types.InvestigationState, to types.InvestigationPhase, reason string, now time.Time) {
	st.PhaseHistory = append(st.PhaseHistory, types.PhaseTransition{
		From:       st.Phase,
		To:         to,
		TurnNumber: st.TurnNumber,
		Reason:     reason,
		At:         now,
	})
	logging.State().Infow("phase transition",
		"case_id", st.CaseID, "from", st.Phase, "to", to, "reason", reason)
	st.Phase = to
	st.PhaseIteration = 0
	st.UpdatedAt = now
}

// NormalizeStatement canonicalizes a hypothesis statement for duplicate
// detection.
func NormalizeStatement(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
