package state

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/types"
)

var allStatuses = []types.CaseStatus{
	types.StatusIntake, types.StatusInProgress, types.StatusMitigated,
	types.StatusResolved, types.StatusStalled, types.StatusAbandoned, types.StatusClosed,
}

// Every illegal transition raises and leaves the case untouched; every
// legal one lands on the target.
func TestTransitionLegality(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			st := types.NewInvestigationState("case-1", time.Now().UTC())
			st.Status = from
			before := *st

			err := Transition(st, to)
			if CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, st.Status)
				continue
			}

			var ite *InvalidTransitionError
			require.ErrorAs(t, err, &ite, "%s -> %s", from, to)
			assert.Equal(t, from, ite.From)
			assert.Equal(t, to, ite.To)

			if diff := cmp.Diff(before.Status, st.Status); diff != "" {
				t.Errorf("illegal transition mutated state (-before +after):\n%s", diff)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []types.CaseStatus{types.StatusClosed, types.StatusAbandoned} {
		assert.Empty(t, AllowedTransitions[terminal])
		assert.True(t, terminal.Terminal())
	}
}

func TestGuardRejectsTerminalWrites(t *testing.T) {
	st := types.NewInvestigationState("case-1", time.Now().UTC())
	assert.NoError(t, Guard(st))

	st.Status = types.StatusClosed
	assert.Error(t, Guard(st))

	st.Status = types.StatusAbandoned
	assert.Error(t, Guard(st))
}

func TestEnterLeadInvestigatorPreconditions(t *testing.T) {
	now := time.Now().UTC()

	st := types.NewInvestigationState("case-1", now)
	err := EnterLeadInvestigator(st, now)
	assert.Error(t, err, "needs a problem confirmation")
	assert.Equal(t, types.ModeConsultant, st.Mode)

	st.ProblemConfirmation = &types.ProblemConfirmation{
		Statement:   "API latency doubled after the 14:00 deploy",
		Urgency:     types.UrgencyHigh,
		ConfirmedAt: now,
	}
	st.Phase = types.PhaseTimeline
	err = EnterLeadInvestigator(st, now)
	assert.Error(t, err, "must start from intake")

	st.Phase = types.PhaseIntake
	require.NoError(t, EnterLeadInvestigator(st, now))
	assert.Equal(t, types.ModeLeadInvestigator, st.Mode)
	assert.Equal(t, types.PhaseBlastRadius, st.Phase)
	assert.Equal(t, types.StatusInProgress, st.Status)
	require.Len(t, st.PhaseHistory, 1)
	assert.Equal(t, types.PhaseIntake, st.PhaseHistory[0].From)

	err = EnterLeadInvestigator(st, now)
	assert.Error(t, err, "no double activation")
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		urgency   types.Urgency
		mitigated bool
		expected  types.InvestigationStrategy
	}{
		{
			name:      "post-mortem temporal language wins over urgency",
			statement: "what caused the outage yesterday",
			urgency:   types.UrgencyCritical,
			expected:  types.StrategyPostMortem,
		},
		{
			name:      "retrospective keyword",
			statement: "we need a retrospective on the payment failures",
			urgency:   types.UrgencyLow,
			expected:  types.StrategyPostMortem,
		},
		{
			name:      "high urgency unmitigated is an active incident",
			statement: "checkout is down right now",
			urgency:   types.UrgencyHigh,
			expected:  types.StrategyActiveIncident,
		},
		{
			name:      "critical urgency unmitigated",
			statement: "all regions failing",
			urgency:   types.UrgencyCritical,
			expected:  types.StrategyActiveIncident,
		},
		{
			name:      "high urgency but already mitigated",
			statement: "checkout failed this morning",
			urgency:   types.UrgencyHigh,
			mitigated: true,
			expected:  types.StrategyPostMortem,
		},
		{
			name:      "low urgency defaults to post-mortem",
			statement: "intermittent timeouts in staging",
			urgency:   types.UrgencyLow,
			expected:  types.StrategyPostMortem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := types.NewInvestigationState("case-1", time.Now().UTC())
			st.ProblemStatement = tt.statement
			st.Urgency = tt.urgency
			st.MitigationRecorded = tt.mitigated
			assert.Equal(t, tt.expected, SelectStrategy(st))
		})
	}
}

func TestShiftToPostMortemIsOneWay(t *testing.T) {
	now := time.Now().UTC()
	st := types.NewInvestigationState("case-1", now)
	st.Strategy = types.StrategyActiveIncident

	ShiftToPostMortem(st, now)
	assert.Equal(t, types.StrategyPostMortem, st.Strategy)
	assert.True(t, st.MitigationRecorded)

	// Calling again from PostMortem is a no-op, never a reverse shift.
	st.MitigationRecorded = false
	ShiftToPostMortem(st, now)
	assert.Equal(t, types.StrategyPostMortem, st.Strategy)
	assert.False(t, st.MitigationRecorded)
}

func TestAdvanceAndRevertPhase(t *testing.T) {
	now := time.Now().UTC()
	st := types.NewInvestigationState("case-1", now)
	st.Phase = types.PhaseHypothesis
	st.PhaseIteration = 3

	require.NoError(t, AdvancePhase(st, "hypotheses ranked", now))
	assert.Equal(t, types.PhaseValidation, st.Phase)
	assert.Equal(t, 0, st.PhaseIteration)
	require.Len(t, st.PhaseHistory, 1)

	require.NoError(t, RevertPhase(st, "recovery", now))
	assert.Equal(t, types.PhaseHypothesis, st.Phase)
	require.Len(t, st.PhaseHistory, 2)

	st.Phase = types.PhaseDocument
	err := AdvancePhase(st, "done", now)
	assert.Error(t, err)
}

func TestRevertPhaseWithoutHistory(t *testing.T) {
	st := types.NewInvestigationState("case-1", time.Now().UTC())
	err := RevertPhase(st, "recovery", time.Now().UTC())
	assert.Error(t, err)
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	st := types.NewInvestigationState("case-9", time.Now().UTC())
	st.Status = types.StatusClosed

	err := Transition(st, types.StatusInProgress)
	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Contains(t, ite.Error(), "case-9")
	assert.Contains(t, ite.Error(), "closed")
}
