package recovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/config"
	"triage/internal/types"
)

// fakeCompressor scripts the compressor slice of the memory manager.
type fakeCompressor struct {
	tokens      []int
	budget      int
	compressErr error
	calls       int
}

func (f *fakeCompressor) Compress(ctx context.Context, st *types.InvestigationState, turn int) error {
	f.calls++
	if f.compressErr != nil {
		return f.compressErr
	}
	if len(f.tokens) > 1 {
		f.tokens = f.tokens[1:]
	}
	return nil
}

func (f *fakeCompressor) ContextTokens(st *types.InvestigationState) int { return f.tokens[0] }
func (f *fakeCompressor) TokenBudget() int                               { return f.budget }

func leadState() *types.InvestigationState {
	st := types.NewInvestigationState("case-1", time.Now().UTC())
	st.Mode = types.ModeLeadInvestigator
	st.Status = types.StatusInProgress
	st.Phase = types.PhaseValidation
	st.PhaseHistory = []types.PhaseTransition{
		{From: types.PhaseHypothesis, To: types.PhaseValidation, TurnNumber: 4},
	}
	return st
}

// Five completed turns that each cut out at Orient trip the step-loop
// rule, even though every turn also recorded the steps before it.
func TestDetectStepLoop(t *testing.T) {
	d := NewDetector(config.DefaultRecoveryConfig())
	st := leadState()

	for i := 0; i < 5; i++ {
		turn := 5 + i
		st.StepHistory = append(st.StepHistory,
			types.StepRecord{Step: types.StepObserve, TurnNumber: turn},
			types.StepRecord{Step: types.StepOrient, TurnNumber: turn},
		)
	}

	det := d.Check(st, 10)
	require.NotNil(t, det)
	assert.Equal(t, DetectStepLoop, det.Kind)
	assert.Contains(t, det.Reason, "orient")
}

func TestNoStepLoopWithMixedSteps(t *testing.T) {
	d := NewDetector(config.DefaultRecoveryConfig())
	st := leadState()

	steps := []types.OODAStep{types.StepObserve, types.StepOrient, types.StepDecide, types.StepAct, types.StepObserve}
	for i, s := range steps {
		st.StepHistory = append(st.StepHistory, types.StepRecord{Step: s, TurnNumber: 5 + i})
	}

	assert.Nil(t, d.Check(st, 10))
}

// Turns that run the whole cycle end at Act; however many of them line
// up, that is progress, not a loop.
func TestNoStepLoopAcrossFullCycles(t *testing.T) {
	d := NewDetector(config.DefaultRecoveryConfig())
	st := leadState()

	for i := 0; i < 6; i++ {
		turn := 5 + i
		for _, s := range []types.OODAStep{types.StepObserve, types.StepOrient, types.StepDecide, types.StepAct} {
			st.StepHistory = append(st.StepHistory, types.StepRecord{Step: s, TurnNumber: turn})
		}
	}

	assert.Nil(t, d.Check(st, 11))
}

// The in-flight turn's partial steps never count toward the window.
func TestStepLoopIgnoresCurrentTurn(t *testing.T) {
	d := NewDetector(config.DefaultRecoveryConfig())
	st := leadState()

	for i := 0; i < 4; i++ {
		st.StepHistory = append(st.StepHistory, types.StepRecord{Step: types.StepOrient, TurnNumber: 5 + i})
	}
	st.StepHistory = append(st.StepHistory,
		types.StepRecord{Step: types.StepObserve, TurnNumber: 9},
		types.StepRecord{Step: types.StepOrient, TurnNumber: 9},
		types.StepRecord{Step: types.StepDecide, TurnNumber: 9},
	)

	assert.Nil(t, d.Check(st, 9))
}

func TestDetectHypothesisLoop(t *testing.T) {
	d := NewDetector(config.DefaultRecoveryConfig())
	st := leadState()
	st.Hypotheses = []*types.Hypothesis{
		{ID: "h1", Statement: "dns cache poisoning", Status: types.HypothesisTesting, TestCount: 3},
	}

	det := d.Check(st, 6)
	require.NotNil(t, det)
	assert.Equal(t, DetectHypothesisLoop, det.Kind)

	// A status change clears the signal even with a high test count.
	st.Hypotheses[0].Status = types.HypothesisRefuted
	assert.Nil(t, d.Check(st, 6))
}

func TestDetectStagnation(t *testing.T) {
	d := NewDetector(config.DefaultRecoveryConfig())
	st := leadState()

	assert.Nil(t, d.Check(st, 8), "within the stagnation window")

	det := d.Check(st, 9)
	require.NotNil(t, det)
	assert.Equal(t, DetectStagnation, det.Kind)

	// Consultant mode never stagnates; the loop is not running.
	st.Mode = types.ModeConsultant
	assert.Nil(t, d.Check(st, 20))
}

// Three simultaneously blocked requests trip the evidence-block rule with
// the blocking reasons collected.
func TestDetectEvidenceBlock(t *testing.T) {
	d := NewDetector(config.DefaultRecoveryConfig())
	st := leadState()
	for i := 0; i < 3; i++ {
		st.Requests = append(st.Requests, &types.EvidenceRequest{
			RequestID:     fmt.Sprintf("req-%d", i),
			Status:        types.RequestBlocked,
			BlockedReason: fmt.Sprintf("no access %d", i),
		})
	}

	det := d.Check(st, 6)
	require.NotNil(t, det)
	assert.Equal(t, DetectEvidenceBlock, det.Kind)
	assert.Contains(t, det.Reason, "no access 1")
}

func TestRecoverForceCompressionFirst(t *testing.T) {
	comp := &fakeCompressor{tokens: []int{1500, 600}, budget: 1000}
	m := NewManager(config.DefaultRecoveryConfig(), comp)
	st := leadState()
	st.PromptTier = types.PromptTierNormal

	action, err := m.Recover(context.Background(), st, Detection{Kind: DetectStepLoop}, 9)
	require.NoError(t, err)
	assert.Contains(t, action, "compressed")
	assert.Equal(t, 1, comp.calls)
	assert.Equal(t, types.PromptTierNormal, st.PromptTier, "later strategies untouched")
}

func TestRecoverSkipsCompressionWhenUnderBudget(t *testing.T) {
	comp := &fakeCompressor{tokens: []int{400}, budget: 1000}
	m := NewManager(config.DefaultRecoveryConfig(), comp)
	st := leadState()
	st.Hypotheses = []*types.Hypothesis{
		{ID: "h1", Statement: "weak theory", Status: types.HypothesisExploring, Likelihood: 0.1},
		{ID: "h2", Statement: "strong theory", Status: types.HypothesisTesting, Likelihood: 0.7},
	}

	action, err := m.Recover(context.Background(), st, Detection{Kind: DetectHypothesisLoop}, 9)
	require.NoError(t, err)
	assert.Contains(t, action, "retired 1")
	assert.Equal(t, 0, comp.calls)

	assert.Equal(t, types.HypothesisRetired, st.Hypotheses[0].Status)
	assert.Equal(t, types.HypothesisTesting, st.Hypotheses[1].Status)
	require.Len(t, st.DeadEnds, 1)
	assert.Equal(t, "weak theory", st.DeadEnds[0].Hypothesis)
}

func TestRecoverFallsThroughToMinimalTier(t *testing.T) {
	comp := &fakeCompressor{tokens: []int{400}, budget: 1000}
	m := NewManager(config.DefaultRecoveryConfig(), comp)
	st := leadState()

	action, err := m.Recover(context.Background(), st, Detection{Kind: DetectStagnation}, 9)
	require.NoError(t, err)
	assert.Contains(t, action, "minimal")
	assert.Equal(t, types.PromptTierMinimal, st.PromptTier)
}

func TestRecoverRevertsPhaseAsLastStrategy(t *testing.T) {
	comp := &fakeCompressor{tokens: []int{400}, budget: 1000}
	m := NewManager(config.DefaultRecoveryConfig(), comp)
	st := leadState()
	st.PromptTier = types.PromptTierMinimal

	action, err := m.Recover(context.Background(), st, Detection{Kind: DetectStepLoop}, 9)
	require.NoError(t, err)
	assert.Contains(t, action, "reverted")
	assert.Equal(t, types.PhaseHypothesis, st.Phase)
}

func TestRecoverExhaustionEscalates(t *testing.T) {
	comp := &fakeCompressor{tokens: []int{400}, budget: 1000}
	m := NewManager(config.DefaultRecoveryConfig(), comp)

	st := types.NewInvestigationState("case-1", time.Now().UTC())
	st.Mode = types.ModeLeadInvestigator
	st.PromptTier = types.PromptTierMinimal
	// No hypotheses to retire and no phase history to revert.

	_, err := m.Recover(context.Background(), st, Detection{Kind: DetectStepLoop, Reason: "stuck"}, 9)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, st.EscalationFlag)
	assert.Contains(t, exhausted.Error(), "stuck")
}
