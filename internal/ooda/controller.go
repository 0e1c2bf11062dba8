// Package ooda runs the investigation loop: one Observe, Orient, Decide,
// Act cycle per user turn, with per-case turn leases, all-or-nothing turn
// state, and loop recovery.
package ooda

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triage/internal/config"
	"triage/internal/evidence"
	"triage/internal/llm"
	"triage/internal/logging"
	"triage/internal/memory"
	"triage/internal/recovery"
	"triage/internal/state"
	"triage/internal/store"
	"triage/internal/types"
)

// ErrTurnInFlight is returned when a turn for the case is already being
// processed. The caller should retry after the current turn completes.
var ErrTurnInFlight = errors.New("a turn is already in progress for this case")

// Controller owns phase, status, and mode writes and drives the loop.
type Controller struct {
	cfg        config.OODAConfig
	client     llm.Client
	ledger     *evidence.Ledger
	classifier *evidence.Classifier
	memory     *memory.Manager
	detector   *recovery.Detector
	recovery   *recovery.Manager
	store      store.Store
	locks      *CaseLocks

	now func() time.Time
}

// NewController wires the engine together.
func NewController(cfg config.OODAConfig, client llm.Client, ledger *evidence.Ledger, classifier *evidence.Classifier, mem *memory.Manager, detector *recovery.Detector, rec *recovery.Manager, st store.Store) *Controller {
	return &Controller{
		cfg:        cfg,
		client:     client,
		ledger:     ledger,
		classifier: classifier,
		memory:     mem,
		detector:   detector,
		recovery:   rec,
		store:      st,
		locks:      NewCaseLocks(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// OpenCase creates and persists a fresh case in consultant intake.
func (c *Controller) OpenCase(ctx context.Context, caseID string) (*types.InvestigationState, error) {
	st := types.NewInvestigationState(caseID, c.now())
	if err := c.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("open case %s: %w", caseID, err)
	}
	logging.Engine().Infow("opened case", "case_id", caseID)
	return st, nil
}

// ProcessTurn handles one user turn end to end. The turn is atomic: a
// cancellation or failure before Act rolls every staged write back and
// nothing is persisted.
func (c *Controller) ProcessTurn(ctx context.Context, caseID, input string, file *types.FileMetadata) (*types.AgentAction, error) {
	release, ok := c.locks.TryAcquire(caseID)
	if !ok {
		return nil, ErrTurnInFlight
	}
	defer func() {
		if release != nil {
			release()
		}
	}()

	st, err := c.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := state.Guard(st); err != nil {
		return nil, err
	}

	txn, err := beginTurn(st)
	if err != nil {
		return nil, err
	}

	st.TurnNumber++
	action, err := c.runTurn(ctx, st, input, file)
	if err != nil {
		txn.Rollback()
		return c.degradedAction(st, err)
	}
	if ctx.Err() != nil {
		txn.Rollback()
		return nil, fmt.Errorf("turn cancelled for case %s: %w", caseID, ctx.Err())
	}

	st.UpdatedAt = c.now()
	if err := c.store.Save(ctx, st); err != nil {
		txn.Rollback()
		return nil, fmt.Errorf("persist turn for case %s: %w", caseID, err)
	}
	txn.Commit()

	// Deferred compaction runs after the reply is on its way, still under
	// the turn lease so no other turn observes mid-compression state.
	if st.Memory.PendingCompression {
		held := release
		release = nil
		go c.compressDeferred(st, held)
	}
	return action, nil
}

func (c *Controller) compressDeferred(st *types.InvestigationState, release func()) {
	defer release()
	ctx := context.Background()
	if err := c.memory.Compress(ctx, st, st.TurnNumber); err != nil {
		logging.Engine().Warnw("deferred compression failed, retrying next cycle",
			"case_id", st.CaseID, "error", err)
		return
	}
	if err := c.store.Save(ctx, st); err != nil {
		logging.Engine().Errorw("persisting deferred compression failed",
			"case_id", st.CaseID, "error", err)
	}
}

func (c *Controller) runTurn(ctx context.Context, st *types.InvestigationState, input string, file *types.FileMetadata) (*types.AgentAction, error) {
	if st.Mode == types.ModeConsultant {
		return c.consultantTurn(ctx, st, input)
	}
	return c.oodaCycle(ctx, st, input, file)
}

// oodaCycle advances the loop by exactly one Observe-to-Act pass.
func (c *Controller) oodaCycle(ctx context.Context, st *types.InvestigationState, input string, file *types.FileMetadata) (*types.AgentAction, error) {
	turn := st.TurnNumber
	st.PhaseIteration++

	// A pending refutation consumes the whole turn; the loop resumes once
	// the user has given a verdict. The turn still lands in the step
	// history so a run of re-asked confirmations is visible to detection.
	if st.AwaitingRefutationConfirmation {
		c.recordStep(st, types.StepOrient)
		action := c.resolveRefutation(ctx, st, input, c.now())
		c.finishTurn(ctx, st, input, action)
		return action, nil
	}

	// Observe: refresh the request set, then freeze the snapshot that
	// bounds what Orient may match this turn.
	c.recordStep(st, types.StepObserve)
	if st.Phase == types.PhaseHypothesis {
		c.generateHypotheses(ctx, st)
	}
	if c.needsRequests(st) {
		c.generateRequests(ctx, st)
	}
	snapshot := st.OpenRequests()

	// Orient: classify the input against the snapshot and fold the result
	// into evidence and hypothesis state.
	c.recordStep(st, types.StepOrient)
	cls, err := c.classifier.Classify(ctx, input, snapshot, activeHypotheses(st), c.recentHistory(st))
	if err != nil {
		return nil, err
	}
	provided := c.ledger.ApplyClassification(st, input, file, cls, turn)
	if action := c.orientHypotheses(st, cls, provided); action != nil {
		c.finishTurn(ctx, st, input, action)
		return action, nil
	}

	// Decide: loop/stall detection first, then the phase exit check.
	c.recordStep(st, types.StepDecide)
	if action, err := c.decide(ctx, st, cls, turn); err != nil || action != nil {
		if err != nil {
			return nil, err
		}
		c.finishTurn(ctx, st, input, action)
		return action, nil
	}

	// Act: compose the reply around whatever requests are still open.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c.recordStep(st, types.StepAct)
	action := c.actRespond(ctx, st, input, cls)
	c.finishTurn(ctx, st, input, action)
	return action, nil
}

// orientHypotheses applies the classification's evidential judgment to
// the hypothesis set. It returns a non-nil action only when the turn must
// suspend for a refutation confirmation.
func (c *Controller) orientHypotheses(st *types.InvestigationState, cls types.EvidenceClassification, provided *types.EvidenceProvided) *types.AgentAction {
	if len(st.Hypotheses) == 0 {
		return nil
	}

	target := st.HypothesisByID(cls.ContradictedHypothesisID)
	if target == nil {
		if hyps := activeHypotheses(st); len(hyps) > 0 {
			target = hyps[0]
		}
	}
	if target == nil {
		return nil
	}

	switch cls.EvidenceType {
	case types.EvidenceRefuting:
		if st.Phase == types.PhaseValidation {
			target.TestCount++
		}
		if st.Phase == types.PhaseValidation && cls.ContradictionConfidence > c.cfg.RefutationConfidenceThreshold {
			return c.raiseRefutation(st, target, provided.EvidenceID, cls.ContradictionConfidence, st.TurnNumber)
		}
		// Low-confidence contradictions just dent the likelihood.
		target.Likelihood = clamp01(target.Likelihood - 0.15)
		target.UpdatedAtTurn = st.TurnNumber

	case types.EvidenceSupportive:
		if st.Phase == types.PhaseValidation {
			target.TestCount++
			if target.Status == types.HypothesisExploring {
				target.Status = types.HypothesisTesting
			}
		}
		target.Likelihood = clamp01(target.Likelihood + 0.15)
		target.EvidenceLinks = unionStrings(target.EvidenceLinks, []string{provided.EvidenceID})
		target.UpdatedAtTurn = st.TurnNumber

		if st.Phase == types.PhaseValidation && target.Likelihood >= 0.8 {
			c.concludeRootCause(st, target)
		}
	}
	return nil
}

// concludeRootCause promotes a validated hypothesis to the root cause
// conclusion and pins it into persistent memory.
func (c *Controller) concludeRootCause(st *types.InvestigationState, h *types.Hypothesis) {
	h.Status = types.HypothesisValidated
	st.RootCause = &types.RootCauseConclusion{
		Statement:    h.Statement,
		HypothesisID: h.ID,
		Confidence:   h.Likelihood,
		TurnNumber:   st.TurnNumber,
	}
	c.memory.AddPersistentInsight(st, "root_cause", h.Statement, st.TurnNumber)
	logging.Engine().Infow("root cause concluded",
		"case_id", st.CaseID, "hypothesis_id", h.ID, "confidence", h.Likelihood)
}

// decide runs detection, recovery, and the phase exit check. A non-nil
// action short-circuits the normal Act.
func (c *Controller) decide(ctx context.Context, st *types.InvestigationState, cls types.EvidenceClassification, turn int) (*types.AgentAction, error) {
	det := c.detector.Check(st, turn)

	// A stalled case resumes as soon as the evidence block clears, which
	// happens when provided evidence unblocks enough requests.
	if st.Status == types.StatusStalled && (det == nil || det.Kind != recovery.DetectEvidenceBlock) {
		if err := state.Transition(st, types.StatusInProgress); err != nil {
			return nil, err
		}
		st.StallReason = ""
		logging.Engine().Infow("stall cleared, investigation resumed", "case_id", st.CaseID)
	}

	if det != nil {
		if det.Kind == recovery.DetectEvidenceBlock {
			return c.stallCase(st, det)
		}

		applied, err := c.recovery.Recover(ctx, st, *det, turn)
		if err != nil {
			var exhausted *recovery.ExhaustedError
			if errors.As(err, &exhausted) {
				return &types.AgentAction{
					Kind:    types.ActionEscalate,
					Message: "I've tried every way I know to get this investigation unstuck and it isn't working. I'd suggest pulling in a human incident commander; I can summarize everything gathered so far.",
				}, nil
			}
			return nil, err
		}
		logging.Engine().Infow("recovery applied", "case_id", st.CaseID, "action", applied)
	}

	// A confirmed restoration report marks the incident mitigated and,
	// for an active incident, shifts the strategy to post-mortem.
	if cls.Intent == types.IntentReportingStatus && mentionsRestoration(st) {
		if st.Strategy == types.StrategyActiveIncident && st.Status == types.StatusInProgress {
			if err := state.Transition(st, types.StatusMitigated); err != nil {
				return nil, err
			}
		}
		state.ShiftToPostMortem(st, c.now())
		if st.Phase == types.PhaseSolution {
			st.MitigationRecorded = true
		}
	}

	if !c.phaseComplete(st) {
		return nil, nil
	}
	return c.advance(ctx, st, turn)
}

// advance moves to the next phase, obsoleting unresolved requests, and
// raises the resolution offers at the end of the pipeline.
func (c *Controller) advance(ctx context.Context, st *types.InvestigationState, turn int) (*types.AgentAction, error) {
	if st.Phase == types.PhaseSolution {
		// Leaving Solution means the fix is in; the case resolves and the
		// document offers go out.
		if err := state.Transition(st, types.StatusResolved); err != nil {
			return nil, err
		}
		st.ResolutionArtifacts.CaseReportOffered = true
		if st.Strategy == types.StrategyPostMortem {
			st.ResolutionArtifacts.RunbookOffered = true
		}
	}

	c.ledger.MarkUnresolvedObsolete(st, turn)
	if err := state.AdvancePhase(st, "phase objectives met", c.now()); err != nil {
		return nil, err
	}

	fresh := c.generateRequests(ctx, st)
	kind := types.ActionAdvancePhase
	if st.ResolutionArtifacts.CaseReportOffered && st.Phase == types.PhaseDocument {
		kind = types.ActionOfferReport
	}
	return &types.AgentAction{
		Kind: kind,
		Message: c.composeReply(ctx, st, "",
			fmt.Sprintf("the investigation just advanced to the %s phase; brief the user and introduce the next steps", st.Phase), fresh),
		Requests: fresh,
	}, nil
}

// stallCase moves the case to Stalled with the blocking reasons and
// offers the user the alternative paths.
func (c *Controller) stallCase(st *types.InvestigationState, det *recovery.Detection) (*types.AgentAction, error) {
	if st.Status != types.StatusStalled {
		if err := state.Transition(st, types.StatusStalled); err != nil {
			return nil, err
		}
	}
	st.StallReason = det.Reason

	return &types.AgentAction{
		Kind:    types.ActionClarify,
		Message: "Most of the evidence I need is blocked, so the investigation is stalled for now. If you can get access to any of the blocked items, or loop in someone who has it, we can pick this right back up.",
	}, nil
}

// actRespond is the default Act: answer, and surface whichever requests
// still need the user's attention.
func (c *Controller) actRespond(ctx context.Context, st *types.InvestigationState, input string, cls types.EvidenceClassification) *types.AgentAction {
	open := st.ActiveRequests()

	kind := types.ActionRespond
	intent := "acknowledge the new evidence and say what it changes"
	switch {
	case cls.Intent == types.IntentAskingQuestion:
		intent = "answer the user's question from the investigation context"
	case len(open) > 0:
		kind = types.ActionRequestEvidence
		intent = "ask for the outstanding evidence"
	}

	return &types.AgentAction{
		Kind:          kind,
		Message:       c.composeReply(ctx, st, input, intent, open),
		Requests:      open,
		LowConfidence: cls.LowConfidence,
	}
}

// finishTurn records the iteration into memory and runs the compression
// cadence. Failures degrade; the reply still goes out.
func (c *Controller) finishTurn(ctx context.Context, st *types.InvestigationState, input string, action *types.AgentAction) {
	c.memory.RecordIteration(ctx, st, types.IterationRecord{
		TurnNumber: st.TurnNumber,
		Phase:      st.Phase,
		UserInput:  input,
		AgentReply: action.Message,
		At:         c.now(),
	})
	if _, err := c.memory.MaybeCompress(ctx, st, st.TurnNumber); err != nil {
		logging.Engine().Warnw("compression failed, retrying next cycle",
			"case_id", st.CaseID, "error", err)
	}
}

func (c *Controller) recordStep(st *types.InvestigationState, step types.OODAStep) {
	st.StepHistory = append(st.StepHistory, types.StepRecord{
		Step:       step,
		TurnNumber: st.TurnNumber,
		Iteration:  st.PhaseIteration,
	})
}

// recentHistory renders the hot tier as classifier history lines.
func (c *Controller) recentHistory(st *types.InvestigationState) []string {
	var lines []string
	for _, rec := range st.Memory.Hot {
		lines = append(lines, fmt.Sprintf("user: %s", rec.UserInput))
		lines = append(lines, fmt.Sprintf("agent: %s", rec.AgentReply))
	}
	return lines
}

// mentionsRestoration looks for service-restored language in this turn's
// provided evidence.
func mentionsRestoration(st *types.InvestigationState) bool {
	for _, p := range st.Provided {
		if p.TurnNumber != st.TurnNumber {
			continue
		}
		lower := strings.ToLower(p.Content)
		for _, marker := range []string{"restored", "back up", "recovered", "working again", "mitigated", "service is up"} {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// degradedAction maps a turn failure to the user-visible behavior its
// error class calls for: transient failures become a retry-pending
// message, permanent generation failures an escalation suggestion, and
// anything else propagates as the error it is.
func (c *Controller) degradedAction(st *types.InvestigationState, err error) (*types.AgentAction, error) {
	var gerr *llm.GenerationError
	if errors.As(err, &gerr) {
		if gerr.Retryable() {
			logging.Engine().Warnw("transient failure, telling user to retry",
				"case_id", st.CaseID, "kind", gerr.Kind)
			return &types.AgentAction{
				Kind:    types.ActionRetryPending,
				Message: "I hit a temporary issue reaching my reasoning backend. Give me about a minute and send that again; nothing you shared was lost.",
			}, nil
		}
		logging.Engine().Errorw("system failure in turn",
			"case_id", st.CaseID, "kind", gerr.Kind, "error", err)
		return &types.AgentAction{
			Kind:    types.ActionEscalate,
			Message: "Something went wrong on my side that a retry won't fix. I'd suggest escalating to the on-call engineer while I stay available for questions.",
		}, nil
	}
	return nil, err
}
