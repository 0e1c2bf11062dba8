package ooda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage/internal/logging"
	"triage/internal/types"
)

// refutationReplies are the three suggested answers attached to every
// refutation confirmation prompt.
var refutationReplies = []string{
	"Confirm - that hypothesis is wrong",
	"Dispute - the evidence doesn't rule it out",
	"Uncertain - let's verify before deciding",
}

// raiseRefutation suspends the loop on a high-confidence contradiction.
// The hypothesis is never touched here; only a user confirmation on a
// later turn may refute it.
func (c *Controller) raiseRefutation(st *types.InvestigationState, h *types.Hypothesis, evidenceID string, confidence float64, turn int) *types.AgentAction {
	st.AwaitingRefutationConfirmation = true
	st.PendingRefutation = &types.PendingRefutation{
		HypothesisID:  h.ID,
		EvidenceID:    evidenceID,
		Contradiction: fmt.Sprintf("the latest evidence contradicts %q", h.Statement),
		Confidence:    confidence,
		RaisedAtTurn:  turn,
	}

	logging.Engine().Infow("refutation confirmation requested",
		"case_id", st.CaseID, "hypothesis_id", h.ID, "confidence", confidence)

	return &types.AgentAction{
		Kind: types.ActionConfirmRefute,
		Message: fmt.Sprintf(
			"The evidence you just provided appears to contradict the hypothesis %q (confidence %.0f%%). Before I rule it out, does this match your read?",
			h.Statement, confidence*100),
		SuggestedReplies: refutationReplies,
	}
}

// parseRefutationDecision reads the user's verdict from their reply.
func parseRefutationDecision(input string) (types.RefutationDecision, bool) {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "confirm") || strings.HasPrefix(lower, "yes") ||
		strings.Contains(lower, "that's wrong") || strings.Contains(lower, "rule it out"):
		return types.RefutationConfirm, true
	case strings.Contains(lower, "dispute") || strings.HasPrefix(lower, "no") ||
		strings.Contains(lower, "doesn't rule") || strings.Contains(lower, "disagree"):
		return types.RefutationDispute, true
	case strings.Contains(lower, "uncertain") || strings.Contains(lower, "not sure") ||
		strings.Contains(lower, "verify") || strings.Contains(lower, "don't know"):
		return types.RefutationUncertain, true
	}
	return "", false
}

// resolveRefutation consumes the user's verdict on a pending refutation.
// confirm refutes the hypothesis and triggers regeneration; dispute
// reclassifies the evidence as neutral; uncertain files a re-verification
// request. An unparseable reply re-asks with the same suggestions.
func (c *Controller) resolveRefutation(ctx context.Context, st *types.InvestigationState, input string, now time.Time) *types.AgentAction {
	pending := st.PendingRefutation
	if pending == nil {
		st.AwaitingRefutationConfirmation = false
		return &types.AgentAction{
			Kind:    types.ActionRespond,
			Message: "The contradiction I wanted to check is no longer relevant; continuing the investigation.",
		}
	}
	decision, ok := parseRefutationDecision(input)
	if !ok {
		return &types.AgentAction{
			Kind:             types.ActionConfirmRefute,
			Message:          "I still need your read on the contradiction before moving on: confirm, dispute, or uncertain?",
			SuggestedReplies: refutationReplies,
		}
	}

	st.AwaitingRefutationConfirmation = false
	st.PendingRefutation = nil

	h := st.HypothesisByID(pending.HypothesisID)
	if h == nil {
		return &types.AgentAction{
			Kind:    types.ActionRespond,
			Message: "That hypothesis is no longer active; continuing the investigation.",
		}
	}

	switch decision {
	case types.RefutationConfirm:
		refuteHypothesis(st, h, pending.EvidenceID,
			"user confirmed the contradicting evidence", pending.Confidence, st.TurnNumber, now)
		// A confirmed refutation can empty the candidate pool; replenish
		// it so validation has something left to test.
		if len(activeHypotheses(st)) < c.cfg.MinHypotheses {
			c.generateHypotheses(ctx, st)
		}
		fresh := c.generateRequests(ctx, st)
		return &types.AgentAction{
			Kind: types.ActionRespond,
			Message: c.composeReply(ctx, st, input,
				fmt.Sprintf("hypothesis %q is now refuted; propose where the investigation goes next", h.Statement), fresh),
			Requests: fresh,
		}

	case types.RefutationDispute:
		for i := range st.Provided {
			if st.Provided[i].EvidenceID == pending.EvidenceID {
				st.Provided[i].EvidenceType = types.EvidenceNeutral
			}
		}
		logging.Engine().Infow("refutation disputed, evidence reclassified neutral",
			"case_id", st.CaseID, "evidence_id", pending.EvidenceID)
		return &types.AgentAction{
			Kind:    types.ActionRespond,
			Message: fmt.Sprintf("Understood. I'll treat that evidence as inconclusive and keep %q in play.", h.Statement),
		}

	default: // uncertain
		req, err := c.ledger.CreateRequest(st,
			fmt.Sprintf("Re-verify %q", h.Statement),
			"Collect a second data point that can settle the contradiction",
			types.CategoryMetrics, types.AcquisitionGuidance{})
		if err != nil {
			return &types.AgentAction{
				Kind:    types.ActionRespond,
				Message: "Let's gather one more data point before deciding.",
			}
		}
		return &types.AgentAction{
			Kind:     types.ActionRequestEvidence,
			Message:  fmt.Sprintf("Fair enough. Let's verify before ruling anything out: %s.", req.Description),
			Requests: []*types.EvidenceRequest{req},
		}
	}
}
