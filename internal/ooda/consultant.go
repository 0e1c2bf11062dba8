package ooda

import (
	"context"
	"fmt"
	"strings"

	"triage/internal/logging"
	"triage/internal/state"
	"triage/internal/types"
)

const consultantSystemPrompt = `You are a senior reliability engineer giving advice in a quick consult.
Answer the user's question directly and concretely. You are not leading an
investigation yet; do not demand evidence or assign tasks.`

// engagementReplies are the suggested answers attached to the
// take-the-lead offer.
var engagementReplies = []string{
	"Yes, take the lead",
	"No, just advise for now",
}

// consultantTurn handles phase-zero reactive turns: capture the problem,
// answer questions, and offer to take the lead. The investigation loop
// only starts after explicit consent.
func (c *Controller) consultantTurn(ctx context.Context, st *types.InvestigationState, input string) (*types.AgentAction, error) {
	var action *types.AgentAction

	switch {
	case st.ProblemStatement == "":
		st.ProblemStatement = strings.TrimSpace(input)
		st.Urgency = inferUrgency(input)
		action = c.offerEngagement(ctx, st, input)

	default:
		consent, ok := parseConsent(input)
		if !ok {
			// Neither yes nor no; keep consulting and leave the offer open.
			action = &types.AgentAction{
				Kind:             types.ActionConfirmEngage,
				Message:          c.consultReply(ctx, st, input),
				SuggestedReplies: engagementReplies,
			}
			break
		}
		if !consent {
			logging.Engine().Infow("engagement declined, staying in consultant mode",
				"case_id", st.CaseID)
			action = &types.AgentAction{
				Kind:    types.ActionRespond,
				Message: c.consultReply(ctx, st, input),
			}
			break
		}

		st.ProblemConfirmation = &types.ProblemConfirmation{
			Statement:   st.ProblemStatement,
			Urgency:     st.Urgency,
			ConfirmedAt: c.now(),
			TurnNumber:  st.TurnNumber,
		}
		if err := state.EnterLeadInvestigator(st, c.now()); err != nil {
			return nil, err
		}

		fresh := c.generateRequests(ctx, st)
		action = &types.AgentAction{
			Kind: types.ActionRequestEvidence,
			Message: c.composeReply(ctx, st, input,
				"you just took the lead on the investigation; set expectations and start scoping the blast radius", fresh),
			Requests: fresh,
		}
	}

	c.finishTurn(ctx, st, input, action)
	return action, nil
}

// offerEngagement answers the opening message and asks for permission to
// run the investigation.
func (c *Controller) offerEngagement(ctx context.Context, st *types.InvestigationState, input string) *types.AgentAction {
	answer := c.consultReply(ctx, st, input)
	return &types.AgentAction{
		Kind: types.ActionConfirmEngage,
		Message: fmt.Sprintf(
			"%s\n\nI can also run this as a structured investigation: scope the impact, build the timeline, and work hypotheses until we have a root cause. Want me to take the lead?", answer),
		SuggestedReplies: engagementReplies,
	}
}

// consultReply generates a reactive answer, falling back to a neutral
// acknowledgment on generation failure.
func (c *Controller) consultReply(ctx context.Context, st *types.InvestigationState, input string) string {
	var b strings.Builder
	if st.ProblemStatement != "" {
		fmt.Fprintf(&b, "Problem under discussion: %s\n", st.ProblemStatement)
	}
	if mem := c.memory.Context(st); mem != "" {
		fmt.Fprintf(&b, "\nConversation so far:\n%s\n", mem)
	}
	fmt.Fprintf(&b, "\nUser says:\n%s\n", input)

	reply, err := c.client.CompleteWithSystem(ctx, consultantSystemPrompt, b.String())
	if err != nil {
		logging.Engine().Warnw("consultant reply generation failed, using fallback",
			"case_id", st.CaseID, "error", err)
		return "Got it. Tell me more about what you're seeing, or say the word and I'll take the lead on investigating."
	}
	return strings.TrimSpace(reply)
}

// parseConsent reads a yes/no answer to the take-the-lead offer.
func parseConsent(input string) (consent, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(input))
	switch {
	case strings.HasPrefix(lower, "yes") || strings.Contains(lower, "take the lead") ||
		strings.Contains(lower, "go ahead") || strings.Contains(lower, "please investigate") ||
		strings.Contains(lower, "take over"):
		return true, true
	case strings.HasPrefix(lower, "no") || strings.Contains(lower, "just advise") ||
		strings.Contains(lower, "not yet") || strings.Contains(lower, "hold off"):
		return false, true
	}
	return false, false
}

// inferUrgency grades the problem statement from its language. The user
// can always override by restating; this only seeds strategy selection.
func inferUrgency(input string) types.Urgency {
	lower := strings.ToLower(input)
	critical := []string{"outage", "all users", "data loss", "completely down", "production is down", "sev1", "sev-1"}
	high := []string{"down", "failing", "errors", "can't", "cannot", "broken", "degraded", "production", "customers"}
	low := []string{"wondering", "curious", "someday", "minor", "cosmetic", "question about"}

	for _, m := range critical {
		if strings.Contains(lower, m) {
			return types.UrgencyCritical
		}
	}
	for _, m := range high {
		if strings.Contains(lower, m) {
			return types.UrgencyHigh
		}
	}
	for _, m := range low {
		if strings.Contains(lower, m) {
			return types.UrgencyLow
		}
	}
	return types.UrgencyMedium
}
