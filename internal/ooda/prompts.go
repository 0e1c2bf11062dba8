package ooda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"triage/internal/llm"
	"triage/internal/logging"
	"triage/internal/types"
)

const requestGenSystemPrompt = `You are a diagnostic investigator planning what evidence to collect next.
Answer ONLY with a JSON object:
{
  "requests": [
    {
      "label": "short name",
      "description": "what to collect and why it matters",
      "category": "symptoms" | "timeline" | "changes" | "configuration" | "scope" | "metrics" | "environment",
      "commands": ["up to 3 safe read-only shell commands"],
      "file_locations": ["up to 3 paths worth checking"],
      "ui_locations": ["up to 3 dashboard/console locations"],
      "alternatives": ["up to 3 fallbacks if the primary route is unavailable"],
      "prerequisites": ["up to 2 access prerequisites"],
      "expected_output": "what a useful answer looks like, one sentence"
    }
  ]
}
Never suggest destructive commands. Prefer the smallest set of requests that moves the investigation.`

// generateRequests asks the model for evidence request drafts for the
// current phase and files them through the ledger. Generation failures
// degrade to an empty set; the turn still proceeds.
func (c *Controller) generateRequests(ctx context.Context, st *types.InvestigationState) []*types.EvidenceRequest {
	cats := requestCategoriesForPhase(st.Phase)
	catNames := make([]string, len(cats))
	for i, cat := range cats {
		catNames[i] = string(cat)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Investigation phase: %s. Allowed categories: %s. At most %d requests.\n",
		st.Phase, strings.Join(catNames, ", "), c.cfg.MaxRequestsPerTurn)
	fmt.Fprintf(&b, "Problem: %s\n", st.ProblemStatement)
	if mem := c.memory.Context(st); mem != "" {
		fmt.Fprintf(&b, "\nInvestigation so far:\n%s\n", mem)
	}
	if hyps := activeHypotheses(st); len(hyps) > 0 {
		b.WriteString("\nHypotheses under test:\n")
		for _, h := range hyps {
			fmt.Fprintf(&b, "- %s (likelihood %.2f)\n", h.Statement, h.Likelihood)
		}
	}

	raw, err := c.client.CompleteWithSystem(ctx, requestGenSystemPrompt, b.String())
	if err != nil {
		logging.Engine().Warnw("request generation failed, continuing without",
			"case_id", st.CaseID, "error", err)
		return nil
	}

	drafts := parseRequestDrafts(raw)
	if len(drafts) > c.cfg.MaxRequestsPerTurn {
		drafts = drafts[:c.cfg.MaxRequestsPerTurn]
	}

	var created []*types.EvidenceRequest
	for _, d := range drafts {
		req, err := c.ledger.CreateRequest(st, d.Label, d.Description, types.EvidenceCategory(d.Category), types.AcquisitionGuidance{
			Commands:       d.Commands,
			FileLocations:  d.FileLocations,
			UILocations:    d.UILocations,
			Alternatives:   d.Alternatives,
			Prerequisites:  d.Prerequisites,
			ExpectedOutput: d.ExpectedOutput,
		})
		if err != nil {
			logging.Engine().Warnw("skipping invalid request draft",
				"case_id", st.CaseID, "label", d.Label, "error", err)
			continue
		}
		created = append(created, req)
	}
	return created
}

type requestDraft struct {
	Label          string   `json:"label"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Commands       []string `json:"commands"`
	FileLocations  []string `json:"file_locations"`
	UILocations    []string `json:"ui_locations"`
	Alternatives   []string `json:"alternatives"`
	Prerequisites  []string `json:"prerequisites"`
	ExpectedOutput string   `json:"expected_output"`
}

func parseRequestDrafts(raw string) []requestDraft {
	jsonStr := llm.ExtractJSON(raw)
	if jsonStr == "" {
		return nil
	}
	var wire struct {
		Requests []requestDraft `json:"requests"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		logging.Engine().Debugw("request draft parse failed", "error", err)
		return nil
	}
	return wire.Requests
}

const hypothesisGenSystemPrompt = `You are a diagnostic investigator proposing candidate root causes.
Answer ONLY with a JSON object:
{
  "hypotheses": [
    {
      "statement": "one falsifiable root-cause statement",
      "likelihood": 0.5,
      "testing_strategy": "how to validate or refute this with collectable evidence"
    }
  ]
}
Propose distinct, falsifiable explanations grounded in the evidence given.
Never re-propose an explanation listed as already ruled out.`

// generateHypotheses asks the model for candidate root causes and merges
// them into the hypothesis set. Statements matching a recorded dead end
// are dropped to prevent anchoring on eliminated explanations.
func (c *Controller) generateHypotheses(ctx context.Context, st *types.InvestigationState) {
	if len(activeHypotheses(st)) >= c.cfg.MaxHypotheses {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", st.ProblemStatement)
	fmt.Fprintf(&b, "Propose between %d and %d hypotheses.\n", c.cfg.MinHypotheses, c.cfg.MaxHypotheses)
	if mem := c.memory.Context(st); mem != "" {
		fmt.Fprintf(&b, "\nEvidence gathered so far:\n%s\n", mem)
	}
	if len(st.DeadEnds) > 0 {
		b.WriteString("\nAlready ruled out:\n")
		for _, d := range st.DeadEnds {
			fmt.Fprintf(&b, "- %s (%s)\n", d.Hypothesis, d.WhyRuledOut)
		}
	}

	raw, err := c.client.CompleteWithSystem(ctx, hypothesisGenSystemPrompt, b.String())
	if err != nil {
		logging.Engine().Warnw("hypothesis generation failed, continuing without",
			"case_id", st.CaseID, "error", err)
		return
	}

	for _, d := range parseHypothesisDrafts(raw) {
		if d.Statement == "" || isDeadEnd(st, d.Statement) {
			continue
		}
		if len(activeHypotheses(st)) >= c.cfg.MaxHypotheses {
			break
		}
		h := upsertHypothesis(st, d.Statement, clamp01(d.Likelihood), nil, st.TurnNumber)
		if h.TestingStrategy == "" {
			h.TestingStrategy = d.TestingStrategy
		}
	}
}

type hypothesisDraft struct {
	Statement       string  `json:"statement"`
	Likelihood      float64 `json:"likelihood"`
	TestingStrategy string  `json:"testing_strategy"`
}

func parseHypothesisDrafts(raw string) []hypothesisDraft {
	jsonStr := llm.ExtractJSON(raw)
	if jsonStr == "" {
		return nil
	}
	var wire struct {
		Hypotheses []hypothesisDraft `json:"hypotheses"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		logging.Engine().Debugw("hypothesis draft parse failed", "error", err)
		return nil
	}
	return wire.Hypotheses
}

const responderSystemPrompt = `You are the lead investigator in a technical incident investigation.
Write the next reply to the user: concise, concrete, no filler. Reference
the evidence and hypotheses you were given. When evidence requests are
listed, walk the user through what to collect. Never invent evidence the
user did not provide.`

// composeReply generates the user-facing message for the turn. A
// generation failure falls back to a plain templated message so the turn
// never dies on the reply step.
func (c *Controller) composeReply(ctx context.Context, st *types.InvestigationState, userInput, intent string, requests []*types.EvidenceRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s. Strategy: %s. Intent of this reply: %s.\n", st.Phase, st.Strategy, intent)
	if mem := c.memory.Context(st); mem != "" {
		fmt.Fprintf(&b, "\nInvestigation context:\n%s\n", mem)
	}
	fmt.Fprintf(&b, "\nUser just said:\n%s\n", userInput)
	if len(requests) > 0 {
		b.WriteString("\nOpen evidence requests to walk through:\n")
		for _, r := range requests {
			fmt.Fprintf(&b, "- %s: %s\n", r.Label, r.Description)
		}
	}

	reply, err := c.client.CompleteWithSystem(ctx, responderSystemPrompt, b.String())
	if err != nil {
		logging.Engine().Warnw("reply generation failed, using fallback",
			"case_id", st.CaseID, "error", err)
		return fallbackReply(intent, requests)
	}
	return strings.TrimSpace(reply)
}

func fallbackReply(intent string, requests []*types.EvidenceRequest) string {
	if len(requests) == 0 {
		return "Noted. I've updated the investigation with what you shared."
	}
	var b strings.Builder
	b.WriteString("To keep the investigation moving, please collect:\n")
	for _, r := range requests {
		fmt.Fprintf(&b, "- %s", r.Label)
		if r.Description != "" {
			fmt.Fprintf(&b, ": %s", r.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
