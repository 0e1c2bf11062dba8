// Package evidence owns the evidence request and provided-evidence
// records of an investigation: request creation with guidance safety
// filtering, classification-driven lifecycle updates, and the
// five-dimension classifier itself.
package evidence

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"triage/internal/logging"
	"triage/internal/types"
)

// Ledger mutates the request and provided records of an investigation.
// It is the only component allowed to touch those slices.
type Ledger struct {
	filter *SafetyFilter
}

// NewLedger creates a ledger with the given safety filter.
func NewLedger(filter *SafetyFilter) *Ledger {
	return &Ledger{filter: filter}
}

// CreateRequest validates guidance, strips unsafe commands, enforces the
// per-field caps, and appends a pending request to the investigation.
func (l *Ledger) CreateRequest(st *types.InvestigationState, label, description string, category types.EvidenceCategory, guidance types.AcquisitionGuidance) (*types.EvidenceRequest, error) {
	if label == "" {
		return nil, fmt.Errorf("evidence request needs a label")
	}
	if !category.Valid() {
		return nil, fmt.Errorf("invalid evidence category: %s", category)
	}

	guidance.Commands = l.filter.FilterCommands(guidance.Commands)
	guidance.Alternatives = l.filter.FilterCommands(guidance.Alternatives)
	guidance = capGuidance(guidance)

	req := &types.EvidenceRequest{
		RequestID:     uuid.NewString(),
		Label:         label,
		Description:   description,
		Category:      category,
		Guidance:      guidance,
		Status:        types.RequestPending,
		CreatedAtTurn: st.TurnNumber,
		UpdatedAtTurn: st.TurnNumber,
	}
	st.Requests = append(st.Requests, req)

	logging.Evidence().Infow("created evidence request",
		"case_id", st.CaseID,
		"request_id", req.RequestID,
		"category", category,
		"label", label)

	return req, nil
}

// capGuidance truncates guidance lists to their documented caps.
func capGuidance(g types.AcquisitionGuidance) types.AcquisitionGuidance {
	g.Commands = capList(g.Commands, types.MaxGuidanceCommands)
	g.FileLocations = capList(g.FileLocations, types.MaxGuidanceFileLocations)
	g.UILocations = capList(g.UILocations, types.MaxGuidanceUILocations)
	g.Alternatives = capList(g.Alternatives, types.MaxGuidanceAlternatives)
	g.Prerequisites = capList(g.Prerequisites, types.MaxGuidancePrerequisites)
	if len(g.ExpectedOutput) > types.MaxExpectedOutputChars {
		g.ExpectedOutput = g.ExpectedOutput[:types.MaxExpectedOutputChars]
	}
	return g
}

func capList(s []string, max int) []string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// ApplyClassification records one classified user contribution and updates
// every matched request. Completeness only ever rises (max of contributing
// scores); reporting_unavailable forces blocked and stores the reason.
// Returns the recorded EvidenceProvided entry.
func (l *Ledger) ApplyClassification(st *types.InvestigationState, content string, meta *types.FileMetadata, cls types.EvidenceClassification, turn int) *types.EvidenceProvided {
	for _, match := range cls.Matches {
		req := st.RequestByID(match.RequestID)
		if req == nil {
			logging.Evidence().Warnw("classification matched unknown request",
				"case_id", st.CaseID, "request_id", match.RequestID)
			continue
		}
		if req.Status == types.RequestObsolete {
			continue
		}

		if cls.Intent == types.IntentReportingUnavailable {
			req.Status = types.RequestBlocked
			req.BlockedReason = cls.UnavailableReason
			if req.BlockedReason == "" {
				req.BlockedReason = "user reported the evidence is unavailable"
			}
			req.UpdatedAtTurn = turn
			logging.Evidence().Infow("request blocked",
				"case_id", st.CaseID, "request_id", req.RequestID, "reason", req.BlockedReason)
			continue
		}

		score := clamp01(match.CompletenessScore)
		if score > req.Completeness {
			req.Completeness = score
		}
		wasBlocked := req.Status == types.RequestBlocked
		switch {
		case req.Completeness >= 0.8:
			req.Status = types.RequestComplete
		case req.Completeness >= 0.3:
			req.Status = types.RequestPartial
		default:
			if wasBlocked {
				req.Status = types.RequestPending
			}
		}
		// Matching evidence unblocks: the user found an alternative route.
		if wasBlocked {
			req.BlockedReason = ""
			logging.Evidence().Infow("request unblocked",
				"case_id", st.CaseID, "request_id", req.RequestID, "status", req.Status)
		}
		req.UpdatedAtTurn = turn

		logging.Evidence().Debugw("request updated from classification",
			"case_id", st.CaseID,
			"request_id", req.RequestID,
			"completeness", req.Completeness,
			"status", req.Status)
	}

	provided := types.EvidenceProvided{
		EvidenceID:        uuid.NewString(),
		TurnNumber:        turn,
		Form:              cls.Form,
		Content:           content,
		FileMetadata:      meta,
		AddressesRequests: cls.MatchedRequestIDs(),
		Completeness:      cls.Level(),
		EvidenceType:      cls.EvidenceType,
		UserIntent:        cls.Intent,
		CreatedAt:         time.Now().UTC(),
	}
	st.Provided = append(st.Provided, provided)
	return &st.Provided[len(st.Provided)-1]
}

// MarkUnresolvedObsolete retires every request that did not reach complete
// when the investigation advances phase. Requests are never deleted; the
// obsolete transition is the one place completeness resets.
func (l *Ledger) MarkUnresolvedObsolete(st *types.InvestigationState, turn int) int {
	var count int
	for _, req := range st.Requests {
		switch req.Status {
		case types.RequestPending, types.RequestPartial, types.RequestBlocked:
			req.Status = types.RequestObsolete
			req.Completeness = 0
			req.UpdatedAtTurn = turn
			count++
		}
	}
	if count > 0 {
		logging.Evidence().Infow("marked unresolved requests obsolete",
			"case_id", st.CaseID, "count", count, "turn", turn)
	}
	return count
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
