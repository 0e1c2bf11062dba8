package evidence

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/llm"
	"triage/internal/types"
)

func activeSnapshot(ids ...string) []*types.EvidenceRequest {
	out := make([]*types.EvidenceRequest, len(ids))
	for i, id := range ids {
		out[i] = &types.EvidenceRequest{
			RequestID: id,
			Label:     "request " + id,
			Category:  types.CategorySymptoms,
			Status:    types.RequestPending,
		}
	}
	return out
}

func TestClassifyStructuredResponse(t *testing.T) {
	fake := &llm.FakeClient{Responses: []string{"```json\n" + `{
		"matches": [{"request_id": "req-1", "completeness_score": 0.9}],
		"form": "user_input",
		"evidence_type": "supportive",
		"intent": "providing_evidence"
	}` + "\n```"}}

	c := NewClassifier(fake, 6)
	cls, err := c.Classify(context.Background(), "error rate spiked at 14:02",
		activeSnapshot("req-1", "req-2"), nil, nil)
	require.NoError(t, err)

	assert.False(t, cls.LowConfidence)
	assert.Equal(t, []string{"req-1"}, cls.MatchedRequestIDs())
	assert.Equal(t, types.EvidenceSupportive, cls.EvidenceType)
	assert.Equal(t, types.IntentProvidingEvidence, cls.Intent)
	assert.Equal(t, types.LevelComplete, cls.Level())
}

func TestClassifyDropsMatchesOutsideSnapshot(t *testing.T) {
	fake := &llm.FakeClient{Responses: []string{`{
		"matches": [
			{"request_id": "req-1", "completeness_score": 1.7},
			{"request_id": "req-ghost", "completeness_score": 0.9}
		],
		"form": "document",
		"evidence_type": "neutral",
		"intent": "providing_evidence"
	}`}}

	c := NewClassifier(fake, 6)
	cls, err := c.Classify(context.Background(), "attached the dump",
		activeSnapshot("req-1"), nil, nil)
	require.NoError(t, err)

	require.Len(t, cls.Matches, 1)
	assert.Equal(t, "req-1", cls.Matches[0].RequestID)
	assert.Equal(t, 1.0, cls.Matches[0].CompletenessScore, "scores clamp to [0,1]")
}

func TestClassifyFallbackOnUnparseableResponse(t *testing.T) {
	fake := &llm.FakeClient{Responses: []string{
		"Sure! The user seems to be providing evidence about the logs.",
	}}

	c := NewClassifier(fake, 6)
	cls, err := c.Classify(context.Background(), "I checked the logs and found nothing at all, no errors",
		activeSnapshot("req-1"), nil, nil)
	require.NoError(t, err)

	assert.True(t, cls.LowConfidence)
	assert.Empty(t, cls.Matches)
	assert.Equal(t, types.EvidenceAbsence, cls.EvidenceType)
}

func TestClassifyFallbackDetectsUnavailable(t *testing.T) {
	fake := &llm.FakeClient{Responses: []string{"not json"}}

	c := NewClassifier(fake, 6)
	cls, err := c.Classify(context.Background(), "I don't have access to the dashboard",
		activeSnapshot("req-1"), nil, nil)
	require.NoError(t, err)

	assert.True(t, cls.LowConfidence)
	assert.Equal(t, types.IntentReportingUnavailable, cls.Intent)
	assert.NotEmpty(t, cls.UnavailableReason)
}

func TestClassifyFallbackDetectsQuestion(t *testing.T) {
	fake := &llm.FakeClient{Responses: []string{"???"}}

	c := NewClassifier(fake, 6)
	cls, err := c.Classify(context.Background(), "could this be DNS?",
		nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, types.IntentAskingQuestion, cls.Intent)
}

// Same input against the same snapshot yields the same matches and
// evidence type.
func TestClassifyDeterministicForSameInput(t *testing.T) {
	response := `{
		"matches": [{"request_id": "req-1", "completeness_score": 0.6}],
		"form": "user_input",
		"evidence_type": "refuting",
		"intent": "providing_evidence",
		"contradiction_confidence": 0.8,
		"contradicted_hypothesis_id": "hyp-1"
	}`
	fake := &llm.FakeClient{CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
		return response, nil
	}}

	c := NewClassifier(fake, 6)
	snapshot := activeSnapshot("req-1", "req-2")

	first, err := c.Classify(context.Background(), "the cache was cold the whole time", snapshot, nil, nil)
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), "the cache was cold the whole time", snapshot, nil, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("classification differs between identical calls (-first +second):\n%s", diff)
	}
	assert.Equal(t, types.EvidenceRefuting, first.EvidenceType)
	assert.Equal(t, "hyp-1", first.ContradictedHypothesisID)
}

func TestClassifyInvalidEnumsGetDefaults(t *testing.T) {
	fake := &llm.FakeClient{Responses: []string{`{
		"matches": [],
		"form": "carrier_pigeon",
		"evidence_type": "maybe",
		"intent": "vibes"
	}`}}

	c := NewClassifier(fake, 6)
	cls, err := c.Classify(context.Background(), "hello", nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, types.FormUserInput, cls.Form)
	assert.Equal(t, types.EvidenceNeutral, cls.EvidenceType)
	assert.Equal(t, types.IntentProvidingEvidence, cls.Intent)
}

func TestClassifyPromptIncludesSnapshotAndHistory(t *testing.T) {
	fake := &llm.FakeClient{Responses: []string{`{"matches":[],"form":"user_input","evidence_type":"neutral","intent":"clarifying"}`}}

	c := NewClassifier(fake, 2)
	history := []string{"turn1", "turn2", "turn3", "turn4"}
	hyp := []*types.Hypothesis{{ID: "hyp-9", Statement: "disk full on node 3", Likelihood: 0.4}}

	_, err := c.Classify(context.Background(), "as I said before", activeSnapshot("req-7"), hyp, history)
	require.NoError(t, err)

	require.Len(t, fake.Prompts, 1)
	prompt := fake.Prompts[0]
	assert.Contains(t, prompt, "req-7")
	assert.Contains(t, prompt, "disk full on node 3")
	assert.Contains(t, prompt, "turn4")
	assert.False(t, strings.Contains(prompt, "turn1"), "history window should truncate old turns")
}
