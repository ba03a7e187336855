package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrictness(t *testing.T) {
	cases := map[string]Strictness{
		"":              StrictnessNormal,
		"loose":         StrictnessLoose,
		"Loose Filter":  StrictnessLoose,
		"NORMAL":        StrictnessNormal,
		"Strict Filter": StrictnessStrict,
	}
	for in, want := range cases {
		got, err := ParseStrictness(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStrictness("brutal")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestStrictnessInstructions(t *testing.T) {
	assert.Equal(t, "Be a loose filter where most ideas will pass.", StrictnessLoose.Instruction())
	assert.Contains(t, StrictnessStrict.Instruction(), "extremely strict filter")
	assert.Empty(t, StrictnessNormal.Instruction())
	assert.Empty(t, Strictness("unknown").Instruction())
}

func TestEvaluationConfigValidate(t *testing.T) {
	cfg := EvaluationConfig{Strictness: StrictnessNormal, MaxTokens: 300}
	require.NoError(t, cfg.Validate())

	cfg.MaxTokens = MaxTokensLimit + 1
	assert.True(t, IsKind(cfg.Validate(), KindValidation))

	cfg.MaxTokens = 0
	assert.Error(t, cfg.Validate())
}

func TestBatchResultViews(t *testing.T) {
	b := &BatchResult{Items: []ItemResult{
		{Idea: Idea{ID: "1"}, Verdict: Verdict{Decision: DecisionKeep}},
		{Idea: Idea{ID: "2"}, Verdict: Verdict{Decision: DecisionFilter}},
		{Idea: Idea{ID: "3"}, Verdict: DegradedVerdict(errors.New("boom"))},
	}}

	assert.Len(t, b.All(), 3)
	require.Len(t, b.Kept(), 2)
	assert.Equal(t, "1", b.Kept()[0].Idea.ID)
	assert.Equal(t, "3", b.Kept()[1].Idea.ID)
	require.Len(t, b.Filtered(), 1)
	assert.Equal(t, "Filter", b.Filtered()[0].IsFiltered())

	kept, filtered, degraded := b.Counts()
	assert.Equal(t, 2, kept)
	assert.Equal(t, 1, filtered)
	assert.Equal(t, 1, degraded)
}

func TestDegradedVerdictDefaultsToKeep(t *testing.T) {
	v := DegradedVerdict(errors.New("quota exceeded"))
	assert.Equal(t, DecisionKeep, v.Decision)
	assert.True(t, v.Degraded)
	assert.Contains(t, v.Rationale, "quota exceeded")
	assert.Contains(t, v.Analysis, "quota exceeded")
}

func TestIsKindWalksChain(t *testing.T) {
	inner := NewError(KindInference, errors.New("timeout"), "judge: chat")
	outer := fmt.Errorf("pipeline: item 3: %w", inner)

	assert.True(t, IsKind(outer, KindInference))
	assert.False(t, IsKind(outer, KindFetch))
	assert.False(t, IsKind(errors.New("plain"), KindFetch))
	assert.Contains(t, inner.Error(), "timeout")
}

func TestIdeaQuery(t *testing.T) {
	i := Idea{Problem: " The usage of plastic bottles ", Solution: "refill station service"}
	assert.True(t, i.HasProblem())
	assert.Equal(t, "Problem: The usage of plastic bottles. Solution: refill station service", i.Query())
	assert.False(t, Idea{Problem: "  "}.HasProblem())
}
