package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading prose", `Sure! Here you go: {"a": 1}`, `{"a": 1}`},
		{"trailing prose", `{"a": 1} Hope that helps!`, `{"a": 1}`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"braces in strings", `{"a": "{not a brace}"}`, `{"a": "{not a brace}"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestParseInto_Malformed(t *testing.T) {
	var dst struct{ A int }
	err := parseInto("no json here at all", &dst)
	assert.ErrorIs(t, err, ErrMalformed)
}

// fakeCompleter scripts completions for the prompt reasoner.
type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeCompleter) Model() string { return "fake" }

func TestPromptReasoner_ExtractClaims(t *testing.T) {
	fake := &fakeCompleter{response: `{"claims": [
		{"subject": "Acme", "predicate": "is", "object": "mid-size", "raw_expression": "Acme is mid-size", "confidence": 0.8},
		{"subject": "", "predicate": "is", "object": "dropped", "confidence": 0.5},
		{"subject": "Acme", "predicate": "employs", "object": "200 people", "confidence": 1.7}
	]}`}
	r := NewPromptReasoner("test", fake)

	proposals, err := r.ExtractClaims(context.Background(), "some text", "")
	require.NoError(t, err)
	require.Len(t, proposals, 2, "empty-subject proposals are dropped")
	assert.Equal(t, "Acme", proposals[0].Subject)
	assert.Equal(t, 1.0, proposals[1].Confidence, "confidence clamps to [0, 1]")
	assert.NotEmpty(t, proposals[1].RawExpression, "raw expression defaults to the triple")
}

func TestPromptReasoner_EvaluatePromotion(t *testing.T) {
	claim := types.Claim{
		Subject: "Acme", Predicate: "is", Object: "mid-size",
		Tier: types.TierEphemeral,
	}

	t.Run("accept", func(t *testing.T) {
		fake := &fakeCompleter{response: `{"decision": "accept", "reasoning": "clearly important"}`}
		r := NewPromptReasoner("test", fake)
		result, err := r.EvaluatePromotion(context.Background(), PromotionRequest{
			Claim: claim, TargetTier: types.TierProject,
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionAccept, result.Decision)
		assert.Equal(t, "clearly important", result.Reasoning)
	})

	t.Run("downgrade must go below target", func(t *testing.T) {
		fake := &fakeCompleter{response: `{"decision": "downgrade", "downgrade_to": "project", "reasoning": "x"}`}
		r := NewPromptReasoner("test", fake)
		_, err := r.EvaluatePromotion(context.Background(), PromotionRequest{
			Claim: claim, TargetTier: types.TierProject,
		})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("unknown decision", func(t *testing.T) {
		fake := &fakeCompleter{response: `{"decision": "promote-twice", "reasoning": "x"}`}
		r := NewPromptReasoner("test", fake)
		_, err := r.EvaluatePromotion(context.Background(), PromotionRequest{
			Claim: claim, TargetTier: types.TierTask,
		})
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestPromptReasoner_DetectContradictions_CountMismatch(t *testing.T) {
	fake := &fakeCompleter{response: `{"verdicts": [{"contradicts": true, "rationale": "x"}]}`}
	r := NewPromptReasoner("test", fake)

	pairs := []ClaimPair{{}, {}}
	_, err := r.DetectContradictions(context.Background(), pairs)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPromptReasoner_EvaluateConfidence_Clamps(t *testing.T) {
	fake := &fakeCompleter{response: `{"intervals": [{"lo": 0.9, "hi": 0.4, "reasoning": "inverted"}]}`}
	r := NewPromptReasoner("test", fake)

	intervals, err := r.EvaluateConfidence(context.Background(), []types.Claim{{}}, "q")
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.LessOrEqual(t, intervals[0].Lo, intervals[0].Hi)
}

func TestStaticReasoner_PromotionBands(t *testing.T) {
	r := NewStaticReasoner()
	ctx := context.Background()

	accept, err := r.EvaluatePromotion(ctx, PromotionRequest{
		TargetTier: types.TierProject, PerceivedImportance: 0.9, AdvocacyConfidence: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAccept, accept.Decision)

	downgrade, err := r.EvaluatePromotion(ctx, PromotionRequest{
		TargetTier: types.TierProject, PerceivedImportance: 0.9, AdvocacyConfidence: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionDowngrade, downgrade.Decision)
	assert.Equal(t, types.TierTask, downgrade.DowngradeTo)
	assert.NotEmpty(t, downgrade.Reasoning)

	reject, err := r.EvaluatePromotion(ctx, PromotionRequest{
		TargetTier: types.TierTask, PerceivedImportance: 0.1, AdvocacyConfidence: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, reject.Decision)
}

func TestStaticReasoner_Unsupported(t *testing.T) {
	r := NewStaticReasoner()
	_, err := r.ExtractClaims(context.Background(), "text", "")
	assert.ErrorIs(t, err, storage.ErrUnsupported)
	_, err = r.Synthesize(context.Background(), nil, "ns")
	assert.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(16)
	ctx := context.Background()

	a1, err := e.Vector(ctx, "Acme is a mid-size company")
	require.NoError(t, err)
	a2, err := e.Vector(ctx, "Acme is a mid-size company")
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "embedding is deterministic")
	assert.Len(t, a1, 16)

	// Unit norm (non-empty text).
	var norm float64
	for _, v := range a1 {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	batch, err := e.Vectors(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	})
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, func() (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", cb.State())

	// Open circuit fails fast with Unavailable without calling fn.
	called := false
	_, err := cb.Execute(ctx, func() (any, error) { called = true; return nil, nil })
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.False(t, called)

	metrics := cb.Metrics()
	assert.Equal(t, uint64(3), metrics.TotalRequests)
	assert.Equal(t, uint64(3), metrics.TotalFailures)
}

func TestCircuitBreaker_PassesSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	result, err := cb.Execute(context.Background(), func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", cb.State())
}

func TestRegistry_Bindings(t *testing.T) {
	reg := NewRegistry()
	static := NewStaticReasoner()
	reg.RegisterReasoner("static", static)
	reg.RegisterEmbedder("hash", NewHashEmbedder(8))

	// The first registration is the default.
	got, err := reg.Reasoner("")
	require.NoError(t, err)
	assert.Equal(t, static, got)

	_, err = reg.Reasoner("missing")
	assert.ErrorIs(t, err, storage.ErrUnsupported)

	embedder, err := reg.Embedder("hash")
	require.NoError(t, err)
	assert.Equal(t, 8, embedder.Dimension())
}

func TestMapStatusError(t *testing.T) {
	assert.ErrorIs(t, mapStatusError(429, ""), storage.ErrUnavailable)
	assert.ErrorIs(t, mapStatusError(500, ""), storage.ErrUnavailable)
	assert.ErrorIs(t, mapStatusError(401, ""), ErrRejected)
	assert.ErrorIs(t, mapStatusError(404, ""), storage.ErrUnsupported)
}
