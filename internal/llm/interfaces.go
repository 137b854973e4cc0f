// Package llm defines the provider ports the claim engine consumes: an
// Embedder turning text into fixed-dimension vectors and a Reasoner covering
// the LLM-assisted capabilities (extraction, promotion evaluation,
// synthesis, contradiction detection, confidence evaluation, domain
// classification).
//
// The engine never defines prompts beyond this package; providers register
// by name and subsystems refer to a named binding.
package llm

import (
	"context"

	"github.com/boswell-ai/boswell/pkg/types"
)

// Embedder turns text into instance-dimension vectors.
type Embedder interface {
	// Vector embeds a single text.
	Vector(ctx context.Context, text string) ([]float32, error)

	// Vectors embeds a batch in one provider call where supported.
	Vectors(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed output dimension.
	Dimension() int

	// Model returns the active embedding model name.
	Model() string
}

// ClaimProposal is one claim extracted from free text.
type ClaimProposal struct {
	Subject       string  `json:"subject"`
	Predicate     string  `json:"predicate"`
	Object        string  `json:"object"`
	RawExpression string  `json:"raw_expression"`
	Confidence    float64 `json:"confidence"`
}

// PromotionDecision is the gatekeeper verdict kind.
type PromotionDecision string

// Promotion decisions.
const (
	DecisionAccept    PromotionDecision = "accept"
	DecisionDowngrade PromotionDecision = "downgrade"
	DecisionReject    PromotionDecision = "reject_to_ephemeral"
	DecisionDefer     PromotionDecision = "defer"
)

// PromotionRequest carries everything the reasoner needs to evaluate a
// tier-crossing write.
type PromotionRequest struct {
	Claim types.Claim

	// PerceivedImportance and AdvocacyConfidence are the writer's advocacy
	// tuple, both in [0, 1]. Request-scoped; never persisted on the claim.
	PerceivedImportance float64
	AdvocacyConfidence  float64

	// TargetTier is the tier the write is asking for.
	TargetTier types.Tier

	// Context is the bounded set of existing claims at the target tier in
	// the same namespace.
	Context []types.Claim
}

// PromotionResult is the reasoner's verdict.
type PromotionResult struct {
	Decision PromotionDecision `json:"decision"`

	// DowngradeTo names the landing tier for downgrade decisions.
	DowngradeTo types.Tier `json:"downgrade_to,omitempty"`

	// Reasoning is persisted verbatim as gatekeeper_reasoning provenance.
	Reasoning string `json:"reasoning"`
}

// ClaimPair is a candidate contradiction pair.
type ClaimPair struct {
	A types.Claim
	B types.Claim
}

// ContradictionVerdict answers whether a pair semantically contradicts.
type ContradictionVerdict struct {
	Contradicts bool   `json:"contradicts"`
	Rationale   string `json:"rationale"`
}

// SynthProposal is a synthesizer-produced derived claim.
type SynthProposal struct {
	Subject       string  `json:"subject"`
	Predicate     string  `json:"predicate"`
	Object        string  `json:"object"`
	RawExpression string  `json:"raw_expression"`
	Lo            float64 `json:"lo"`
	Hi            float64 `json:"hi"`
}

// IntervalWithReasoning is the deliberate-mode confidence evaluation result.
type IntervalWithReasoning struct {
	Lo        float64 `json:"lo"`
	Hi        float64 `json:"hi"`
	Reasoning string  `json:"reasoning"`
}

// Classification assigns a claim to a domain profile.
type Classification struct {
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
}

// Reasoner is the LLM capability port. Implementations translate provider
// faults into the error taxonomy: Unavailable, Rejected, Malformed, Timeout,
// or Unsupported.
type Reasoner interface {
	// ExtractClaims turns free text into claim proposals.
	ExtractClaims(ctx context.Context, text, context_ string) ([]ClaimProposal, error)

	// EvaluatePromotion judges a tier-crossing write.
	EvaluatePromotion(ctx context.Context, req PromotionRequest) (*PromotionResult, error)

	// Synthesize proposes derived claims from a cluster.
	Synthesize(ctx context.Context, cluster []types.Claim, namespace string) ([]SynthProposal, error)

	// DetectContradictions judges candidate pairs.
	DetectContradictions(ctx context.Context, pairs []ClaimPair) ([]ContradictionVerdict, error)

	// EvaluateConfidence produces query-contextual intervals with narrative.
	EvaluateConfidence(ctx context.Context, claims []types.Claim, queryContext string) ([]IntervalWithReasoning, error)

	// ClassifyDomain assigns a claim to one of the given profiles.
	ClassifyDomain(ctx context.Context, claim types.Claim, profiles []string) (*Classification, error)

	// Name identifies the provider binding.
	Name() string
}
