package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// HashEmbedder is a deterministic, dependency-free embedder: token hashes
// are folded into a fixed-dimension bag-of-words vector. Identical texts map
// to identical vectors and shared vocabulary raises similarity, which is
// exactly what duplicate-detection tests need. It also serves as the
// degraded-mode embedder when no model runtime is configured.
type HashEmbedder struct {
	dimension int
	model     string
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension, model: "hash-bow"}
}

// Vector embeds a single text.
func (e *HashEmbedder) Vector(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimension]++
	}

	// L2-normalize so cosine similarity behaves across text lengths.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Vectors embeds a batch.
func (e *HashEmbedder) Vectors(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Vector(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimension returns the fixed output dimension.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// Model returns the embedder name.
func (e *HashEmbedder) Model() string {
	return e.model
}

// StaticReasoner is a rule-driven Reasoner used in tests and as the fallback
// binding. Promotion decisions come from the advocacy tuple alone;
// extraction and synthesis are unsupported.
type StaticReasoner struct {
	// AcceptThreshold and DowngradeThreshold partition the advocacy product
	// importance × confidence into accept / downgrade / reject bands.
	AcceptThreshold    float64
	DowngradeThreshold float64

	// Err, when set, is returned from every method. Lets tests exercise the
	// Unavailable / Timeout handling paths.
	Err error
}

var _ Reasoner = (*StaticReasoner)(nil)

// NewStaticReasoner creates a static reasoner with the default thresholds.
func NewStaticReasoner() *StaticReasoner {
	return &StaticReasoner{AcceptThreshold: 0.5, DowngradeThreshold: 0.2}
}

// Name identifies the provider binding.
func (r *StaticReasoner) Name() string {
	return "static"
}

// ExtractClaims is unsupported; extraction requires a model-backed reasoner.
func (r *StaticReasoner) ExtractClaims(_ context.Context, _, _ string) ([]ClaimProposal, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return nil, fmt.Errorf("%w: static reasoner cannot extract claims", storage.ErrUnsupported)
}

// EvaluatePromotion applies the threshold rule to the advocacy product.
func (r *StaticReasoner) EvaluatePromotion(_ context.Context, req PromotionRequest) (*PromotionResult, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	score := req.PerceivedImportance * req.AdvocacyConfidence
	switch {
	case score >= r.AcceptThreshold:
		return &PromotionResult{
			Decision:  DecisionAccept,
			Reasoning: fmt.Sprintf("advocacy score %.2f meets the %s bar", score, req.TargetTier),
		}, nil
	case score >= r.DowngradeThreshold:
		below, ok := req.TargetTier.Previous()
		if !ok {
			return &PromotionResult{
				Decision:  DecisionReject,
				Reasoning: fmt.Sprintf("advocacy score %.2f below the %s bar", score, req.TargetTier),
			}, nil
		}
		return &PromotionResult{
			Decision:    DecisionDowngrade,
			DowngradeTo: below,
			Reasoning:   fmt.Sprintf("advocacy score %.2f suggests %s, not %s", score, below, req.TargetTier),
		}, nil
	default:
		return &PromotionResult{
			Decision:  DecisionReject,
			Reasoning: fmt.Sprintf("advocacy score %.2f too low for %s", score, req.TargetTier),
		}, nil
	}
}

// Synthesize is unsupported.
func (r *StaticReasoner) Synthesize(_ context.Context, _ []types.Claim, _ string) ([]SynthProposal, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return nil, fmt.Errorf("%w: static reasoner cannot synthesize", storage.ErrUnsupported)
}

// DetectContradictions affirms every structurally aligned pair: same
// subject and predicate with different objects reads as a contradiction
// without model help.
func (r *StaticReasoner) DetectContradictions(_ context.Context, pairs []ClaimPair) ([]ContradictionVerdict, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	verdicts := make([]ContradictionVerdict, len(pairs))
	for i, p := range pairs {
		aligned := p.A.Subject == p.B.Subject && p.A.Predicate == p.B.Predicate && p.A.Object != p.B.Object
		verdicts[i] = ContradictionVerdict{
			Contradicts: aligned,
			Rationale:   fmt.Sprintf("objects %q and %q differ for (%s, %s)", p.A.Object, p.B.Object, p.A.Subject, p.A.Predicate),
		}
	}
	return verdicts, nil
}

// EvaluateConfidence echoes each claim's base interval.
func (r *StaticReasoner) EvaluateConfidence(_ context.Context, claims []types.Claim, _ string) ([]IntervalWithReasoning, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	intervals := make([]IntervalWithReasoning, len(claims))
	for i, c := range claims {
		intervals[i] = IntervalWithReasoning{
			Lo:        c.BaseConfidence.Lo,
			Hi:        c.BaseConfidence.Hi,
			Reasoning: "base interval; no contextual evidence considered",
		}
	}
	return intervals, nil
}

// ClassifyDomain picks the first profile.
func (r *StaticReasoner) ClassifyDomain(_ context.Context, _ types.Claim, profiles []string) (*Classification, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no profiles given", storage.ErrInvalid)
	}
	return &Classification{Domain: profiles[0], Confidence: 0.5}, nil
}
