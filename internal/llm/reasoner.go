package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/boswell-ai/boswell/pkg/types"
)

// Completer is the single-string completion capability shared by the HTTP
// adapters. PromptReasoner builds the full Reasoner port on top of it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// PromptReasoner implements Reasoner over any Completer via the prompt
// templates in prompts.go. Both the Ollama and OpenAI adapters use it.
type PromptReasoner struct {
	name      string
	completer Completer
}

var _ Reasoner = (*PromptReasoner)(nil)

// NewPromptReasoner wraps a completer under a binding name.
func NewPromptReasoner(name string, completer Completer) *PromptReasoner {
	return &PromptReasoner{name: name, completer: completer}
}

// Name identifies the provider binding.
func (r *PromptReasoner) Name() string {
	return r.name
}

// ExtractClaims turns free text into claim proposals.
func (r *PromptReasoner) ExtractClaims(ctx context.Context, text, context_ string) ([]ClaimProposal, error) {
	ctxLine := ""
	if context_ != "" {
		ctxLine = "Context: " + context_ + "\n"
	}

	completion, err := r.completer.Complete(ctx, fmt.Sprintf(extractClaimsPrompt, text, ctxLine))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Claims []ClaimProposal `json:"claims"`
	}
	if err := parseInto(completion, &parsed); err != nil {
		return nil, err
	}

	proposals := parsed.Claims[:0]
	for _, p := range parsed.Claims {
		if strings.TrimSpace(p.Subject) == "" || strings.TrimSpace(p.Predicate) == "" ||
			strings.TrimSpace(p.Object) == "" {
			continue
		}
		if p.RawExpression == "" {
			p.RawExpression = fmt.Sprintf("%s %s %s", p.Subject, p.Predicate, p.Object)
		}
		p.Confidence = clamp01(p.Confidence)
		proposals = append(proposals, p)
	}
	return proposals, nil
}

// EvaluatePromotion judges a tier-crossing write.
func (r *PromptReasoner) EvaluatePromotion(ctx context.Context, req PromotionRequest) (*PromotionResult, error) {
	prompt := fmt.Sprintf(evaluatePromotionPrompt,
		req.TargetTier,
		formatClaim(req.Claim),
		req.PerceivedImportance,
		req.AdvocacyConfidence,
		formatClaims(req.Context))

	completion, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var result PromotionResult
	if err := parseInto(completion, &result); err != nil {
		return nil, err
	}

	switch result.Decision {
	case DecisionAccept, DecisionReject:
	case DecisionDowngrade:
		if !result.DowngradeTo.Valid() || result.DowngradeTo.Rank() >= req.TargetTier.Rank() {
			return nil, fmt.Errorf("%w: downgrade target %q not below %q",
				ErrMalformed, result.DowngradeTo, req.TargetTier)
		}
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrMalformed, result.Decision)
	}
	return &result, nil
}

// Synthesize proposes derived claims from a cluster.
func (r *PromptReasoner) Synthesize(ctx context.Context, cluster []types.Claim, namespace string) ([]SynthProposal, error) {
	completion, err := r.completer.Complete(ctx,
		fmt.Sprintf(synthesizePrompt, namespace, formatClaims(cluster)))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Proposals []SynthProposal `json:"proposals"`
	}
	if err := parseInto(completion, &parsed); err != nil {
		return nil, err
	}
	return parsed.Proposals, nil
}

// DetectContradictions judges candidate pairs.
func (r *PromptReasoner) DetectContradictions(ctx context.Context, pairs []ClaimPair) ([]ContradictionVerdict, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	completion, err := r.completer.Complete(ctx,
		fmt.Sprintf(detectContradictionsPrompt, formatPairs(pairs)))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Verdicts []ContradictionVerdict `json:"verdicts"`
	}
	if err := parseInto(completion, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Verdicts) != len(pairs) {
		return nil, fmt.Errorf("%w: got %d verdicts for %d pairs",
			ErrMalformed, len(parsed.Verdicts), len(pairs))
	}
	return parsed.Verdicts, nil
}

// EvaluateConfidence produces query-contextual intervals with narrative.
func (r *PromptReasoner) EvaluateConfidence(ctx context.Context, claims []types.Claim, queryContext string) ([]IntervalWithReasoning, error) {
	if len(claims) == 0 {
		return nil, nil
	}

	completion, err := r.completer.Complete(ctx,
		fmt.Sprintf(evaluateConfidencePrompt, queryContext, formatClaims(claims)))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Intervals []IntervalWithReasoning `json:"intervals"`
	}
	if err := parseInto(completion, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Intervals) != len(claims) {
		return nil, fmt.Errorf("%w: got %d intervals for %d claims",
			ErrMalformed, len(parsed.Intervals), len(claims))
	}
	for i := range parsed.Intervals {
		parsed.Intervals[i].Lo = clamp01(parsed.Intervals[i].Lo)
		parsed.Intervals[i].Hi = clamp01(parsed.Intervals[i].Hi)
		if parsed.Intervals[i].Lo > parsed.Intervals[i].Hi {
			parsed.Intervals[i].Lo = parsed.Intervals[i].Hi
		}
	}
	return parsed.Intervals, nil
}

// ClassifyDomain assigns a claim to one of the given profiles.
func (r *PromptReasoner) ClassifyDomain(ctx context.Context, claim types.Claim, profiles []string) (*Classification, error) {
	completion, err := r.completer.Complete(ctx,
		fmt.Sprintf(classifyDomainPrompt, formatClaim(claim), strings.Join(profiles, ", ")))
	if err != nil {
		return nil, err
	}

	var result Classification
	if err := parseInto(completion, &result); err != nil {
		return nil, err
	}
	result.Confidence = clamp01(result.Confidence)
	return &result, nil
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
