package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/llm"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// GateVerdict is the gatekeeper's resolved decision: the landing tier, the
// raw decision kind, the reasoning to persist, and the reasoner that
// produced it.
type GateVerdict struct {
	Tier      types.Tier
	Decision  llm.PromotionDecision
	Reasoning string
	Reasoner  string
}

// Gatekeeper is the policy authority for tier-crossing writes and explicit
// promotions. Three boundaries may be bound to independent reasoners with
// independent timeouts; every write succeeds at SOME tier — rejection means
// landing at ephemeral, never failure.
type Gatekeeper struct {
	store    storage.ClaimStore
	registry *llm.Registry
	cfg      config.GatekeeperConfig
}

// NewGatekeeper builds the gatekeeper over the store and provider registry.
func NewGatekeeper(store storage.ClaimStore, registry *llm.Registry, cfg config.GatekeeperConfig) *Gatekeeper {
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = 20
	}
	return &Gatekeeper{store: store, registry: registry, cfg: cfg}
}

// boundaryBinding names the reasoner for the boundary ending at target.
func (g *Gatekeeper) boundaryBinding(target types.Tier) string {
	switch target {
	case types.TierTask:
		return g.cfg.EphemeralTaskReasoner
	case types.TierProject:
		return g.cfg.TaskProjectReasoner
	case types.TierPermanent:
		return g.cfg.ProjectPermanentReasoner
	default:
		return ""
	}
}

// Evaluate judges a candidate claim against the target tier. promotion
// marks an explicit promotion, which is the only path to permanent.
//
// When the bound reasoner is temporarily unavailable the decision is defer:
// the claim is provisionally placed at the requested tier minus one, and the
// decision may be re-applied later.
func (g *Gatekeeper) Evaluate(ctx context.Context, claim *types.Claim, advocacy Advocacy, target types.Tier, promotion bool) (*GateVerdict, error) {
	if target == types.TierPermanent && !promotion {
		return nil, fmt.Errorf("%w: the permanent tier requires an explicit promotion", storage.ErrInvalid)
	}

	reasoner, err := g.registry.Reasoner(g.boundaryBinding(target))
	if err != nil {
		return nil, err
	}

	existing, err := g.store.ClaimsAtTier(ctx, claim.Namespace, target, g.cfg.ContextLimit)
	if err != nil {
		return nil, err
	}

	evalCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	result, err := reasoner.EvaluatePromotion(evalCtx, llm.PromotionRequest{
		Claim:               *claim,
		PerceivedImportance: advocacy.PerceivedImportance,
		AdvocacyConfidence:  advocacy.AdvocacyConfidence,
		TargetTier:          target,
		Context:             existing,
	})
	if err != nil {
		if storage.Retryable(err) {
			below, _ := target.Previous()
			log.Printf("gatekeeper: reasoner %s unavailable, deferring %s to %s: %v",
				reasoner.Name(), claim.ID, below, err)
			return &GateVerdict{
				Tier:      below,
				Decision:  llm.DecisionDefer,
				Reasoning: fmt.Sprintf("gatekeeper deferred: reasoner unavailable, provisionally stored at %s", below),
				Reasoner:  reasoner.Name(),
			}, nil
		}
		return nil, err
	}

	verdict := &GateVerdict{
		Decision:  result.Decision,
		Reasoning: result.Reasoning,
		Reasoner:  reasoner.Name(),
	}
	switch result.Decision {
	case llm.DecisionAccept:
		verdict.Tier = target
	case llm.DecisionDowngrade:
		verdict.Tier = result.DowngradeTo
	case llm.DecisionReject:
		verdict.Tier = types.TierEphemeral
	default:
		return nil, fmt.Errorf("%w: reasoner returned decision %q", llm.ErrMalformed, result.Decision)
	}
	return verdict, nil
}
