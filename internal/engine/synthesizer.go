package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// minClusterSize is the smallest cluster worth synthesizing over.
const minClusterSize = 3

// Synthesize asks the bound reasoner to derive higher-level claims from a
// cluster of existing claims, enforcing the derived-claim interval contract:
// a synthesized interval must be at least as uncertain as its parents.
// Accepted proposals are inserted with derived_from edges to every parent.
func (b *Boswell) Synthesize(ctx context.Context, namespace, subject string) ([]AssertResult, error) {
	reasoner, err := b.registry.Reasoner("")
	if err != nil {
		return nil, err
	}

	cluster, err := b.store.QueryStructural(ctx, storage.StructuralFilter{
		Subject:   subject,
		Namespace: namespace,
		Limit:     50,
	})
	if err != nil {
		return nil, err
	}
	if len(cluster) < minClusterSize {
		return nil, nil
	}

	proposals, err := reasoner.Synthesize(ctx, cluster, namespace)
	if err != nil {
		return nil, err
	}

	parentIntervals := make([]types.ConfidenceInterval, len(cluster))
	for i := range cluster {
		parentIntervals[i] = cluster[i].BaseConfidence
	}

	var results []AssertResult
	for _, p := range proposals {
		interval := types.ConfidenceInterval{Lo: p.Lo, Hi: p.Hi}
		if err := interval.Validate(); err != nil {
			log.Printf("engine: synthesize: dropping proposal with invalid interval: %v", err)
			continue
		}
		if !CheckSynthesizedBounds(interval, parentIntervals) {
			log.Printf("engine: synthesize: dropping proposal narrower than its parents: [%v, %v]",
				p.Lo, p.Hi)
			continue
		}

		res, err := b.Assert(ctx, AssertInput{
			Subject:       p.Subject,
			Predicate:     p.Predicate,
			Object:        p.Object,
			RawExpression: p.RawExpression,
			Namespace:     namespace,
			SourceType:    types.SourceInference,
			SourceID:      "synthesizer:" + reasoner.Name(),
			Contribution:  p.Hi,
		})
		if err != nil {
			if storage.Fatal(err) {
				continue
			}
			return results, err
		}
		results = append(results, *res)
		if res.Outcome != OutcomeCreated {
			continue
		}

		for i := range cluster {
			rel := &types.Relationship{
				SourceID:  res.ClaimID,
				TargetID:  cluster[i].ID,
				Type:      types.RelDerivedFrom,
				Strength:  1,
				CreatedAt: b.now(),
			}
			if err := b.store.AddRelationship(ctx, rel); err != nil {
				return results, fmt.Errorf("engine: synthesize: failed to link parent %s: %w",
					cluster[i].ID, err)
			}
			b.confidence.Forget(cluster[i].ID)
		}
		b.confidence.Forget(res.ClaimID)
	}
	return results, nil
}
