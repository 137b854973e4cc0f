package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// weakSpotWidth is the interval width above which a claim reads as a weak
// spot, as is any claim whose effective lower bound falls under
// weakSpotFloor.
const (
	weakSpotWidth = 0.5
	weakSpotFloor = 0.2
)

// Reflect assembles a narrative overview of a topic: the supporting claims,
// the weak spots, and the contradictions among them. Claim context is
// fetched by the core; the narrative text comes from the bound reasoner's
// confidence evaluation, with a deterministic fallback when no reasoner is
// available.
func (b *Boswell) Reflect(ctx context.Context, req ReflectRequest) (*ReflectResult, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", storage.ErrInvalid)
	}
	depth := req.Depth
	if depth <= 0 {
		depth = 20
	}

	query := QueryRequest{
		SemanticText:     req.Topic,
		Limit:            depth,
		NamespacePattern: req.Namespace,
	}
	queried, err := b.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &ReflectResult{}
	for _, scored := range queried.Claims {
		if scored.Effective.Width() > weakSpotWidth || scored.Effective.Lo < weakSpotFloor {
			result.WeakSpots = append(result.WeakSpots, scored)
		} else {
			result.Supporting = append(result.Supporting, scored)
		}
	}

	// Contradictions among the fetched set, via the stored edges.
	byID := make(map[types.ClaimID]ScoredClaim, len(queried.Claims))
	for _, scored := range queried.Claims {
		byID[scored.Claim.ID] = scored
	}
	seen := make(map[string]bool)
	for _, scored := range queried.Claims {
		rels, err := b.store.RelationshipsFor(ctx, scored.Claim.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			if r.Type != types.RelContradicts {
				continue
			}
			other, ok := byID[r.SourceID]
			self, ok2 := byID[r.TargetID]
			if !ok || !ok2 {
				continue
			}
			key := r.SourceID.String() + "|" + r.TargetID.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Contradictions = append(result.Contradictions, ContradictionNote{A: other, B: self})
		}
	}

	result.Narrative = b.reflectNarrative(ctx, req.Topic, queried.Claims)
	return result, nil
}

// ReflectStream produces the reflection's claims over an ordered, bounded
// channel. The consumer may stop early by cancelling ctx; the producer
// observes cancellation promptly and closes the channel.
func (b *Boswell) ReflectStream(ctx context.Context, req ReflectRequest) (<-chan ScoredClaim, <-chan error) {
	out := make(chan ScoredClaim, 8)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		result, err := b.Reflect(ctx, req)
		if err != nil {
			errc <- err
			return
		}

		ordered := append(append([]ScoredClaim{}, result.Supporting...), result.WeakSpots...)
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].Claim.ID.Compare(ordered[j].Claim.ID) < 0
		})

		for _, scored := range ordered {
			select {
			case out <- scored:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

// reflectNarrative asks the bound reasoner for claim-by-claim reasoning and
// joins it; without a capable reasoner it falls back to a deterministic
// summary.
func (b *Boswell) reflectNarrative(ctx context.Context, topic string, claims []ScoredClaim) string {
	if len(claims) == 0 {
		return fmt.Sprintf("No claims found for %q.", topic)
	}

	reasoner, err := b.registry.Reasoner("")
	if err == nil {
		raw := make([]types.Claim, len(claims))
		for i := range claims {
			raw[i] = claims[i].Claim
		}
		intervals, err := reasoner.EvaluateConfidence(ctx, raw, "reflection on "+topic)
		if err == nil {
			var sb strings.Builder
			for i, iv := range intervals {
				if iv.Reasoning == "" {
					continue
				}
				if sb.Len() > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(fmt.Sprintf("%s %s %s: %s",
					raw[i].Subject, raw[i].Predicate, raw[i].Object, iv.Reasoning))
			}
			if sb.Len() > 0 {
				return sb.String()
			}
		} else {
			log.Printf("engine: reflect: narrative evaluation failed: %v", err)
		}
	}

	var lo, hi float64
	for _, scored := range claims {
		lo += scored.Effective.Lo
		hi += scored.Effective.Hi
	}
	n := float64(len(claims))
	return fmt.Sprintf("%d claims touch %q with mean effective confidence [%.2f, %.2f].",
		len(claims), topic, lo/n, hi/n)
}
