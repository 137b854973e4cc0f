package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// Query serves the composed read surface: structural, semantic, or temporal
// candidate selection, shared post-filters, effective confidence from the
// cache-backed engine, and optional deliberate-mode evaluation.
func (b *Boswell) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	var (
		claims       []types.Claim
		similarities map[types.ClaimID]float64
		err          error
	)

	switch {
	case req.SemanticText != "":
		claims, similarities, err = b.querySemantic(ctx, req)
	case req.Temporal != nil:
		claims, err = b.store.QueryTemporal(ctx, req.Temporal.Since, req.Temporal.Until, req.Limit)
		if err == nil {
			claims = b.applySharedFilters(claims, req)
		}
	case req.Structural != nil:
		filter := *req.Structural
		if filter.Namespace == "" {
			filter.Namespace = req.NamespacePattern
		}
		if len(filter.Tiers) == 0 {
			filter.Tiers = req.Tiers
		}
		if len(filter.Statuses) == 0 {
			filter.Statuses = req.Statuses
		}
		claims, err = b.store.QueryStructural(ctx, filter)
	default:
		return nil, fmt.Errorf("%w: query needs a structural, semantic, or temporal selector", storage.ErrInvalid)
	}
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Claims: make([]ScoredClaim, 0, len(claims))}
	for i := range claims {
		claim := claims[i]

		effective, err := b.confidence.Effective(ctx, &claim)
		if err != nil {
			return nil, err
		}
		if req.MinLo > 0 && effective.Lo < req.MinLo {
			continue
		}
		if req.MinHi > 0 && effective.Hi < req.MinHi {
			continue
		}

		if err := b.store.IncrementAccess(ctx, claim.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("engine: query: failed to record access for %s: %v", claim.ID, err)
		}

		scored := ScoredClaim{Claim: claim, Effective: effective}
		if similarities != nil {
			scored.Similarity = similarities[claim.ID]
		}
		result.Claims = append(result.Claims, scored)
	}

	if req.Deliberate {
		if err := b.deliberate(ctx, req, result); err != nil {
			// Deliberate mode is best-effort; the fast-path intervals stand.
			log.Printf("engine: deliberate evaluation failed: %v", err)
		}
	}
	return result, nil
}

// querySemantic runs the vector index for candidate ids and hydrates them
// from the relational store. Semantic reads fail with Unavailable during a
// rebuild.
func (b *Boswell) querySemantic(ctx context.Context, req QueryRequest) ([]types.Claim, map[types.ClaimID]float64, error) {
	if !b.Serving() {
		return nil, nil, fmt.Errorf("%w: instance is rebuilding", storage.ErrUnavailable)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	embedding, err := b.embedder.Vector(ctx, req.SemanticText)
	if err != nil {
		return nil, nil, err
	}

	// Over-fetch so post-filters don't starve the result.
	matches, err := b.index.Search(embedding, limit*4, req.Threshold)
	if err != nil {
		return nil, nil, err
	}

	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = types.DefaultQueryStatuses
	}

	claims := make([]types.Claim, 0, limit)
	similarities := make(map[types.ClaimID]float64, limit)
	for _, m := range matches {
		if len(claims) >= limit {
			break
		}
		claim, err := b.store.Get(ctx, m.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, nil, err
		}
		if !statusAllowed(claim.Status, statuses) {
			continue
		}
		if !b.matchesShared(claim, req) {
			continue
		}
		claims = append(claims, *claim)
		similarities[claim.ID] = m.Similarity
	}
	return claims, similarities, nil
}

// applySharedFilters filters temporal candidates with the shared query
// filters.
func (b *Boswell) applySharedFilters(claims []types.Claim, req QueryRequest) []types.Claim {
	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = types.DefaultQueryStatuses
	}

	filtered := claims[:0]
	for i := range claims {
		if !statusAllowed(claims[i].Status, statuses) {
			continue
		}
		if !b.matchesShared(&claims[i], req) {
			continue
		}
		filtered = append(filtered, claims[i])
	}
	return filtered
}

func (b *Boswell) matchesShared(claim *types.Claim, req QueryRequest) bool {
	if req.NamespacePattern != "" {
		pattern, err := types.ParseNamespacePattern(req.NamespacePattern)
		if err != nil || !pattern.Matches(claim.Namespace) {
			return false
		}
	}
	if len(req.Tiers) > 0 {
		found := false
		for _, t := range req.Tiers {
			if claim.Tier == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func statusAllowed(status types.Status, allowed []types.Status) bool {
	for _, s := range allowed {
		if status == s {
			return true
		}
	}
	return false
}

// deliberate substitutes query-contextual intervals from the bound reasoner
// per-response. Cached values are never overwritten.
func (b *Boswell) deliberate(ctx context.Context, req QueryRequest, result *QueryResult) error {
	if len(result.Claims) == 0 {
		return nil
	}

	reasoner, err := b.registry.Reasoner("")
	if err != nil {
		return err
	}

	claims := make([]types.Claim, len(result.Claims))
	for i := range result.Claims {
		claims[i] = result.Claims[i].Claim
	}

	queryContext := req.QueryContext
	if queryContext == "" {
		queryContext = req.SemanticText
	}

	intervals, err := reasoner.EvaluateConfidence(ctx, claims, queryContext)
	if err != nil {
		return err
	}

	var narrative strings.Builder
	for i := range result.Claims {
		result.Claims[i].Effective = types.ConfidenceInterval{
			Lo: intervals[i].Lo,
			Hi: intervals[i].Hi,
		}
		result.Claims[i].Reasoning = intervals[i].Reasoning
		if intervals[i].Reasoning != "" {
			if narrative.Len() > 0 {
				narrative.WriteString(" ")
			}
			narrative.WriteString(intervals[i].Reasoning)
		}
	}
	result.Narrative = narrative.String()
	return nil
}

// Get returns a single claim with its effective interval, recording the
// access.
func (b *Boswell) Get(ctx context.Context, id types.ClaimID) (*ScoredClaim, error) {
	claim, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	effective, err := b.confidence.Effective(ctx, claim)
	if err != nil {
		return nil, err
	}

	if err := b.store.IncrementAccess(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("engine: get: failed to record access for %s: %v", id, err)
	}
	return &ScoredClaim{Claim: *claim, Effective: effective}, nil
}

// ListNamespaces returns the distinct namespaces under prefix.
func (b *Boswell) ListNamespaces(ctx context.Context, prefix string) ([]string, error) {
	return b.store.ListNamespaces(ctx, prefix)
}
