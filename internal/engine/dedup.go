package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// dedupCandidateLimit bounds how many vector neighbors are hydrated per
// assert.
const dedupCandidateLimit = 8

// recencyHalfLife is the half-life of the recency factor used to tie-break
// between multiple duplicate candidates.
const recencyHalfLife = 30 * 24 * time.Hour

// findDuplicate runs duplicate detection for an assert. It returns the
// computed embedding (reused for the insert) and the corroboration target,
// nil when the input is new.
//
// When the vector index or the embedder is unavailable, detection degrades
// to plain structural equality on the triple rather than failing the write.
func (b *Boswell) findDuplicate(ctx context.Context, input AssertInput) ([]float32, *types.Claim, error) {
	embedding, err := b.embedder.Vector(ctx, input.RawExpression)
	if err != nil {
		if storage.Retryable(err) {
			log.Printf("engine: dedup: embedder unavailable, falling back to structural dedup: %v", err)
			dup, serr := b.structuralDuplicate(ctx, input)
			return nil, dup, serr
		}
		return nil, nil, err
	}

	matches, err := b.index.Search(embedding, dedupCandidateLimit, b.cfg.Engine.DuplicateThreshold)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			dup, serr := b.structuralDuplicate(ctx, input)
			return embedding, dup, serr
		}
		return nil, nil, err
	}

	now := b.now()
	var (
		best      *types.Claim
		bestScore float64
	)
	for _, m := range matches {
		candidate, err := b.store.Get(ctx, m.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// The index briefly leads or trails the store; skip.
				continue
			}
			return nil, nil, err
		}
		// Dedup is scoped to the namespace; a matching triple elsewhere is
		// a different claim.
		if candidate.Namespace != input.Namespace || candidate.Status == types.StatusForgotten {
			continue
		}
		if !candidate.TripleEquals(input.Subject, input.Predicate, input.Object) {
			continue
		}

		score := m.Similarity * recencyFactor(now, candidate.CreatedAt)
		if best == nil || score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return embedding, best, nil
}

// structuralDuplicate is the degraded path: exact triple equality in the
// namespace.
func (b *Boswell) structuralDuplicate(ctx context.Context, input AssertInput) (*types.Claim, error) {
	dup, err := b.store.GetByTriple(ctx, input.Namespace, input.Subject, input.Predicate, input.Object)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: structural dedup: %w", err)
	}
	return dup, nil
}

// recencyFactor weights newer candidates higher in the duplicate tie-break:
// 1.0 at creation, halving every recencyHalfLife.
func recencyFactor(now, createdAt time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(recencyHalfLife))
}
