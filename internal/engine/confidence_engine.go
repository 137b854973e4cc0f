package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// hotCacheSize bounds the in-memory layer over the confidence_cache table.
const hotCacheSize = 4096

// ConfidenceEngine computes effective intervals through the persistent
// confidence cache, with an expiring in-memory LRU in front for hot reads
// and a per-claim in-flight guard against thundering herds.
type ConfidenceEngine struct {
	store  storage.ClaimStore
	cfg    config.ConfidenceConfig
	params ConfidenceParams
	now    func() time.Time

	hot *lru.LRU[types.ClaimID, types.ConfidenceInterval]

	mu       sync.Mutex
	inFlight map[types.ClaimID]chan struct{}
}

// NewConfidenceEngine builds the engine. now is injectable for tests; nil
// uses the wall clock.
func NewConfidenceEngine(store storage.ClaimStore, cfg config.ConfidenceConfig, now func() time.Time) *ConfidenceEngine {
	if now == nil {
		now = time.Now
	}
	return &ConfidenceEngine{
		store: store,
		cfg:   cfg,
		params: ConfidenceParams{
			Boost:             cfg.Boost,
			Penalty:           cfg.Penalty,
			DiversityMaxTypes: cfg.DiversityMaxTypes,
			InstanceTrust:     cfg.InstanceTrust,
		},
		now:      now,
		hot:      lru.NewLRU[types.ClaimID, types.ConfidenceInterval](hotCacheSize, nil, cfg.CacheTTL),
		inFlight: make(map[types.ClaimID]chan struct{}),
	}
}

// Effective returns the claim's effective interval, serving the cache when
// fresh and recomputing when invalidated.
func (e *ConfidenceEngine) Effective(ctx context.Context, claim *types.Claim) (types.ConfidenceInterval, error) {
	if interval, ok := e.hot.Get(claim.ID); ok {
		return interval, nil
	}

	entry, err := e.store.GetCache(ctx, claim.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.ConfidenceInterval{}, err
	}
	if entry != nil && !entry.Invalidated {
		e.hot.Add(claim.ID, entry.Interval)
		return entry.Interval, nil
	}

	// Invalidated or missing: recompute, unless another goroutine already
	// is and the stale value is young enough to serve.
	wait, leader := e.enter(claim.ID)
	if !leader {
		if entry != nil && e.now().Sub(entry.ComputedAt) < e.cfg.CacheTTL {
			return entry.Interval, nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return types.ConfidenceInterval{}, fmt.Errorf("%w: %v", storage.ErrTimeout, ctx.Err())
		}
		return e.Effective(ctx, claim)
	}
	defer e.leave(claim.ID)

	interval, err := e.Recompute(ctx, claim)
	if err != nil {
		return types.ConfidenceInterval{}, err
	}
	return interval, nil
}

// Recompute runs the full formula for a claim and writes the cache row.
func (e *ConfidenceEngine) Recompute(ctx context.Context, claim *types.Claim) (types.ConfidenceInterval, error) {
	now := e.now()

	entry, err := e.store.GetCache(ctx, claim.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.ConfidenceInterval{}, err
	}

	provenance, err := e.store.ProvenanceFor(ctx, claim.ID)
	if err != nil {
		return types.ConfidenceInterval{}, err
	}

	neighbors, err := e.neighborInfluences(ctx, claim.ID, now)
	if err != nil {
		return types.ConfidenceInterval{}, err
	}

	interval := EffectiveInterval(provenance, now, claim.StalenessAt,
		e.cfg.HalfLife(string(claim.Tier)), neighbors, e.params)

	version := int64(0)
	if entry != nil {
		version = entry.Version
	}
	err = e.store.PutCache(ctx, &storage.CacheEntry{
		ClaimID:    claim.ID,
		Interval:   interval,
		ComputedAt: now,
		Version:    version,
	})
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		// A version conflict means a concurrent invalidation; the value is
		// still the best answer for this read, it just stays uncached.
		return types.ConfidenceInterval{}, err
	}
	if err == nil {
		e.hot.Add(claim.ID, interval)
	}
	return interval, nil
}

// StaleOnly recomputes steps 1–2 for a claim. Used by the staleness janitor
// to refresh the base interval without touching relationships.
func (e *ConfidenceEngine) StaleOnly(ctx context.Context, claim *types.Claim) (types.ConfidenceInterval, error) {
	provenance, err := e.store.ProvenanceFor(ctx, claim.ID)
	if err != nil {
		return types.ConfidenceInterval{}, err
	}
	return StaleInterval(provenance, e.now(), claim.StalenessAt,
		e.cfg.HalfLife(string(claim.Tier)), e.params), nil
}

// Invalidate drops the hot-cache rows and marks the persistent rows stale.
func (e *ConfidenceEngine) Invalidate(ctx context.Context, ids ...types.ClaimID) error {
	for _, id := range ids {
		e.hot.Remove(id)
	}
	return e.store.InvalidateCache(ctx, ids...)
}

// Forget drops the hot-cache entries for the given claims; the persistent
// cache rows are left as they are.
func (e *ConfidenceEngine) Forget(ids ...types.ClaimID) {
	for _, id := range ids {
		e.hot.Remove(id)
	}
}

// neighborInfluences walks direct neighbors only and evaluates each with
// steps 1–2 (their stale values). Edges affect the claim when it is the
// TARGET of a supports/contradicts edge from the neighbor.
func (e *ConfidenceEngine) neighborInfluences(ctx context.Context, id types.ClaimID, now time.Time) ([]NeighborInfluence, error) {
	rels, err := e.store.RelationshipsFor(ctx, id)
	if err != nil {
		return nil, err
	}

	var influences []NeighborInfluence
	for _, r := range rels {
		if r.TargetID != id {
			continue
		}
		if r.Type != types.RelSupports && r.Type != types.RelContradicts {
			continue
		}

		neighbor, err := e.store.Get(ctx, r.SourceID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if neighbor.Status == types.StatusForgotten {
			continue
		}

		provenance, err := e.store.ProvenanceFor(ctx, neighbor.ID)
		if err != nil {
			return nil, err
		}
		stale := StaleInterval(provenance, now, neighbor.StalenessAt,
			e.cfg.HalfLife(string(neighbor.Tier)), e.params)

		influences = append(influences, NeighborInfluence{
			Type:     r.Type,
			Strength: r.Strength,
			StaleHi:  stale.Hi,
		})
	}
	return influences, nil
}

// enter joins the in-flight set for id. The second return is true for the
// leader who must recompute and then leave.
func (e *ConfidenceEngine) enter(id types.ClaimID) (<-chan struct{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.inFlight[id]; ok {
		return ch, false
	}
	ch := make(chan struct{})
	e.inFlight[id] = ch
	return ch, true
}

func (e *ConfidenceEngine) leave(id types.ClaimID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.inFlight[id]; ok {
		close(ch)
		delete(e.inFlight, id)
	}
}
