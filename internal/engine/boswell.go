// Package engine implements the Boswell claim engine: assert/learn/query
// semantics, duplicate detection, the gatekeeper, the deterministic
// confidence computation, and the lifecycle glue binding the relational
// store to the vector sidecar.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/llm"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// Lifecycle states. While rebuilding, writes and semantic reads fail with
// Unavailable; structural and temporal reads remain available.
const (
	stateServing int32 = iota
	stateRebuilding
)

// Boswell is the claim engine facade consumed by the transport surface.
type Boswell struct {
	cfg      *config.Config
	store    storage.ClaimStore
	index    storage.VectorIndex
	registry *llm.Registry
	embedder llm.Embedder

	confidence *ConfidenceEngine
	gatekeeper *Gatekeeper

	idgen *types.IDGenerator
	now   func() time.Time

	state atomic.Int32

	// writeSlots is the bounded admission queue for writes; a full queue
	// rejects with Busy and the caller retries with backoff.
	writeSlots chan struct{}

	// vecMu serializes vector-index writes (single-writer discipline).
	vecMu sync.Mutex
}

// New assembles the engine. now is injectable for tests; nil uses the wall
// clock.
func New(cfg *config.Config, store storage.ClaimStore, index storage.VectorIndex, registry *llm.Registry, now func() time.Time) (*Boswell, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: claim store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("engine: vector index is required")
	}
	if now == nil {
		now = time.Now
	}

	embedder, err := registry.Embedder("")
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if embedder.Dimension() != index.Dimension() {
		return nil, fmt.Errorf("%w: embedder dimension %d does not match index dimension %d",
			storage.ErrInvalid, embedder.Dimension(), index.Dimension())
	}

	b := &Boswell{
		cfg:        cfg,
		store:      store,
		index:      index,
		registry:   registry,
		embedder:   embedder,
		idgen:      types.NewIDGenerator(),
		now:        now,
		writeSlots: make(chan struct{}, cfg.Engine.QueueSize),
	}
	b.confidence = NewConfidenceEngine(store, cfg.Confidence, now)
	b.gatekeeper = NewGatekeeper(store, registry, cfg.Gatekeeper)
	return b, nil
}

// Store exposes the claim store to the janitor suite.
func (b *Boswell) Store() storage.ClaimStore { return b.store }

// Index exposes the vector index to the janitor suite.
func (b *Boswell) Index() storage.VectorIndex { return b.index }

// Confidence exposes the confidence engine to the janitor suite.
func (b *Boswell) Confidence() *ConfidenceEngine { return b.confidence }

// Registry exposes the provider registry.
func (b *Boswell) Registry() *llm.Registry { return b.registry }

// Serving reports whether the instance accepts writes and semantic reads.
func (b *Boswell) Serving() bool {
	return b.state.Load() == stateServing
}

// acquireWrite admits a write or rejects with Busy when the queue is full.
func (b *Boswell) acquireWrite() (release func(), err error) {
	if !b.Serving() {
		return nil, fmt.Errorf("%w: instance is rebuilding", storage.ErrUnavailable)
	}
	select {
	case b.writeSlots <- struct{}{}:
		return func() { <-b.writeSlots }, nil
	default:
		return nil, fmt.Errorf("%w: write queue is full", storage.ErrBusy)
	}
}

// Assert writes one claim, running duplicate detection and — for writes
// targeting a tier above ephemeral — the gatekeeper.
func (b *Boswell) Assert(ctx context.Context, input AssertInput) (*AssertResult, error) {
	release, err := b.acquireWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	return b.assertLocked(ctx, input)
}

// assertLocked is Assert without admission control, shared with the batch
// and learn paths which hold a single slot for the whole batch.
func (b *Boswell) assertLocked(ctx context.Context, input AssertInput) (*AssertResult, error) {
	if err := b.validateInput(&input); err != nil {
		return nil, err
	}

	// Duplicate detection against the state visible now; a later duplicate
	// within the same batch corroborates the earlier insert.
	embedding, dup, err := b.findDuplicate(ctx, input)
	if err != nil {
		return nil, err
	}
	now := b.now()

	if dup != nil {
		entry := &types.ProvenanceEntry{
			ClaimID:                dup.ID,
			SourceType:             input.SourceType,
			SourceID:               input.SourceID,
			Timestamp:              now,
			ConfidenceContribution: input.Contribution,
			Context:                input.Context,
		}
		if err := b.store.AddProvenance(ctx, dup.ID, entry); err != nil {
			return nil, err
		}
		b.confidence.Forget(dup.ID)
		// Corroboration refreshes the staleness horizon.
		if err := b.store.TouchStaleness(ctx, dup.ID, now.Add(b.halfLife(dup.Tier))); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if err := b.store.AppendEvent(ctx, &types.Event{
			Kind:      types.EventCorroborate,
			ClaimID:   dup.ID,
			Actor:     input.SourceID,
			Timestamp: now,
			Payload:   string(input.SourceType),
		}); err != nil {
			return nil, err
		}
		return &AssertResult{
			ClaimID:    dup.ID,
			Outcome:    OutcomeCorroborated,
			ActualTier: dup.Tier,
		}, nil
	}

	// New claim: the gatekeeper decides the landing tier for any write
	// above ephemeral.
	tier := types.TierEphemeral
	reasoning := ""
	var verdict *GateVerdict
	if input.TargetTier != nil && *input.TargetTier != types.TierEphemeral {
		advocacy := Advocacy{}
		if input.Advocacy != nil {
			advocacy = *input.Advocacy
		}
		candidate := b.buildClaim(input, embedding, now)
		verdict, err = b.gatekeeper.Evaluate(ctx, candidate, advocacy, *input.TargetTier, false)
		if err != nil {
			return nil, err
		}
		tier = verdict.Tier
		reasoning = verdict.Reasoning
	}

	claim := b.buildClaim(input, embedding, now)
	claim.Tier = tier
	claim.StalenessAt = now.Add(b.halfLife(tier))

	prov := &types.ProvenanceEntry{
		ClaimID:                claim.ID,
		SourceType:             input.SourceType,
		SourceID:               input.SourceID,
		Timestamp:              now,
		ConfidenceContribution: input.Contribution,
		Context:                input.Context,
	}
	if err := b.store.InsertClaim(ctx, claim, prov, input.SourceID); err != nil {
		return nil, err
	}

	if verdict != nil {
		gateProv := &types.ProvenanceEntry{
			ClaimID:                claim.ID,
			SourceType:             types.SourceGatekeeperReasoning,
			SourceID:               verdict.Reasoner,
			Timestamp:              now,
			ConfidenceContribution: 0,
			Context:                verdict.Reasoning,
		}
		if err := b.store.AddProvenance(ctx, claim.ID, gateProv); err != nil {
			return nil, err
		}
	}

	// The vector insert follows the relational commit; the sub-millisecond
	// window in between is the permitted eventual-consistency gap.
	if len(embedding) > 0 {
		b.vecMu.Lock()
		err = b.index.Insert(claim.ID, embedding)
		b.vecMu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	return &AssertResult{
		ClaimID:    claim.ID,
		Outcome:    OutcomeCreated,
		ActualTier: tier,
		Reasoning:  reasoning,
	}, nil
}

// AssertBatch writes inputs in order with per-input outcomes. An Invalid
// input fails alone; the remainder continues.
func (b *Boswell) AssertBatch(ctx context.Context, inputs []AssertInput) ([]BatchItem, error) {
	release, err := b.acquireWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	items := make([]BatchItem, len(inputs))
	for i, input := range inputs {
		result, err := b.assertLocked(ctx, input)
		items[i] = BatchItem{Index: i, Result: result, Err: err}
		if err != nil && !storage.Fatal(err) {
			// A retryable fault poisons the rest of the batch; report the
			// remaining inputs as unattempted.
			for j := i + 1; j < len(inputs); j++ {
				items[j] = BatchItem{Index: j, Err: fmt.Errorf("%w: batch aborted", storage.ErrBusy)}
			}
			break
		}
	}
	return items, nil
}

// Learn is the bulk ingestion path: it skips the extractor, keeps duplicate
// detection, and applies the conflict policy to structural contradictions.
func (b *Boswell) Learn(ctx context.Context, req LearnRequest) (*LearnResult, error) {
	release, err := b.acquireWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	if req.TrustLevel <= 0 || req.TrustLevel > 1 {
		req.TrustLevel = 1
	}
	if req.ConflictPolicy == "" {
		req.ConflictPolicy = ConflictFlag
	}
	if req.Tier == "" {
		req.Tier = types.TierEphemeral
	}

	result := &LearnResult{Items: make([]BatchItem, len(req.Inputs))}
	for i, input := range req.Inputs {
		if input.Namespace == "" {
			input.Namespace = req.Namespace
		}
		if input.SourceID == "" {
			input.SourceID = req.SourceID
		}
		if input.SourceType == "" {
			input.SourceType = types.SourceDirectLoad
		}
		input.Contribution *= req.TrustLevel
		if input.TargetTier == nil {
			tier := req.Tier
			input.TargetTier = &tier
		}

		if req.ConflictPolicy != ConflictQuiet {
			conflict, err := b.findStructuralConflict(ctx, input)
			if err != nil {
				result.Items[i] = BatchItem{Index: i, Err: err}
				continue
			}
			if conflict != nil {
				result.Conflicts++
				if req.ConflictPolicy == ConflictReject {
					result.Items[i] = BatchItem{Index: i, Err: fmt.Errorf(
						"%w: contradicts existing claim %s", storage.ErrConflict, conflict.ID)}
					continue
				}
				// flag: load it, then record the tension.
				res, err := b.assertLocked(ctx, input)
				result.Items[i] = BatchItem{Index: i, Result: res, Err: err}
				if err == nil && res.Outcome == OutcomeCreated {
					rel := &types.Relationship{
						SourceID:  res.ClaimID,
						TargetID:  conflict.ID,
						Type:      types.RelContradicts,
						Strength:  1,
						CreatedAt: b.now(),
					}
					if err := b.store.AddRelationship(ctx, rel); err != nil && !errors.Is(err, storage.ErrConflict) {
						log.Printf("engine: learn: failed to flag conflict for %s: %v", res.ClaimID, err)
					}
					b.confidence.Forget(res.ClaimID, conflict.ID)
				}
				continue
			}
		}

		res, err := b.assertLocked(ctx, input)
		result.Items[i] = BatchItem{Index: i, Result: res, Err: err}
	}
	return result, nil
}

// findStructuralConflict looks for an existing claim with the same subject
// and predicate but a different object in the input's namespace.
func (b *Boswell) findStructuralConflict(ctx context.Context, input AssertInput) (*types.Claim, error) {
	matches, err := b.store.QueryStructural(ctx, storage.StructuralFilter{
		Subject:   strings.TrimSpace(input.Subject),
		Predicate: strings.TrimSpace(input.Predicate),
		Namespace: input.Namespace,
		Limit:     10,
	})
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if matches[i].Object != strings.TrimSpace(input.Object) {
			return &matches[i], nil
		}
	}
	return nil, nil
}

// Challenge disputes a claim. A named challenger adds a contradicts edge;
// either way the target transitions to challenged. Duplicate challenges are
// Conflict.
func (b *Boswell) Challenge(ctx context.Context, req ChallengeRequest) (*ChallengeResult, error) {
	release, err := b.acquireWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	target, err := b.store.Get(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}

	actor := req.Actor
	if actor == "" {
		actor = "challenge"
	}

	var rel *types.Relationship
	if req.ChallengerID != nil {
		rel = &types.Relationship{
			SourceID:  *req.ChallengerID,
			TargetID:  req.TargetID,
			Type:      types.RelContradicts,
			Strength:  1,
			CreatedAt: b.now(),
		}
		if err := b.store.AddRelationship(ctx, rel); err != nil {
			return nil, err
		}
		b.confidence.Forget(*req.ChallengerID, req.TargetID)
	}

	status := target.Status
	if status == types.StatusActive {
		if err := b.store.UpdateStatus(ctx, req.TargetID, types.StatusChallenged, actor); err != nil {
			return nil, err
		}
		b.confidence.Forget(req.TargetID)
		status = types.StatusChallenged
	} else if req.ChallengerID == nil {
		// Without a challenger edge there is nothing new to record;
		// repeating the bare challenge is a conflict.
		return nil, fmt.Errorf("%w: claim %s is already %s", storage.ErrConflict, req.TargetID, status)
	}

	if req.Evidence != "" {
		entry := &types.ProvenanceEntry{
			ClaimID:                req.TargetID,
			SourceType:             types.SourceAgentAssertion,
			SourceID:               actor,
			Timestamp:              b.now(),
			ConfidenceContribution: 0,
			Context:                "challenge: " + req.Evidence,
		}
		if err := b.store.AddProvenance(ctx, req.TargetID, entry); err != nil {
			return nil, err
		}
	}

	return &ChallengeResult{Relationship: rel, TargetStatus: status}, nil
}

// Promote evaluates explicit promotions through the gatekeeper. The
// permanent tier is reachable only here.
func (b *Boswell) Promote(ctx context.Context, candidates []PromoteCandidate, actor string) []PromoteResult {
	results := make([]PromoteResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, b.promoteOne(ctx, c, actor))
	}
	return results
}

func (b *Boswell) promoteOne(ctx context.Context, c PromoteCandidate, actor string) PromoteResult {
	claim, err := b.store.Get(ctx, c.ID)
	if err != nil {
		return PromoteResult{ID: c.ID, Status: PromoteNotFound}
	}

	result := PromoteResult{ID: c.ID, PreviousTier: claim.Tier, CurrentTier: claim.Tier}
	if !c.TargetTier.Valid() || c.TargetTier.Rank() <= claim.Tier.Rank() {
		result.Status = PromoteNoop
		result.Reasoning = fmt.Sprintf("target tier %s does not raise %s", c.TargetTier, claim.Tier)
		return result
	}

	verdict, err := b.gatekeeper.Evaluate(ctx, claim, c.Advocacy, c.TargetTier, true)
	if err != nil {
		result.Status = PromoteRejected
		result.Reasoning = err.Error()
		return result
	}

	result.Reasoning = verdict.Reasoning
	switch verdict.Decision {
	case llm.DecisionAccept:
		result.Status = PromotePromoted
	case llm.DecisionDowngrade:
		result.Status = PromoteDowngraded
	case llm.DecisionDefer:
		result.Status = PromoteDeferred
	default:
		result.Status = PromoteRejected
	}

	// Promotion rejection keeps the current tier; it does not reset to
	// ephemeral the way a rejected write does.
	newTier := verdict.Tier
	if verdict.Decision == llm.DecisionReject || newTier.Rank() < claim.Tier.Rank() {
		newTier = claim.Tier
		if verdict.Decision != llm.DecisionReject {
			result.Status = PromoteNoop
		}
	}
	if newTier != claim.Tier {
		if err := b.store.SetTier(ctx, c.ID, newTier, actor); err != nil {
			result.Status = PromoteRejected
			result.Reasoning = err.Error()
			return result
		}
		result.CurrentTier = newTier
	}

	entry := &types.ProvenanceEntry{
		ClaimID:                c.ID,
		SourceType:             types.SourceGatekeeperReasoning,
		SourceID:               verdict.Reasoner,
		Timestamp:              b.now(),
		ConfidenceContribution: 0,
		Context:                verdict.Reasoning,
	}
	if err := b.store.AddProvenance(ctx, c.ID, entry); err != nil {
		log.Printf("engine: promote: failed to record reasoning for %s: %v", c.ID, err)
	}
	b.confidence.Forget(c.ID)
	return result
}

// Demote lowers a claim one tier. Exposed for explicit demotion; the
// tier-migration janitor uses the same store primitive.
func (b *Boswell) Demote(ctx context.Context, id types.ClaimID, actor string) (*PromoteResult, error) {
	claim, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	below, ok := claim.Tier.Previous()
	if !ok {
		return nil, fmt.Errorf("%w: claim %s is already ephemeral", storage.ErrInvalid, id)
	}
	if err := b.store.SetTier(ctx, id, below, actor); err != nil {
		return nil, err
	}
	return &PromoteResult{
		ID:           id,
		Status:       PromoteDowngraded,
		PreviousTier: claim.Tier,
		CurrentTier:  below,
	}, nil
}

// Forget transitions claims to forgotten and removes their vector entries.
// Idempotent per id.
func (b *Boswell) Forget(ctx context.Context, ids []types.ClaimID, actor string) []ForgetResult {
	results := make([]ForgetResult, 0, len(ids))
	for _, id := range ids {
		claim, err := b.store.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			results = append(results, ForgetResult{ID: id, Status: ForgetNotFound})
			continue
		}
		if err != nil {
			results = append(results, ForgetResult{ID: id, Status: ForgetNotFound})
			continue
		}
		if claim.Status == types.StatusForgotten {
			results = append(results, ForgetResult{ID: id, Status: ForgetAlreadyForgotten})
			continue
		}
		if err := b.store.UpdateStatus(ctx, id, types.StatusForgotten, actor); err != nil {
			results = append(results, ForgetResult{ID: id, Status: ForgetNotFound})
			continue
		}
		b.confidence.Forget(id)

		b.vecMu.Lock()
		b.index.Delete(id)
		b.vecMu.Unlock()

		results = append(results, ForgetResult{ID: id, Status: ForgetForgotten})
	}
	return results
}

// ExpireSession forgets the session's ephemeral claims and their vector
// entries.
func (b *Boswell) ExpireSession(ctx context.Context, sessionID string) (int, error) {
	claims, err := b.store.QueryStructural(ctx, storage.StructuralFilter{
		SessionID: sessionID,
		Tiers:     []types.Tier{types.TierEphemeral},
		Limit:     storage.MaxQueryLimit,
	})
	if err != nil {
		return 0, err
	}
	ids := make([]types.ClaimID, len(claims))
	for i := range claims {
		ids[i] = claims[i].ID
	}
	expired := 0
	for _, r := range b.Forget(ctx, ids, "session_end") {
		if r.Status == ForgetForgotten {
			expired++
		}
	}
	return expired, nil
}

// Reindex runs the stop-the-world rebuild: the instance refuses writes and
// semantic reads, clears the sidecar, repopulates it from the claims table,
// and resumes. Administrative operation only — never a side effect of an
// API call.
func (b *Boswell) Reindex(ctx context.Context) error {
	if !b.state.CompareAndSwap(stateServing, stateRebuilding) {
		return fmt.Errorf("%w: rebuild already in progress", storage.ErrUnavailable)
	}
	defer b.state.Store(stateServing)

	log.Printf("engine: reindex started")
	start := b.now()

	b.vecMu.Lock()
	defer b.vecMu.Unlock()
	err := b.index.Rebuild(func(fn func(id types.ClaimID, vector []float32) error) error {
		return b.store.IterateEmbeddings(ctx, fn)
	})
	if err != nil {
		return fmt.Errorf("engine: reindex: %w", err)
	}

	log.Printf("engine: reindex completed in %s (%d entries)", b.now().Sub(start), b.index.Len())
	return nil
}

// VerifyConsistency cross-checks the vector index against the relational
// store. A mismatch is Corrupt; callers trigger Reindex.
func (b *Boswell) VerifyConsistency(ctx context.Context) error {
	expected := 0
	err := b.store.IterateEmbeddings(ctx, func(id types.ClaimID, _ []float32) error {
		expected++
		return nil
	})
	if err != nil {
		return err
	}
	if got := b.index.Len(); got != expected {
		return fmt.Errorf("%w: vector index has %d entries, claims table expects %d",
			storage.ErrCorrupt, got, expected)
	}
	return nil
}

// Close flushes the vector index and closes the store.
func (b *Boswell) Close() error {
	var first error
	if err := b.index.Close(); err != nil {
		first = err
	}
	if err := b.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (b *Boswell) validateInput(input *AssertInput) error {
	if strings.TrimSpace(input.Subject) == "" ||
		strings.TrimSpace(input.Predicate) == "" ||
		strings.TrimSpace(input.Object) == "" {
		return fmt.Errorf("%w: subject, predicate and object are required", storage.ErrInvalid)
	}
	if err := types.ValidateNamespace(input.Namespace, b.cfg.Engine.MaxNamespaceDepth); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	if !input.SourceType.Valid() {
		return fmt.Errorf("%w: invalid source type %q", storage.ErrInvalid, input.SourceType)
	}
	if input.Contribution < 0 || input.Contribution > 1 {
		return fmt.Errorf("%w: contribution %v outside [0, 1]", storage.ErrInvalid, input.Contribution)
	}
	if input.TargetTier != nil {
		if !input.TargetTier.Valid() {
			return fmt.Errorf("%w: invalid tier %q", storage.ErrInvalid, *input.TargetTier)
		}
		if *input.TargetTier == types.TierPermanent {
			return fmt.Errorf("%w: the permanent tier requires an explicit promotion", storage.ErrInvalid)
		}
	}
	if input.RawExpression == "" {
		input.RawExpression = fmt.Sprintf("%s %s %s", input.Subject, input.Predicate, input.Object)
	}
	return nil
}

func (b *Boswell) buildClaim(input AssertInput, embedding []float32, now time.Time) *types.Claim {
	interval := types.ConfidenceInterval{Lo: 0, Hi: input.Contribution}
	return &types.Claim{
		ID:             b.idgen.NewID(now),
		Subject:        strings.TrimSpace(input.Subject),
		Predicate:      strings.TrimSpace(input.Predicate),
		Object:         strings.TrimSpace(input.Object),
		RawExpression:  input.RawExpression,
		Embedding:      embedding,
		BaseConfidence: interval,
		Namespace:      input.Namespace,
		Tier:           types.TierEphemeral,
		Status:         types.StatusActive,
		CreatedAt:      now,
		LastModified:   now,
		StalenessAt:    now.Add(b.halfLife(types.TierEphemeral)),
		TTL:            input.TTL,
		ValidFrom:      input.ValidFrom,
		ValidUntil:     input.ValidUntil,
		SessionID:      input.SessionID,
	}
}

func (b *Boswell) halfLife(tier types.Tier) time.Duration {
	return b.cfg.Confidence.HalfLife(string(tier))
}
