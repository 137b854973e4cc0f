package janitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/llm"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/internal/storage/sqlite"
	"github.com/boswell-ai/boswell/internal/vector"
	"github.com/boswell-ai/boswell/pkg/types"
)

const testDimension = 8

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// The store stamps last_modified with the wall clock, so the simulated
// clock anchors to real time and only moves forward.
func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store      *sqlite.ClaimStore
	index      storage.VectorIndex
	confidence *engine.ConfidenceEngine
	registry   *llm.Registry
	cfg        config.Config
	clock      *testClock
	gen        *types.IDGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Embedding.Dimension = testDimension

	store, err := sqlite.NewClaimStore(":memory:", sqlite.Options{EmbeddingDimension: testDimension})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := vector.Open("", testDimension)
	require.NoError(t, err)

	registry := llm.NewRegistry()
	registry.RegisterReasoner("static", llm.NewStaticReasoner())

	clock := newTestClock()
	return &fixture{
		store:      store,
		index:      index,
		confidence: engine.NewConfidenceEngine(store, cfg.Confidence, clock.Now),
		registry:   registry,
		cfg:        *cfg,
		clock:      clock,
		gen:        types.NewIDGenerator(),
	}
}

func (f *fixture) insert(t *testing.T, claim *types.Claim, contribution float64) {
	t.Helper()
	prov := &types.ProvenanceEntry{
		ClaimID:                claim.ID,
		SourceType:             types.SourceAgentAssertion,
		SourceID:               "agent:test",
		Timestamp:              f.clock.Now(),
		ConfidenceContribution: contribution,
	}
	require.NoError(t, f.store.InsertClaim(context.Background(), claim, prov, "test"))
	if len(claim.Embedding) > 0 {
		require.NoError(t, f.index.Insert(claim.ID, claim.Embedding))
	}
}

func (f *fixture) claim(namespace, object string, tier types.Tier) *types.Claim {
	now := f.clock.Now()
	return &types.Claim{
		ID:             f.gen.NewID(now),
		Subject:        "Acme",
		Predicate:      "attribute",
		Object:         object,
		RawExpression:  "Acme attribute " + object,
		Embedding:      []float32{1, 0, 0, 0, 0, 0, 0, 0},
		BaseConfidence: types.ConfidenceInterval{Lo: 0.3, Hi: 0.8},
		Namespace:      namespace,
		Tier:           tier,
		Status:         types.StatusActive,
		CreatedAt:      now,
		LastModified:   now,
		StalenessAt:    now.Add(f.cfg.Confidence.HalfLife(string(tier))),
	}
}

// Staleness decay: a task claim one half-life past its horizon halves its
// base interval.
func TestStalenessJanitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := f.claim("ns", "stale", types.TierTask)
	claim.StalenessAt = f.clock.Now()
	f.insert(t, claim, 0.8)

	// One task half-life later.
	f.clock.Advance(f.cfg.Confidence.HalfLifeTask)

	j := NewStalenessJanitor(f.store, f.confidence, f.cfg, f.clock.Now)
	report, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Modified)
	assert.Zero(t, report.Errors)

	got, err := f.store.Get(ctx, claim.ID)
	require.NoError(t, err)
	// Single source, contribution 0.8: agg = [0.8·0.667, 0.8], decayed by
	// 0.5 after one half-life.
	assert.InDelta(t, 0.8*0.5, got.BaseConfidence.Hi, 0.01)
	assert.InDelta(t, 0.8*(0.5+0.5/3.0)*0.5, got.BaseConfidence.Lo, 0.01)
	assert.True(t, got.StalenessAt.After(f.clock.Now()), "horizon pushed forward")
}

func TestStalenessJanitor_NothingStale(t *testing.T) {
	f := newFixture(t)

	claim := f.claim("ns", "fresh", types.TierTask)
	f.insert(t, claim, 0.8)

	j := NewStalenessJanitor(f.store, f.confidence, f.cfg, f.clock.Now)
	report, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}

// Forget-then-GC: a forgotten claim survives the retention window, then GC
// removes the row, its provenance, and its vector entry.
func TestGCJanitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := f.claim("ns", "doomed", types.TierEphemeral)
	f.insert(t, claim, 0.5)
	require.NoError(t, f.store.UpdateStatus(ctx, claim.ID, types.StatusForgotten, "test"))
	f.index.Delete(claim.ID)

	j := NewGCJanitor(f.store, f.index, f.confidence, f.cfg, f.clock.Now)

	// Within retention: still queryable via the explicit status filter.
	report, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Deleted)
	got, err := f.store.QueryStructural(ctx, storage.StructuralFilter{
		Statuses: []types.Status{types.StatusForgotten},
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Past retention: the row is gone.
	f.clock.Advance(f.cfg.Janitor.GCRetention + time.Hour)
	report, err = j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	_, err = f.store.Get(ctx, claim.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, f.index.Len())
}

func TestGCJanitor_InvalidatesNeighborCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doomed := f.claim("ns", "doomed", types.TierEphemeral)
	survivor := f.claim("ns", "survivor", types.TierEphemeral)
	f.insert(t, doomed, 0.5)
	f.insert(t, survivor, 0.5)
	require.NoError(t, f.store.AddRelationship(ctx, &types.Relationship{
		SourceID: doomed.ID, TargetID: survivor.ID,
		Type: types.RelSupports, Strength: 1, CreatedAt: f.clock.Now(),
	}))
	require.NoError(t, f.store.UpdateStatus(ctx, doomed.ID, types.StatusForgotten, "test"))
	f.index.Delete(doomed.ID)

	f.clock.Advance(f.cfg.Janitor.GCRetention + time.Hour)
	j := NewGCJanitor(f.store, f.index, f.confidence, f.cfg, f.clock.Now)
	_, err := j.Run(ctx)
	require.NoError(t, err)

	entry, err := f.store.GetCache(ctx, survivor.ID)
	require.NoError(t, err)
	assert.True(t, entry.Invalidated)

	rels, err := f.store.RelationshipsFor(ctx, survivor.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestTierMigrationJanitor_DemotesInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	idle := f.claim("ns", "idle", types.TierProject)
	f.insert(t, idle, 0.5)

	f.clock.Advance(f.cfg.Janitor.InactivityWindow + time.Hour)
	j := NewTierMigrationJanitor(f.store, f.index, f.confidence, f.cfg, f.clock.Now)
	report, err := j.Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Demoted, 1)

	got, err := f.store.Get(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TierTask, got.Tier)
}

func TestTierMigrationJanitor_TaskWithInboundStays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.claim("ns", "referenced", types.TierTask)
	ref := f.claim("ns", "referee", types.TierTask)
	f.insert(t, task, 0.5)
	f.insert(t, ref, 0.5)
	require.NoError(t, f.store.AddRelationship(ctx, &types.Relationship{
		SourceID: ref.ID, TargetID: task.ID,
		Type: types.RelSupports, Strength: 1, CreatedAt: f.clock.Now(),
	}))

	f.clock.Advance(f.cfg.Janitor.InactivityWindow + time.Hour)
	j := NewTierMigrationJanitor(f.store, f.index, f.confidence, f.cfg, f.clock.Now)
	_, err := j.Run(ctx)
	require.NoError(t, err)

	got, err := f.store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TierTask, got.Tier, "inbound references block task demotion")

	unreferenced, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TierEphemeral, unreferenced.Tier)
}

func TestTierMigrationJanitor_TTLExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ttl := time.Hour
	claim := f.claim("ns", "short-lived", types.TierEphemeral)
	claim.TTL = &ttl
	f.insert(t, claim, 0.5)

	f.clock.Advance(2 * time.Hour)
	j := NewTierMigrationJanitor(f.store, f.index, f.confidence, f.cfg, f.clock.Now)
	_, err := j.Run(ctx)
	require.NoError(t, err)

	got, err := f.store.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusForgotten, got.Status)
	assert.Zero(t, f.index.Len())
}

func TestRecomputeJanitor_DrainsInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := f.claim("ns", "pending", types.TierTask)
	f.insert(t, claim, 0.7)

	// Insert seeds the row invalidated.
	ids, err := f.store.InvalidatedCacheIDs(ctx, 10)
	require.NoError(t, err)
	require.Contains(t, ids, claim.ID)

	j := NewRecomputeJanitor(f.store, f.confidence, f.cfg, f.clock.Now)
	report, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Modified)

	entry, err := f.store.GetCache(ctx, claim.ID)
	require.NoError(t, err)
	assert.False(t, entry.Invalidated)
	assert.InDelta(t, 0.7, entry.Interval.Hi, 0.01)
}

func TestContradictionJanitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	strong := f.claim("ns", "Berlin", types.TierTask)
	f.insert(t, strong, 0.9)
	weak := f.claim("ns", "Munich", types.TierTask)
	f.insert(t, weak, 0.3)

	j := NewContradictionJanitor(f.store, f.confidence, f.registry, f.cfg, f.clock.Now)
	report, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Modified)

	// The weaker claim is challenged and carries the inbound edge.
	got, err := f.store.Get(ctx, weak.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusChallenged, got.Status)

	rels, err := f.store.RelationshipsFor(ctx, weak.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, strong.ID, rels[0].SourceID)
	assert.Equal(t, types.RelContradicts, rels[0].Type)

	// A second pass finds the pair already linked and does nothing.
	report, err = j.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Modified)
}

func TestRunReport_Summary(t *testing.T) {
	r := RunReport{Janitor: "gc", Scanned: 3, Deleted: 2, Elapsed: time.Second}
	s := r.Summary()
	assert.Contains(t, s, "gc:")
	assert.Contains(t, s, "deleted=2")
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	f := newFixture(t)

	s := NewScheduler(nil)
	s.Add(NewRecomputeJanitor(f.store, f.confidence, f.cfg, f.clock.Now), 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}
