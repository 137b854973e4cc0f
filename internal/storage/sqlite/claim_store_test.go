package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

var testGen = types.NewIDGenerator()

func newTestStore(t *testing.T) *ClaimStore {
	t.Helper()
	store, err := NewClaimStore(":memory:", Options{EmbeddingDimension: 4})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testClaim(namespace, subject, predicate, object string) *types.Claim {
	now := time.Now().UTC()
	return &types.Claim{
		ID:             testGen.NewID(now),
		Subject:        subject,
		Predicate:      predicate,
		Object:         object,
		RawExpression:  subject + " " + predicate + " " + object,
		Embedding:      []float32{0.1, 0.2, 0.3, 0.4},
		BaseConfidence: types.ConfidenceInterval{Lo: 0.3, Hi: 0.8},
		Namespace:      namespace,
		Tier:           types.TierEphemeral,
		Status:         types.StatusActive,
		CreatedAt:      now,
		LastModified:   now,
		StalenessAt:    now.Add(4 * time.Hour),
	}
}

func testProv(id types.ClaimID, sourceType types.SourceType, contribution float64) *types.ProvenanceEntry {
	return &types.ProvenanceEntry{
		ClaimID:                id,
		SourceType:             sourceType,
		SourceID:               "agent:test",
		Timestamp:              time.Now().UTC(),
		ConfidenceContribution: contribution,
	}
}

func mustInsert(t *testing.T, store *ClaimStore, claim *types.Claim) {
	t.Helper()
	require.NoError(t, store.InsertClaim(context.Background(), claim,
		testProv(claim.ID, types.SourceAgentAssertion, 0.7), "test"))
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claim := testClaim("org/acme", "Acme", "is", "mid-size")
	mustInsert(t, store, claim)

	got, err := store.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.ID, got.ID)
	assert.Equal(t, "Acme", got.Subject)
	assert.Equal(t, claim.Embedding, got.Embedding)
	assert.Equal(t, types.TierEphemeral, got.Tier)
	assert.Equal(t, types.StatusActive, got.Status)

	// The first provenance entry landed with the insert.
	prov, err := store.ProvenanceFor(ctx, claim.ID)
	require.NoError(t, err)
	require.Len(t, prov, 1)
	assert.Equal(t, types.SourceAgentAssertion, prov[0].SourceType)

	// And the event log carries the assert.
	events, err := store.EventsSince(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventAssert, events[0].Kind)
}

func TestInsert_Invalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty subject", func(t *testing.T) {
		claim := testClaim("a", "s", "p", "o")
		claim.Subject = " "
		err := store.InsertClaim(ctx, claim, nil, "test")
		assert.ErrorIs(t, err, storage.ErrInvalid)
	})

	t.Run("namespace too deep", func(t *testing.T) {
		claim := testClaim("a/b/c/d/e/f/g", "s", "p", "o")
		err := store.InsertClaim(ctx, claim, nil, "test")
		assert.ErrorIs(t, err, storage.ErrInvalid)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		claim := testClaim("a", "s", "p", "o")
		claim.Embedding = []float32{1, 2}
		err := store.InsertClaim(ctx, claim, nil, "test")
		assert.ErrorIs(t, err, storage.ErrInvalid)
	})

	t.Run("duplicate id", func(t *testing.T) {
		claim := testClaim("a", "s", "p", "o")
		require.NoError(t, store.InsertClaim(ctx, claim, nil, "test"))
		err := store.InsertClaim(ctx, claim, nil, "test")
		assert.ErrorIs(t, err, storage.ErrConflict)
	})
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), testGen.NewID(time.Now()))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetByTriple(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claim := testClaim("org/acme", "Acme", "is", "mid-size")
	mustInsert(t, store, claim)

	got, err := store.GetByTriple(ctx, "org/acme", "Acme", "is", "mid-size")
	require.NoError(t, err)
	assert.Equal(t, claim.ID, got.ID)

	_, err = store.GetByTriple(ctx, "org/other", "Acme", "is", "mid-size")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStatusMachine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claim := testClaim("a", "s", "p", "o")
	mustInsert(t, store, claim)

	require.NoError(t, store.UpdateStatus(ctx, claim.ID, types.StatusChallenged, "test"))
	require.NoError(t, store.UpdateStatus(ctx, claim.ID, types.StatusDeprecated, "test"))

	// deprecated → active is illegal.
	err := store.UpdateStatus(ctx, claim.ID, types.StatusActive, "test")
	assert.ErrorIs(t, err, storage.ErrInvalid)

	require.NoError(t, store.UpdateStatus(ctx, claim.ID, types.StatusForgotten, "test"))

	// forgotten is terminal.
	err = store.UpdateStatus(ctx, claim.ID, types.StatusActive, "test")
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestRelationships(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testClaim("a", "s", "p", "o1")
	b := testClaim("a", "s", "p", "o2")
	mustInsert(t, store, a)
	mustInsert(t, store, b)

	rel := &types.Relationship{
		SourceID: a.ID, TargetID: b.ID,
		Type: types.RelContradicts, Strength: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AddRelationship(ctx, rel))

	// Duplicate (source, target, type) is a conflict.
	err := store.AddRelationship(ctx, rel)
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Endpoints must exist.
	missing := &types.Relationship{
		SourceID: a.ID, TargetID: testGen.NewID(time.Now()),
		Type: types.RelSupports, Strength: 1, CreatedAt: time.Now().UTC(),
	}
	err = store.AddRelationship(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rels, err := store.RelationshipsFor(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, a.ID, rels[0].SourceID)

	require.NoError(t, store.RemoveRelationship(ctx, a.ID, b.ID, types.RelContradicts))
	err = store.RemoveRelationship(ctx, a.ID, b.ID, types.RelContradicts)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// Namespace recursive query scenario: claims at a, a/b, a/b/c, a/d; "a/*"
// returns all four, "a/*/1" returns a, a/b, and a/d.
func TestQueryStructural_NamespacePatterns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, ns := range []string{"a", "a/b", "a/b/c", "a/d"} {
		mustInsert(t, store, testClaim(ns, "s", "p", ns))
	}

	all, err := store.QueryStructural(ctx, storage.StructuralFilter{Namespace: "a/*"})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	limited, err := store.QueryStructural(ctx, storage.StructuralFilter{Namespace: "a/*/1"})
	require.NoError(t, err)
	namespaces := make([]string, len(limited))
	for i := range limited {
		namespaces[i] = limited[i].Namespace
	}
	assert.ElementsMatch(t, []string{"a", "a/b", "a/d"}, namespaces)

	exact, err := store.QueryStructural(ctx, storage.StructuralFilter{Namespace: "a/b"})
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "a/b", exact[0].Namespace)
}

func TestQueryStructural_DefaultStatusFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active := testClaim("a", "s1", "p", "o")
	deprecated := testClaim("a", "s2", "p", "o")
	mustInsert(t, store, active)
	mustInsert(t, store, deprecated)
	require.NoError(t, store.UpdateStatus(ctx, deprecated.ID, types.StatusDeprecated, "test"))

	got, err := store.QueryStructural(ctx, storage.StructuralFilter{Namespace: "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	all, err := store.QueryStructural(ctx, storage.StructuralFilter{Namespace: "a", AllStatuses: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQueryStructural_SortedByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mustInsert(t, store, testClaim("ns", "s", "p", string(rune('a'+i))))
	}

	got, err := store.QueryStructural(ctx, storage.StructuralFilter{Namespace: "ns"})
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, -1, got[i-1].ID.Compare(got[i].ID), "results must sort by id ascending")
	}
}

func TestQueryTemporal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	early := testClaim("t", "s", "p", "early")
	early.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	late := testClaim("t", "s", "p", "late")
	mustInsert(t, store, early)
	mustInsert(t, store, late)

	got, err := store.QueryTemporal(ctx,
		time.Now().UTC().Add(-3*time.Hour), time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "early", got[0].Object)
}

func TestListNamespaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, ns := range []string{"a", "a/b", "b", "a/b"} {
		mustInsert(t, store, testClaim(ns, "s", "p", ns+"-o"))
	}

	got, err := store.ListNamespaces(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/b"}, got)

	all, err := store.ListNamespaces(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/b", "b"}, all)
}

// P4: after hard delete, no structural query returns the id, no
// relationship referencing it remains, and the neighbor is reported for
// cache invalidation.
func TestHardDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	victim := testClaim("ns", "s", "p", "victim")
	neighbor := testClaim("ns", "s", "p", "neighbor")
	mustInsert(t, store, victim)
	mustInsert(t, store, neighbor)
	require.NoError(t, store.AddRelationship(ctx, &types.Relationship{
		SourceID: victim.ID, TargetID: neighbor.ID,
		Type: types.RelSupports, Strength: 1, CreatedAt: time.Now().UTC(),
	}))

	survivors, err := store.HardDelete(ctx, []types.ClaimID{victim.ID})
	require.NoError(t, err)
	assert.Equal(t, []types.ClaimID{neighbor.ID}, survivors)

	_, err = store.Get(ctx, victim.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.ProvenanceFor(ctx, victim.ID)
	require.NoError(t, err) // empty, not an error

	rels, err := store.RelationshipsFor(ctx, neighbor.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)

	_, err = store.GetCache(ctx, victim.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfidenceCache_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claim := testClaim("ns", "s", "p", "o")
	mustInsert(t, store, claim)

	// Seeded invalidated by the insert.
	entry, err := store.GetCache(ctx, claim.ID)
	require.NoError(t, err)
	assert.True(t, entry.Invalidated)

	entry.Interval = types.ConfidenceInterval{Lo: 0.4, Hi: 0.8}
	entry.ComputedAt = time.Now().UTC()
	require.NoError(t, store.PutCache(ctx, entry))

	fresh, err := store.GetCache(ctx, claim.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Invalidated)
	assert.Equal(t, 0.4, fresh.Interval.Lo)

	// A stale-versioned write loses the race.
	staleWrite := *fresh
	staleWrite.Version = fresh.Version - 1
	err = store.PutCache(ctx, &staleWrite)
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Provenance append invalidates again.
	require.NoError(t, store.AddProvenance(ctx, claim.ID,
		testProv(claim.ID, types.SourceUserInput, 0.5)))
	again, err := store.GetCache(ctx, claim.ID)
	require.NoError(t, err)
	assert.True(t, again.Invalidated)
	assert.Greater(t, again.Version, fresh.Version)

	ids, err := store.InvalidatedCacheIDs(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, ids, claim.ID)
}

func TestAddProvenance_InvalidatesNeighbors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testClaim("ns", "s", "p", "a")
	b := testClaim("ns", "s", "p", "b")
	mustInsert(t, store, a)
	mustInsert(t, store, b)
	require.NoError(t, store.AddRelationship(ctx, &types.Relationship{
		SourceID: a.ID, TargetID: b.ID,
		Type: types.RelSupports, Strength: 1, CreatedAt: time.Now().UTC(),
	}))

	// Settle both caches.
	for _, id := range []types.ClaimID{a.ID, b.ID} {
		entry, err := store.GetCache(ctx, id)
		require.NoError(t, err)
		entry.Interval = types.ConfidenceInterval{Lo: 0.1, Hi: 0.9}
		entry.ComputedAt = time.Now().UTC()
		require.NoError(t, store.PutCache(ctx, entry))
	}

	require.NoError(t, store.AddProvenance(ctx, a.ID,
		testProv(a.ID, types.SourceUserInput, 0.6)))

	for _, id := range []types.ClaimID{a.ID, b.ID} {
		entry, err := store.GetCache(ctx, id)
		require.NoError(t, err)
		assert.True(t, entry.Invalidated, "cache for %s should be invalidated", id)
	}
}

func TestProcessingFlags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	claim := testClaim("ns", "s", "p", "o")
	mustInsert(t, store, claim)

	ok, err := store.AcquireProcessing(ctx, claim.ID, "staleness", now, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second worker cannot steal a live flag.
	ok, err = store.AcquireProcessing(ctx, claim.ID, "gc", now.Add(time.Minute), 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// But an abandoned flag is stolen.
	ok, err = store.AcquireProcessing(ctx, claim.ID, "gc", now.Add(time.Hour), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.ReleaseProcessing(ctx, claim.ID, "gc"))
	ok, err = store.AcquireProcessing(ctx, claim.ID, "staleness", now.Add(time.Hour), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJanitorScans(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := testClaim("ns", "s", "p", "stale")
	stale.StalenessAt = now.Add(-time.Hour)
	fresh := testClaim("ns", "s", "p", "fresh")
	fresh.StalenessAt = now.Add(time.Hour)
	mustInsert(t, store, stale)
	mustInsert(t, store, fresh)

	got, err := store.StaleClaims(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)

	// TTL expiry.
	ttl := 30 * time.Minute
	expired := testClaim("ns", "s2", "p", "expired")
	expired.TTL = &ttl
	expired.CreatedAt = now.Add(-time.Hour)
	mustInsert(t, store, expired)

	gone, err := store.ExpiredEphemeral(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, expired.ID, gone[0].ID)

	// Forgotten-before scan.
	require.NoError(t, store.UpdateStatus(ctx, stale.ID, types.StatusForgotten, "test"))
	ids, err := store.ForgottenBefore(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []types.ClaimID{stale.ID}, ids)
}

func TestContradictionCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testClaim("ns", "Acme", "hq", "Berlin")
	b := testClaim("ns", "Acme", "hq", "Munich")
	c := testClaim("other", "Acme", "hq", "Paris") // different namespace
	mustInsert(t, store, a)
	mustInsert(t, store, b)
	mustInsert(t, store, c)

	candidates, err := store.ContradictionCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, a.ID, candidates[0].A.ID)
	assert.Equal(t, b.ID, candidates[0].B.ID)
}

func TestExpireSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inSession := testClaim("ns", "s", "p", "a")
	inSession.SessionID = "sess-1"
	other := testClaim("ns", "s", "p", "b")
	mustInsert(t, store, inSession)
	mustInsert(t, store, other)

	n, err := store.ExpireSession(ctx, "sess-1", "session_end")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, inSession.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusForgotten, got.Status)

	untouched, err := store.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, untouched.Status)
}

func TestIterateEmbeddings_SkipsForgotten(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keep := testClaim("ns", "s", "p", "keep")
	drop := testClaim("ns", "s", "p", "drop")
	mustInsert(t, store, keep)
	mustInsert(t, store, drop)
	require.NoError(t, store.UpdateStatus(ctx, drop.ID, types.StatusForgotten, "test"))

	var seen []types.ClaimID
	err := store.IterateEmbeddings(ctx, func(id types.ClaimID, embedding []float32) error {
		assert.Len(t, embedding, 4)
		seen = append(seen, id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.ClaimID{keep.ID}, seen)
}

func TestSetTier_RecordsEvent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claim := testClaim("ns", "s", "p", "o")
	mustInsert(t, store, claim)

	require.NoError(t, store.SetTier(ctx, claim.ID, types.TierTask, "gatekeeper"))

	got, err := store.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TierTask, got.Tier)

	events, err := store.EventsSince(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	var kinds []types.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, types.EventPromote)
}
