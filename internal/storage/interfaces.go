// Package storage provides the capability contracts for Boswell's dual
// store: the authoritative relational claim store and the derived vector
// sidecar.
//
// The relational store is the sole authority over claim rows, provenance,
// relationships, the event log, and the confidence cache. The vector index
// is a rebuildable projection of it; semantic queries return ids and scores
// only and never serve metadata.
package storage

import (
	"context"
	"time"

	"github.com/boswell-ai/boswell/pkg/types"
)

// ClaimStore is the persistence contract implemented by the sqlite and
// postgres backends. Higher-level semantics (duplicate detection, the
// gatekeeper, confidence computation) live in the engine and compose these
// primitives.
type ClaimStore interface {
	// InsertClaim stores a new claim row together with its first provenance
	// entry and an assert event, in one transaction.
	// Returns ErrInvalid for invariant violations and ErrConflict when the
	// id already exists.
	InsertClaim(ctx context.Context, claim *types.Claim, prov *types.ProvenanceEntry, actor string) error

	// Get retrieves a claim by id, regardless of status.
	// Returns ErrNotFound if absent.
	Get(ctx context.Context, id types.ClaimID) (*types.Claim, error)

	// GetByTriple finds the claim with the exact (namespace, subject,
	// predicate, object) in a non-forgotten status. Used as the structural
	// dedup fallback when the vector index is unavailable.
	GetByTriple(ctx context.Context, namespace, subject, predicate, object string) (*types.Claim, error)

	// QueryStructural returns claims matching the filter, sorted by id
	// ascending.
	QueryStructural(ctx context.Context, filter StructuralFilter) ([]types.Claim, error)

	// QueryTemporal returns claims whose created_at lies in [since, until),
	// sorted by id ascending. The filter is on created_at; it is not a range
	// scan over the identifier.
	QueryTemporal(ctx context.Context, since, until time.Time, limit int) ([]types.Claim, error)

	// ListNamespaces returns the distinct namespaces with the given prefix
	// (recursive match), sorted.
	ListNamespaces(ctx context.Context, prefix string) ([]string, error)

	// AddProvenance appends an entry and invalidates the confidence cache
	// for the claim and its related neighbors.
	AddProvenance(ctx context.Context, id types.ClaimID, entry *types.ProvenanceEntry) error

	// ProvenanceFor returns all provenance entries for a claim, oldest first.
	ProvenanceFor(ctx context.Context, id types.ClaimID) ([]types.ProvenanceEntry, error)

	// AddRelationship stores a directed edge. Returns ErrConflict when the
	// (source, target, type) triple already exists and ErrNotFound when
	// either endpoint is absent.
	AddRelationship(ctx context.Context, rel *types.Relationship) error

	// RemoveRelationship deletes an edge. Returns ErrNotFound if absent.
	RemoveRelationship(ctx context.Context, source, target types.ClaimID, relType types.RelationType) error

	// RelationshipsFor returns all edges where id is source or target.
	RelationshipsFor(ctx context.Context, id types.ClaimID) ([]types.Relationship, error)

	// UpdateStatus applies a status transition, enforcing the status
	// machine. Illegal transitions return ErrInvalid. The change is
	// recorded in the event log and invalidates the claim's cache.
	UpdateStatus(ctx context.Context, id types.ClaimID, newStatus types.Status, actor string) error

	// SetTier records a tier change. The caller (gatekeeper or janitor) is
	// responsible for direction legality; the store records the event.
	SetTier(ctx context.Context, id types.ClaimID, tier types.Tier, actor string) error

	// IncrementAccess bumps access_count and last_accessed.
	IncrementAccess(ctx context.Context, id types.ClaimID) error

	// TouchStaleness moves staleness_at forward, typically on corroboration.
	TouchStaleness(ctx context.Context, id types.ClaimID, stalenessAt time.Time) error

	// UpdateBaseConfidence rewrites the stored base interval and pushes
	// staleness_at forward. Used by the staleness janitor to bake decay
	// into the base interval.
	UpdateBaseConfidence(ctx context.Context, id types.ClaimID, interval types.ConfidenceInterval, stalenessAt time.Time) error

	// HardDelete removes claims with their provenance, relationships, and
	// cache rows. Used only by GC. Returns the ids of claims that had a
	// relationship to a deleted one, so the caller can invalidate their
	// caches and vector entries.
	HardDelete(ctx context.Context, ids []types.ClaimID) (affectedNeighbors []types.ClaimID, err error)

	// AppendEvent writes one audit record to the append-only event log.
	AppendEvent(ctx context.Context, ev *types.Event) error

	// EventsSince returns events at or after since, oldest first.
	EventsSince(ctx context.Context, since time.Time, limit int) ([]types.Event, error)

	// GetCache returns the confidence cache row for a claim, or ErrNotFound.
	GetCache(ctx context.Context, id types.ClaimID) (*CacheEntry, error)

	// PutCache upserts a cache row. The write is rejected with ErrConflict
	// when the row's version has advanced past entry.Version (a concurrent
	// invalidation won the race).
	PutCache(ctx context.Context, entry *CacheEntry) error

	// InvalidateCache increments versions and marks the rows stale.
	InvalidateCache(ctx context.Context, ids ...types.ClaimID) error

	// InvalidatedCacheIDs returns up to limit claim ids whose cache rows
	// are marked invalid, oldest invalidation first.
	InvalidatedCacheIDs(ctx context.Context, limit int) ([]types.ClaimID, error)

	// AcquireProcessing claims the advisory processing flag for a claim on
	// behalf of worker. Returns false when another live flag holds the row.
	// Flags older than abandonAfter are treated as abandoned and stolen.
	AcquireProcessing(ctx context.Context, id types.ClaimID, worker string, now time.Time, abandonAfter time.Duration) (bool, error)

	// ReleaseProcessing clears the flag if held by worker.
	ReleaseProcessing(ctx context.Context, id types.ClaimID, worker string) error

	// StaleClaims returns non-forgotten claims with staleness_at < now,
	// oldest staleness first.
	StaleClaims(ctx context.Context, now time.Time, limit int) ([]types.Claim, error)

	// InactiveClaims returns claims at the given tier not accessed since
	// the cutoff (claims never accessed compare by creation time).
	InactiveClaims(ctx context.Context, tier types.Tier, cutoff time.Time, limit int) ([]types.Claim, error)

	// ExpiredEphemeral returns ephemeral claims whose TTL has elapsed.
	ExpiredEphemeral(ctx context.Context, now time.Time, limit int) ([]types.Claim, error)

	// ForgottenBefore returns ids of forgotten claims whose last
	// modification predates the cutoff. GC input.
	ForgottenBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.ClaimID, error)

	// ExpireSession transitions the session's ephemeral claims to
	// forgotten. Returns the number of claims expired.
	ExpireSession(ctx context.Context, sessionID string, actor string) (int, error)

	// ContradictionCandidates returns structurally aligned pairs (same
	// subject and predicate, different object, same namespace) among
	// active/challenged claims.
	ContradictionCandidates(ctx context.Context, limit int) ([]ContradictionCandidate, error)

	// ClaimsAtTier returns up to limit active/challenged claims at the tier
	// in the namespace, newest first. Gatekeeper context.
	ClaimsAtTier(ctx context.Context, namespace string, tier types.Tier, limit int) ([]types.Claim, error)

	// IterateEmbeddings streams (id, embedding) for every non-forgotten
	// claim. Vector index rebuild input.
	IterateEmbeddings(ctx context.Context, fn func(id types.ClaimID, embedding []float32) error) error

	// Close releases the backing resources.
	Close() error
}

// VectorIndex is the sidecar contract: (claim_id, vector) pairs with k-NN
// search. A derived projection — if lost or corrupted it is rebuilt from the
// claim store.
type VectorIndex interface {
	// Insert adds or replaces the vector for a claim. A dimension mismatch
	// is ErrInvalid.
	Insert(id types.ClaimID, vector []float32) error

	// Delete removes a claim's entry. Missing ids are not an error.
	Delete(id types.ClaimID)

	// Search returns up to k matches with cosine similarity ≥ threshold,
	// most similar first. Ties break by id descending (prefer newer).
	Search(vector []float32, k int, threshold float64) ([]SemanticMatch, error)

	// Len returns the number of indexed entries.
	Len() int

	// Dimension returns the instance-fixed vector dimension.
	Dimension() int

	// Rebuild clears the index and repopulates it from the iterator. The
	// caller is responsible for the stop-the-world discipline around it.
	Rebuild(iterate func(fn func(id types.ClaimID, vector []float32) error) error) error

	// Save persists the index to its backing file.
	Save() error

	// Close saves and releases the index.
	Close() error
}
