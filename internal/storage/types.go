package storage

import (
	"time"

	"github.com/boswell-ai/boswell/pkg/types"
)

// StructuralFilter selects claims by their stored structure. Zero values
// leave the corresponding dimension unconstrained.
type StructuralFilter struct {
	Subject   string
	Predicate string
	Object    string

	// Namespace is a namespace pattern: exact ("a/b"), recursive ("a/b/*"),
	// or depth-limited ("a/b/*/2"). Empty means all namespaces.
	Namespace string

	// Tiers restricts to the given tiers; empty means all.
	Tiers []types.Tier

	// Statuses restricts to the given statuses. Empty applies the default
	// {active, challenged} filter; use AllStatuses to disable filtering.
	Statuses []types.Status

	// AllStatuses disables the default status filter entirely.
	AllStatuses bool

	// MinLo / MinHi bound the stored base confidence. Negative means
	// unconstrained.
	MinLo float64
	MinHi float64

	// ModifiedSince / ModifiedUntil bound last_modified. Zero values are
	// unconstrained.
	ModifiedSince time.Time
	ModifiedUntil time.Time

	// SessionID restricts to claims created in the given session.
	SessionID string

	// Limit caps the result size; 0 applies the default.
	Limit int
}

// Default and maximum result sizes for structural queries.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Normalize applies defaults to the filter.
func (f *StructuralFilter) Normalize() {
	if len(f.Statuses) == 0 && !f.AllStatuses {
		f.Statuses = append(f.Statuses, types.DefaultQueryStatuses...)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
}

// SemanticMatch pairs a claim id with its similarity to a query vector.
type SemanticMatch struct {
	ID         types.ClaimID
	Similarity float64
}

// CacheEntry is one row of the confidence cache: a derived projection of the
// effective interval per claim. Losing it is never a data-loss event.
type CacheEntry struct {
	ClaimID    types.ClaimID
	Interval   types.ConfidenceInterval
	ComputedAt time.Time

	// Version increments on every invalidation; a cached interval is fresh
	// only while its version matches the row's current version.
	Version int64

	// Invalidated marks the entry as needing recomputation.
	Invalidated bool
}

// ProcessingFlag is the advisory per-row coordination marker janitors use to
// serialize their work on a claim. Flags older than the abandonment
// threshold are treated as free.
type ProcessingFlag struct {
	ClaimID   types.ClaimID
	Worker    string
	ClaimedAt time.Time
}

// ContradictionCandidate is a structurally aligned pair: same subject and
// predicate, different object, both sides active or challenged.
type ContradictionCandidate struct {
	A types.Claim
	B types.Claim
}
