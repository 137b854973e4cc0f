package types

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ClaimID is a 128-bit chronologically sortable claim identifier (ULID).
// The high bits carry the creation millisecond; the low bits are random, and
// increment within the same millisecond on the same writer so lexicographic
// order matches creation order.
type ClaimID struct {
	u ulid.ULID
}

// ZeroClaimID is the zero value; it is never a valid claim identifier.
var ZeroClaimID ClaimID

// ParseClaimID parses the canonical 26-character ULID text form.
func ParseClaimID(s string) (ClaimID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return ZeroClaimID, fmt.Errorf("types: invalid claim id %q: %w", s, err)
	}
	return ClaimID{u: u}, nil
}

// String returns the canonical ULID text form.
func (id ClaimID) String() string {
	return id.u.String()
}

// IsZero reports whether id is the zero value.
func (id ClaimID) IsZero() bool {
	return id == ZeroClaimID
}

// Bytes returns the 16-byte binary form.
func (id ClaimID) Bytes() [16]byte {
	return id.u
}

// ClaimIDFromBytes reconstructs an id from its 16-byte binary form.
func ClaimIDFromBytes(b []byte) (ClaimID, error) {
	if len(b) != 16 {
		return ZeroClaimID, fmt.Errorf("types: claim id must be 16 bytes, got %d", len(b))
	}
	var u ulid.ULID
	copy(u[:], b)
	return ClaimID{u: u}, nil
}

// Compare returns -1, 0 or 1 ordering ids by their byte representation,
// which is also creation-time order.
func (id ClaimID) Compare(other ClaimID) int {
	return id.u.Compare(other.u)
}

// Time returns the creation timestamp embedded in the identifier, truncated
// to the millisecond.
func (id ClaimID) Time() time.Time {
	return ulid.Time(id.u.Time())
}

// IDGenerator produces ClaimIDs with monotonic ordering within a millisecond.
// Safe for concurrent use; each writer should hold its own generator.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator returns a generator seeded with crypto/rand entropy.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewID returns the next identifier for the given instant.
func (g *IDGenerator) NewID(now time.Time) ClaimID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ClaimID{u: ulid.MustNew(ulid.Timestamp(now), g.entropy)}
}

// Claim is the fundamental unit of knowledge: a semantic triple with a
// confidence interval, provenance, namespace, and tier lifecycle.
type Claim struct {
	// ID is the unique, chronologically sortable identifier.
	ID ClaimID `json:"id"`

	// Subject, Predicate and Object form the semantic triple.
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`

	// RawExpression preserves the natural-language nuance of the assertion.
	RawExpression string `json:"raw_expression"`

	// Embedding is the fixed-dimension vector for RawExpression. It is held
	// in the relational store as the source of truth for rebuilds; the
	// vector sidecar is a derived projection.
	Embedding []float32 `json:"embedding,omitempty"`

	// BaseConfidence is the stored [lo, hi] interval before relationship
	// adjustment. The effective interval is computed by the confidence engine.
	BaseConfidence ConfidenceInterval `json:"base_confidence"`

	// Namespace is the slash-delimited hierarchical scope.
	Namespace string `json:"namespace"`

	// Tier is the current lifecycle class.
	Tier Tier `json:"tier"`

	// Status is the lifecycle status.
	Status Status `json:"status"`

	CreatedAt    time.Time  `json:"created_at"`
	LastModified time.Time  `json:"last_modified"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	AccessCount  int        `json:"access_count"`

	// StalenessAt is the instant after which staleness decay applies.
	StalenessAt time.Time `json:"staleness_at"`

	// TTL, when set, bounds the claim's ephemeral lifetime.
	TTL *time.Duration `json:"ttl,omitempty"`

	// ValidFrom / ValidUntil bound the claim's real-world validity window.
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	// SessionID scopes ephemeral claims to a writer session; session end
	// expires them.
	SessionID string `json:"session_id,omitempty"`
}

// Validate checks the claim's structural invariants: non-empty trimmed
// triple, valid tier and status, and a well-formed confidence interval.
// Namespace depth is checked by the store against the configured bound.
func (c *Claim) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("types: claim subject is empty")
	}
	if strings.TrimSpace(c.Predicate) == "" {
		return fmt.Errorf("types: claim predicate is empty")
	}
	if strings.TrimSpace(c.Object) == "" {
		return fmt.Errorf("types: claim object is empty")
	}
	if c.Namespace == "" {
		return fmt.Errorf("types: claim namespace is empty")
	}
	if !c.Tier.Valid() {
		return fmt.Errorf("types: invalid tier %q", c.Tier)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("types: invalid status %q", c.Status)
	}
	if err := c.BaseConfidence.Validate(); err != nil {
		return err
	}
	return nil
}

// TripleEquals reports whether the claim's trimmed triple matches the given
// one. Comparison is case-sensitive; corroboration requires an exact match.
func (c *Claim) TripleEquals(subject, predicate, object string) bool {
	return strings.TrimSpace(c.Subject) == strings.TrimSpace(subject) &&
		strings.TrimSpace(c.Predicate) == strings.TrimSpace(predicate) &&
		strings.TrimSpace(c.Object) == strings.TrimSpace(object)
}
