package engine

import (
	"time"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// Outcome distinguishes a write that created a row from one that
// corroborated an existing claim.
type Outcome string

// Assert outcomes.
const (
	OutcomeCreated      Outcome = "created"
	OutcomeCorroborated Outcome = "corroborated"
)

// Advocacy is the writer's request-scoped importance tuple. It is handed to
// the gatekeeper and never persisted on the claim.
type Advocacy struct {
	PerceivedImportance float64 `json:"perceived_importance"`
	AdvocacyConfidence  float64 `json:"advocacy_confidence"`
}

// AssertInput is one write into the claim engine.
type AssertInput struct {
	Subject       string `json:"subject"`
	Predicate     string `json:"predicate"`
	Object        string `json:"object"`
	RawExpression string `json:"raw_expression"`
	Namespace     string `json:"namespace"`

	// Provenance for the write.
	SourceType   types.SourceType `json:"source_type"`
	SourceID     string           `json:"source_id"`
	Contribution float64          `json:"contribution"`
	Context      string           `json:"context,omitempty"`

	// TargetTier, when set above ephemeral, routes the write through the
	// gatekeeper. Nil lands at ephemeral.
	TargetTier *types.Tier `json:"target_tier,omitempty"`

	// Advocacy accompanies a tier-targeting write.
	Advocacy *Advocacy `json:"advocacy,omitempty"`

	SessionID  string         `json:"session_id,omitempty"`
	TTL        *time.Duration `json:"ttl,omitempty"`
	ValidFrom  *time.Time     `json:"valid_from,omitempty"`
	ValidUntil *time.Time     `json:"valid_until,omitempty"`
}

// AssertResult reports where a write landed.
type AssertResult struct {
	ClaimID    types.ClaimID `json:"claim_id"`
	Outcome    Outcome       `json:"outcome"`
	ActualTier types.Tier    `json:"actual_tier"`

	// Reasoning carries the gatekeeper verdict for tier-targeting writes.
	Reasoning string `json:"reasoning,omitempty"`
}

// BatchItem is one per-input outcome of a batch write. Batches are not
// atomic as a whole; each input succeeds or fails alone.
type BatchItem struct {
	Index  int           `json:"index"`
	Result *AssertResult `json:"result,omitempty"`
	Err    error         `json:"-"`
}

// ConflictPolicy governs treatment of semantic contradictions during bulk
// load.
type ConflictPolicy string

// Conflict policies.
const (
	// ConflictFlag records a contradicts relationship and continues.
	ConflictFlag ConflictPolicy = "flag"

	// ConflictQuiet loads without contradiction checks.
	ConflictQuiet ConflictPolicy = "quiet"

	// ConflictReject fails the conflicting input.
	ConflictReject ConflictPolicy = "reject"
)

// LearnRequest is the bulk ingestion path. It skips the extractor but not
// duplicate detection.
type LearnRequest struct {
	Inputs []AssertInput `json:"inputs"`

	// TrustLevel scales each input's confidence contribution, in [0, 1].
	TrustLevel float64 `json:"trust_level"`

	ConflictPolicy ConflictPolicy `json:"conflict_policy"`
	Namespace      string         `json:"namespace"`
	Tier           types.Tier     `json:"tier"`
	SourceID       string         `json:"source_id"`
}

// LearnResult reports per-input outcomes and the conflicts found.
type LearnResult struct {
	Items     []BatchItem `json:"items"`
	Conflicts int         `json:"conflicts"`
}

// TemporalRange is a creation-time window.
type TemporalRange struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// QueryRequest composes the read surface. Exactly one of Structural,
// SemanticText, or Temporal drives candidate selection; the shared filters
// apply afterwards.
type QueryRequest struct {
	Structural *storage.StructuralFilter `json:"structural,omitempty"`

	// SemanticText is embedded and run against the vector index.
	SemanticText string  `json:"semantic_text,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`

	Temporal *TemporalRange `json:"temporal,omitempty"`

	// Shared post-filters for semantic and temporal candidates.
	NamespacePattern string         `json:"namespace_pattern,omitempty"`
	Tiers            []types.Tier   `json:"tiers,omitempty"`
	Statuses         []types.Status `json:"statuses,omitempty"`
	MinLo            float64        `json:"min_lo,omitempty"`
	MinHi            float64        `json:"min_hi,omitempty"`

	// Deliberate routes the fetched claims through the bound reasoner for a
	// query-contextual interval and narrative. Cached values are never
	// overwritten by deliberate results.
	Deliberate   bool   `json:"deliberate,omitempty"`
	QueryContext string `json:"query_context,omitempty"`
}

// ScoredClaim is a query hit with its effective interval.
type ScoredClaim struct {
	Claim     types.Claim              `json:"claim"`
	Effective types.ConfidenceInterval `json:"effective"`

	// Similarity is set for semantic hits.
	Similarity float64 `json:"similarity,omitempty"`

	// Reasoning is set in deliberate mode.
	Reasoning string `json:"reasoning,omitempty"`
}

// QueryResult is the read response.
type QueryResult struct {
	Claims []ScoredClaim `json:"claims"`

	// Narrative is set in deliberate mode.
	Narrative string `json:"narrative,omitempty"`
}

// ChallengeRequest disputes a claim, optionally backed by a challenger
// claim.
type ChallengeRequest struct {
	TargetID     types.ClaimID  `json:"target_id"`
	ChallengerID *types.ClaimID `json:"challenger_id,omitempty"`
	Evidence     string         `json:"evidence"`
	Actor        string         `json:"actor,omitempty"`
}

// ChallengeResult reports the dispute's effect.
type ChallengeResult struct {
	// Relationship is the contradicts edge created when a challenger claim
	// was named; nil otherwise.
	Relationship *types.Relationship `json:"relationship,omitempty"`

	TargetStatus types.Status `json:"target_status"`
}

// PromoteCandidate is one explicit promotion request.
type PromoteCandidate struct {
	ID         types.ClaimID `json:"id"`
	TargetTier types.Tier    `json:"target_tier"`
	Advocacy   Advocacy      `json:"advocacy"`
}

// PromoteStatus classifies a promotion outcome.
type PromoteStatus string

// Promotion outcomes.
const (
	PromotePromoted   PromoteStatus = "promoted"
	PromoteDowngraded PromoteStatus = "downgraded"
	PromoteRejected   PromoteStatus = "rejected"
	PromoteDeferred   PromoteStatus = "deferred"
	PromoteNotFound   PromoteStatus = "not_found"
	PromoteNoop       PromoteStatus = "noop"
)

// PromoteResult reports one candidate's outcome.
type PromoteResult struct {
	ID           types.ClaimID `json:"id"`
	Status       PromoteStatus `json:"status"`
	PreviousTier types.Tier    `json:"previous_tier"`
	CurrentTier  types.Tier    `json:"current_tier"`
	Reasoning    string        `json:"reasoning,omitempty"`
}

// ForgetStatus classifies a forget outcome. Forget is idempotent.
type ForgetStatus string

// Forget outcomes.
const (
	ForgetForgotten        ForgetStatus = "forgotten"
	ForgetAlreadyForgotten ForgetStatus = "already_forgotten"
	ForgetNotFound         ForgetStatus = "not_found"
)

// ForgetResult reports one id's outcome.
type ForgetResult struct {
	ID     types.ClaimID `json:"id"`
	Status ForgetStatus  `json:"status"`
}

// ExtractRequest turns free text into claims via the external extractor.
type ExtractRequest struct {
	Text      string     `json:"text"`
	Namespace string     `json:"namespace"`
	Tier      types.Tier `json:"tier"`
	SourceID  string     `json:"source_id"`
}

// ExtractResult reports per-proposal outcomes.
type ExtractResult struct {
	Results           []AssertResult `json:"results"`
	CreatedCount      int            `json:"created_count"`
	CorroboratedCount int            `json:"corroborated_count"`
}

// ReflectRequest asks for a narrative overview of a topic.
type ReflectRequest struct {
	Topic     string `json:"topic"`
	Namespace string `json:"namespace"`
	Depth     int    `json:"depth"`
}

// ContradictionNote pairs two claims in tension.
type ContradictionNote struct {
	A         ScoredClaim `json:"a"`
	B         ScoredClaim `json:"b"`
	Rationale string      `json:"rationale,omitempty"`
}

// ReflectResult is the reflection response.
type ReflectResult struct {
	Narrative      string              `json:"narrative"`
	Supporting     []ScoredClaim       `json:"supporting"`
	WeakSpots      []ScoredClaim       `json:"weak_spots"`
	Contradictions []ContradictionNote `json:"contradictions"`
}
