// Package types defines the core data structures for the Boswell claim engine.
// These types represent claims, confidence intervals, provenance, relationships,
// and the tier/status lifecycle that the storage and engine layers operate on.
package types

// Tier is the lifecycle class of a claim. Claims progress through tiers with
// different retention and evaluation criteria.
type Tier string

// Tier constants, ordered from shortest-lived to longest-lived.
const (
	// TierEphemeral holds short-lived claims (hours to days).
	TierEphemeral Tier = "ephemeral"

	// TierTask holds task-specific claims (days to weeks).
	TierTask Tier = "task"

	// TierProject holds project-level claims (weeks to months).
	TierProject Tier = "project"

	// TierPermanent holds core knowledge (indefinite).
	TierPermanent Tier = "permanent"
)

// ValidTiers lists all tiers in promotion order.
var ValidTiers = []Tier{TierEphemeral, TierTask, TierProject, TierPermanent}

// tierRank maps each tier to its position in the promotion order.
var tierRank = map[Tier]int{
	TierEphemeral: 0,
	TierTask:      1,
	TierProject:   2,
	TierPermanent: 3,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the tier's position in the promotion order (ephemeral = 0).
// Unknown tiers rank below ephemeral.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// Next returns the next tier in the hierarchy for promotion, or false when
// already at permanent.
func (t Tier) Next() (Tier, bool) {
	r := t.Rank()
	if r < 0 || r >= len(ValidTiers)-1 {
		return t, false
	}
	return ValidTiers[r+1], true
}

// Previous returns the previous tier in the hierarchy for demotion, or false
// when already at ephemeral.
func (t Tier) Previous() (Tier, bool) {
	r := t.Rank()
	if r <= 0 {
		return t, false
	}
	return ValidTiers[r-1], true
}

// ParseTier parses a tier name. Returns false for unknown names.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	return t, t.Valid()
}

// Status is the lifecycle status of a claim.
type Status string

// Status constants.
const (
	// StatusActive is the normal, queryable state.
	StatusActive Status = "active"

	// StatusChallenged marks a claim under active dispute.
	StatusChallenged Status = "challenged"

	// StatusDeprecated marks a claim superseded or resolved against.
	StatusDeprecated Status = "deprecated"

	// StatusForgotten is terminal at the row level; GC removes the row after
	// the retention period.
	StatusForgotten Status = "forgotten"
)

// ValidStatuses lists all claim statuses.
var ValidStatuses = []Status{StatusActive, StatusChallenged, StatusDeprecated, StatusForgotten}

// DefaultQueryStatuses is the status filter applied when a query does not
// specify one.
var DefaultQueryStatuses = []Status{StatusActive, StatusChallenged}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusChallenged, StatusDeprecated, StatusForgotten:
		return true
	}
	return false
}

// legalTransitions encodes the status machine. Any status may transition to
// forgotten; forgotten is terminal.
var legalTransitions = map[Status][]Status{
	StatusActive:     {StatusChallenged, StatusDeprecated, StatusForgotten},
	StatusChallenged: {StatusActive, StatusDeprecated, StatusForgotten},
	StatusDeprecated: {StatusForgotten},
	StatusForgotten:  {},
}

// CanTransition reports whether the status machine permits s → to.
func (s Status) CanTransition(to Status) bool {
	for _, t := range legalTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// SourceType classifies the origin of a provenance entry.
type SourceType string

// SourceType constants.
const (
	SourceExtraction          SourceType = "extraction"
	SourceAgentAssertion      SourceType = "agent_assertion"
	SourceUserInput           SourceType = "user_input"
	SourceInference           SourceType = "inference"
	SourceCorroboration       SourceType = "corroboration"
	SourceDirectLoad          SourceType = "direct_load"
	SourceGatekeeperReasoning SourceType = "gatekeeper_reasoning"
)

// ValidSourceTypes lists all provenance source types.
var ValidSourceTypes = []SourceType{
	SourceExtraction,
	SourceAgentAssertion,
	SourceUserInput,
	SourceInference,
	SourceCorroboration,
	SourceDirectLoad,
	SourceGatekeeperReasoning,
}

// Valid reports whether st is a known source type.
func (st SourceType) Valid() bool {
	for _, v := range ValidSourceTypes {
		if v == st {
			return true
		}
	}
	return false
}

// RelationType classifies a directed relationship between two claims.
type RelationType string

// RelationType constants.
const (
	// RelSupports increases the target's effective confidence.
	RelSupports RelationType = "supports"

	// RelContradicts decreases the target's effective confidence.
	RelContradicts RelationType = "contradicts"

	// RelRefines narrows or sharpens the target claim.
	RelRefines RelationType = "refines"

	// RelSupersedes marks the source as the newer version of the target.
	RelSupersedes RelationType = "supersedes"

	// RelDerivedFrom links a synthesized claim to a parent.
	RelDerivedFrom RelationType = "derived_from"

	// RelRelatedTo is a generic association with no confidence effect.
	RelRelatedTo RelationType = "related_to"
)

// ValidRelationTypes lists all relationship types.
var ValidRelationTypes = []RelationType{
	RelSupports,
	RelContradicts,
	RelRefines,
	RelSupersedes,
	RelDerivedFrom,
	RelRelatedTo,
}

// Valid reports whether rt is a known relation type.
func (rt RelationType) Valid() bool {
	for _, v := range ValidRelationTypes {
		if v == rt {
			return true
		}
	}
	return false
}
