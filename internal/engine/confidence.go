package engine

import (
	"math"
	"time"

	"github.com/boswell-ai/boswell/pkg/types"
)

// ConfidenceParams are the tunable constants of the deterministic confidence
// formula. The formula's contract — which inputs matter and in which
// direction — is stable; these only scale the effects.
type ConfidenceParams struct {
	// Boost scales the summed support contributions (default 0.1).
	Boost float64

	// Penalty scales the summed contradiction contributions (default 0.2).
	Penalty float64

	// DiversityMaxTypes saturates the source-diversity factor (default 3).
	DiversityMaxTypes int

	// InstanceTrust scales the final interval (default 1.0).
	InstanceTrust float64
}

// DefaultConfidenceParams returns the documented defaults.
func DefaultConfidenceParams() ConfidenceParams {
	return ConfidenceParams{
		Boost:             0.1,
		Penalty:           0.2,
		DiversityMaxTypes: 3,
		InstanceTrust:     1.0,
	}
}

// AggregateProvenance is step 1: fold provenance contributions into the
// aggregate interval.
//
//	agg_hi = 1 − ∏(1 − c_i)          (independent-support aggregation)
//	agg_lo = max(c_i) · diversity(k)  with diversity(k) = 0.5 + 0.5·min(k/m, 1)
//
// where k counts distinct source types and m is DiversityMaxTypes.
func AggregateProvenance(entries []types.ProvenanceEntry, maxTypes int) (lo, hi float64) {
	if len(entries) == 0 {
		return 0, 0
	}
	if maxTypes <= 0 {
		maxTypes = 3
	}

	product := 1.0
	maxContribution := 0.0
	sourceTypes := make(map[types.SourceType]struct{}, len(entries))
	for _, e := range entries {
		product *= 1 - e.ConfidenceContribution
		if e.ConfidenceContribution > maxContribution {
			maxContribution = e.ConfidenceContribution
		}
		sourceTypes[e.SourceType] = struct{}{}
	}

	hi = 1 - product
	diversity := 0.5 + 0.5*math.Min(float64(len(sourceTypes))/float64(maxTypes), 1)
	lo = maxContribution * diversity
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// StalenessFactor is step 2: the half-life decay factor. It is 1 before
// stalenessAt and 0.5^(elapsed/halfLife) after, monotonically non-increasing
// in time.
func StalenessFactor(now, stalenessAt time.Time, halfLife time.Duration) float64 {
	if stalenessAt.IsZero() || !now.After(stalenessAt) {
		return 1
	}
	if halfLife <= 0 {
		return 1
	}
	halfLives := float64(now.Sub(stalenessAt)) / float64(halfLife)
	return math.Pow(0.5, halfLives)
}

// NeighborInfluence is a direct neighbor's contribution to step 3. StaleHi
// is the neighbor's interval after steps 1–2 only — never its own effective
// value, which bounds the recursion to depth one and makes cycles
// structurally impossible.
type NeighborInfluence struct {
	Type     types.RelationType
	Strength float64
	StaleHi  float64
}

// RelationshipAdjustments is step 3: fold neighbor influences into the
// support boost and contradiction penalty multipliers.
func RelationshipAdjustments(neighbors []NeighborInfluence, params ConfidenceParams) (boost, penalty float64) {
	var supportSum, contradictionSum float64
	for _, n := range neighbors {
		weighted := n.StaleHi * n.Strength
		switch n.Type {
		case types.RelSupports:
			supportSum += weighted
		case types.RelContradicts:
			contradictionSum += weighted
		}
	}

	boost = 1 + supportSum*params.Boost
	penalty = 1 - contradictionSum*params.Penalty
	if penalty < 0 {
		penalty = 0
	}
	return boost, penalty
}

// EffectiveInterval runs the full formula: provenance aggregation,
// staleness decay, relationship adjustment, and instance-trust scaling.
func EffectiveInterval(
	entries []types.ProvenanceEntry,
	now, stalenessAt time.Time,
	halfLife time.Duration,
	neighbors []NeighborInfluence,
	params ConfidenceParams,
) types.ConfidenceInterval {
	aggLo, aggHi := AggregateProvenance(entries, params.DiversityMaxTypes)

	f := StalenessFactor(now, stalenessAt, halfLife)
	staleLo := aggLo * f
	staleHi := aggHi * f

	boost, penalty := RelationshipAdjustments(neighbors, params)

	effLo := staleLo * penalty
	effHi := math.Min(staleHi*boost*penalty, 1)

	trust := params.InstanceTrust
	if trust <= 0 || trust > 1 {
		trust = 1
	}
	effLo *= trust
	effHi *= trust

	return types.ConfidenceInterval{Lo: effLo, Hi: effHi}.Clamp()
}

// StaleInterval runs steps 1–2 only. This is what neighbors feed into step
// 3, and what the staleness janitor writes back.
func StaleInterval(
	entries []types.ProvenanceEntry,
	now, stalenessAt time.Time,
	halfLife time.Duration,
	params ConfidenceParams,
) types.ConfidenceInterval {
	aggLo, aggHi := AggregateProvenance(entries, params.DiversityMaxTypes)
	f := StalenessFactor(now, stalenessAt, halfLife)
	return types.ConfidenceInterval{Lo: aggLo * f, Hi: aggHi * f}.Clamp()
}

// CheckSynthesizedBounds enforces the derived-claim contract: a synthesized
// interval must be at least as uncertain as its parents — lo no higher than
// the smallest parent lo, hi no higher than the largest parent hi.
func CheckSynthesizedBounds(interval types.ConfidenceInterval, parents []types.ConfidenceInterval) bool {
	if len(parents) == 0 {
		return false
	}
	minLo, maxHi := 1.0, 0.0
	for _, p := range parents {
		if p.Lo < minLo {
			minLo = p.Lo
		}
		if p.Hi > maxHi {
			maxHi = p.Hi
		}
	}
	return interval.Lo <= minLo && interval.Hi <= maxHi
}
