package engine

import (
	"math"
	"testing"
	"time"

	"github.com/boswell-ai/boswell/pkg/types"
)

func prov(sourceType types.SourceType, contribution float64) types.ProvenanceEntry {
	return types.ProvenanceEntry{
		SourceType:             sourceType,
		SourceID:               "test",
		Timestamp:              time.Unix(0, 0),
		ConfidenceContribution: contribution,
	}
}

func almostEqual(t *testing.T, want, got float64, context string) {
	t.Helper()
	if math.Abs(want-got) > 0.005 {
		t.Errorf("%s: want %v, got %v", context, want, got)
	}
}

// Single source: agg_hi = c and agg_lo = c · diversity(1) with
// diversity(1) = 0.5 + 0.5·(1/3) ≈ 0.667.
func TestAggregateProvenance_SingleSource(t *testing.T) {
	lo, hi := AggregateProvenance([]types.ProvenanceEntry{
		prov(types.SourceAgentAssertion, 0.7),
	}, 3)

	almostEqual(t, 0.7*(0.5+0.5/3.0), lo, "agg_lo single source")
	almostEqual(t, 0.7, hi, "agg_hi single source")
}

func TestAggregateProvenance_TwoSourceTypes(t *testing.T) {
	lo, hi := AggregateProvenance([]types.ProvenanceEntry{
		prov(types.SourceAgentAssertion, 0.7),
		prov(types.SourceUserInput, 0.6),
	}, 3)

	// agg_hi = 1 − (1−0.7)(1−0.6) = 0.88
	almostEqual(t, 0.88, hi, "agg_hi two sources")
	// agg_lo = 0.7 · (0.5 + 0.5·2/3) ≈ 0.583
	almostEqual(t, 0.583, lo, "agg_lo two source types")
}

func TestAggregateProvenance_ThreeSourceTypes(t *testing.T) {
	lo, hi := AggregateProvenance([]types.ProvenanceEntry{
		prov(types.SourceAgentAssertion, 0.7),
		prov(types.SourceUserInput, 0.6),
		prov(types.SourceExtraction, 0.5),
	}, 3)

	// agg_hi = 1 − 0.3·0.4·0.5 = 0.94
	almostEqual(t, 0.94, hi, "agg_hi three sources")
	// Full diversity: agg_lo = 0.7 · 1.0
	almostEqual(t, 0.7, lo, "agg_lo three source types")
}

func TestAggregateProvenance_Empty(t *testing.T) {
	lo, hi := AggregateProvenance(nil, 3)
	if lo != 0 || hi != 0 {
		t.Errorf("empty provenance should aggregate to [0, 0], got [%v, %v]", lo, hi)
	}
}

func TestStalenessFactor_BeforeHorizon(t *testing.T) {
	at := time.Unix(1000, 0)
	if f := StalenessFactor(at.Add(-time.Hour), at, time.Hour); f != 1 {
		t.Errorf("factor before staleness_at should be 1, got %v", f)
	}
}

func TestStalenessFactor_HalfLives(t *testing.T) {
	at := time.Unix(1000, 0)
	halfLife := 3 * 24 * time.Hour

	almostEqual(t, 0.5, StalenessFactor(at.Add(halfLife), at, halfLife), "one half-life")
	almostEqual(t, 0.25, StalenessFactor(at.Add(2*halfLife), at, halfLife), "two half-lives")
}

func TestStalenessFactor_Monotone(t *testing.T) {
	at := time.Unix(1000, 0)
	prev := 1.0
	for d := time.Hour; d < 100*time.Hour; d += time.Hour {
		f := StalenessFactor(at.Add(d), at, 12*time.Hour)
		if f > prev {
			t.Fatalf("staleness factor increased at +%s: %v > %v", d, f, prev)
		}
		prev = f
	}
}

// Staleness decay scenario: tier=task, agg=[0.6, 0.9], one half-life later
// the stale interval is [0.3, 0.45], two half-lives [0.15, 0.225].
func TestStaleInterval_Scenario(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	halfLife := 3 * 24 * time.Hour

	f1 := StalenessFactor(at.Add(halfLife), at, halfLife)
	almostEqual(t, 0.3, 0.6*f1, "stale_lo one half-life")
	almostEqual(t, 0.45, 0.9*f1, "stale_hi one half-life")

	f2 := StalenessFactor(at.Add(2*halfLife), at, halfLife)
	almostEqual(t, 0.15, 0.6*f2, "stale_lo two half-lives")
	almostEqual(t, 0.225, 0.9*f2, "stale_hi two half-lives")
}

// Contradiction scenario: X and Y both at stale [0.5, 0.8];
// contradicts(X → Y, strength 1.0) gives Y
// eff_hi = 0.8·(1 − 0.8·0.2) = 0.672 and eff_lo = 0.5·0.84 = 0.42.
func TestRelationshipAdjustments_Contradiction(t *testing.T) {
	params := DefaultConfidenceParams()
	neighbors := []NeighborInfluence{
		{Type: types.RelContradicts, Strength: 1.0, StaleHi: 0.8},
	}

	boost, penalty := RelationshipAdjustments(neighbors, params)
	almostEqual(t, 1.0, boost, "boost with no supports")
	almostEqual(t, 0.84, penalty, "contradiction penalty")

	effLo := 0.5 * penalty
	effHi := math.Min(0.8*boost*penalty, 1)
	almostEqual(t, 0.42, effLo, "eff_lo")
	almostEqual(t, 0.672, effHi, "eff_hi")
}

func TestRelationshipAdjustments_Support(t *testing.T) {
	params := DefaultConfidenceParams()
	neighbors := []NeighborInfluence{
		{Type: types.RelSupports, Strength: 1.0, StaleHi: 0.9},
	}

	boost, penalty := RelationshipAdjustments(neighbors, params)
	almostEqual(t, 1.09, boost, "support boost")
	almostEqual(t, 1.0, penalty, "penalty with no contradictions")
}

func TestRelationshipAdjustments_PenaltyClampsAtZero(t *testing.T) {
	params := DefaultConfidenceParams()
	neighbors := []NeighborInfluence{
		{Type: types.RelContradicts, Strength: 1.0, StaleHi: 1.0},
		{Type: types.RelContradicts, Strength: 1.0, StaleHi: 1.0},
		{Type: types.RelContradicts, Strength: 1.0, StaleHi: 1.0},
		{Type: types.RelContradicts, Strength: 1.0, StaleHi: 1.0},
		{Type: types.RelContradicts, Strength: 1.0, StaleHi: 1.0},
		{Type: types.RelContradicts, Strength: 1.0, StaleHi: 1.0},
	}

	_, penalty := RelationshipAdjustments(neighbors, params)
	if penalty < 0 {
		t.Errorf("penalty must clamp at 0, got %v", penalty)
	}
}

// P1: effective intervals are always ordered and within [0, 1], across a
// grid of inputs.
func TestEffectiveInterval_Bounds(t *testing.T) {
	params := DefaultConfidenceParams()
	at := time.Unix(1_700_000_000, 0)

	for _, contribution := range []float64{0, 0.3, 0.7, 1} {
		for _, elapsed := range []time.Duration{0, time.Hour, 240 * time.Hour} {
			for _, staleHi := range []float64{0, 0.5, 1} {
				entries := []types.ProvenanceEntry{prov(types.SourceUserInput, contribution)}
				neighbors := []NeighborInfluence{
					{Type: types.RelSupports, Strength: 1, StaleHi: staleHi},
					{Type: types.RelContradicts, Strength: 1, StaleHi: staleHi},
				}
				interval := EffectiveInterval(entries, at.Add(elapsed), at, time.Hour, neighbors, params)
				if interval.Lo < 0 || interval.Hi > 1 || interval.Lo > interval.Hi {
					t.Fatalf("interval out of bounds: %+v (c=%v elapsed=%v staleHi=%v)",
						interval, contribution, elapsed, staleHi)
				}
			}
		}
	}
}

func TestEffectiveInterval_InstanceTrustScales(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	entries := []types.ProvenanceEntry{prov(types.SourceUserInput, 0.8)}

	full := DefaultConfidenceParams()
	half := DefaultConfidenceParams()
	half.InstanceTrust = 0.5

	a := EffectiveInterval(entries, at, at.Add(time.Hour), time.Hour, nil, full)
	b := EffectiveInterval(entries, at, at.Add(time.Hour), time.Hour, nil, half)

	almostEqual(t, a.Hi*0.5, b.Hi, "instance trust scales hi")
	almostEqual(t, a.Lo*0.5, b.Lo, "instance trust scales lo")
}

func TestCheckSynthesizedBounds(t *testing.T) {
	parents := []types.ConfidenceInterval{
		{Lo: 0.4, Hi: 0.8},
		{Lo: 0.6, Hi: 0.9},
	}

	if !CheckSynthesizedBounds(types.ConfidenceInterval{Lo: 0.3, Hi: 0.9}, parents) {
		t.Error("wider-than-parents interval should pass")
	}
	if CheckSynthesizedBounds(types.ConfidenceInterval{Lo: 0.5, Hi: 0.9}, parents) {
		t.Error("lo above min parent lo should fail")
	}
	if CheckSynthesizedBounds(types.ConfidenceInterval{Lo: 0.3, Hi: 0.95}, parents) {
		t.Error("hi above max parent hi should fail")
	}
	if CheckSynthesizedBounds(types.ConfidenceInterval{Lo: 0.1, Hi: 0.5}, nil) {
		t.Error("no parents should fail")
	}
}
