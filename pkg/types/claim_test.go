package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGenerator_MonotonicWithinMillisecond(t *testing.T) {
	gen := NewIDGenerator()
	now := time.Now()

	prev := gen.NewID(now)
	for i := 0; i < 100; i++ {
		next := gen.NewID(now)
		require.Equal(t, -1, prev.Compare(next),
			"ids generated within the same millisecond must be strictly increasing")
		prev = next
	}
}

func TestIDGenerator_OrderMatchesTime(t *testing.T) {
	gen := NewIDGenerator()
	t0 := time.Unix(1_700_000_000, 0)
	t1 := t0.Add(5 * time.Millisecond)

	early := gen.NewID(t0)
	late := gen.NewID(t1)

	assert.Equal(t, -1, early.Compare(late))
	assert.Equal(t, t0.UnixMilli(), early.Time().UnixMilli())
}

func TestClaimID_ParseRoundTrip(t *testing.T) {
	gen := NewIDGenerator()
	id := gen.NewID(time.Now())

	parsed, err := ParseClaimID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestClaimID_ParseRejectsGarbage(t *testing.T) {
	_, err := ParseClaimID("not-a-ulid")
	assert.Error(t, err)
}

func TestClaim_Validate(t *testing.T) {
	gen := NewIDGenerator()
	valid := Claim{
		ID:             gen.NewID(time.Now()),
		Subject:        "Acme",
		Predicate:      "is",
		Object:         "mid-size",
		RawExpression:  "Acme is a mid-size company",
		BaseConfidence: ConfidenceInterval{Lo: 0.3, Hi: 0.8},
		Namespace:      "org/acme",
		Tier:           TierTask,
		Status:         StatusActive,
	}

	tests := []struct {
		name    string
		mutate  func(*Claim)
		wantErr bool
	}{
		{"valid", func(c *Claim) {}, false},
		{"empty subject", func(c *Claim) { c.Subject = "  " }, true},
		{"empty predicate", func(c *Claim) { c.Predicate = "" }, true},
		{"empty object", func(c *Claim) { c.Object = "" }, true},
		{"empty namespace", func(c *Claim) { c.Namespace = "" }, true},
		{"bad tier", func(c *Claim) { c.Tier = "galactic" }, true},
		{"bad status", func(c *Claim) { c.Status = "zombie" }, true},
		{"inverted interval", func(c *Claim) { c.BaseConfidence = ConfidenceInterval{Lo: 0.9, Hi: 0.2} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClaim_TripleEquals(t *testing.T) {
	c := Claim{Subject: " Acme ", Predicate: "is", Object: "mid-size"}

	assert.True(t, c.TripleEquals("Acme", "is", "mid-size"))
	assert.False(t, c.TripleEquals("acme", "is", "mid-size"), "comparison is case-sensitive")
	assert.False(t, c.TripleEquals("Acme", "is", "large"))
}
