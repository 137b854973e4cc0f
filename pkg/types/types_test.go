package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTier_Progression(t *testing.T) {
	next, ok := TierEphemeral.Next()
	assert.True(t, ok)
	assert.Equal(t, TierTask, next)

	next, ok = TierTask.Next()
	assert.True(t, ok)
	assert.Equal(t, TierProject, next)

	next, ok = TierProject.Next()
	assert.True(t, ok)
	assert.Equal(t, TierPermanent, next)

	_, ok = TierPermanent.Next()
	assert.False(t, ok)
}

func TestTier_Demotion(t *testing.T) {
	prev, ok := TierPermanent.Previous()
	assert.True(t, ok)
	assert.Equal(t, TierProject, prev)

	prev, ok = TierTask.Previous()
	assert.True(t, ok)
	assert.Equal(t, TierEphemeral, prev)

	_, ok = TierEphemeral.Previous()
	assert.False(t, ok)
}

func TestTier_Rank(t *testing.T) {
	assert.True(t, TierEphemeral.Rank() < TierTask.Rank())
	assert.True(t, TierTask.Rank() < TierProject.Rank())
	assert.True(t, TierProject.Rank() < TierPermanent.Rank())
	assert.Equal(t, -1, Tier("bogus").Rank())
}

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier("project")
	assert.True(t, ok)
	assert.Equal(t, TierProject, tier)

	_, ok = ParseTier("eternal")
	assert.False(t, ok)
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusChallenged, true},
		{StatusActive, StatusDeprecated, true},
		{StatusActive, StatusForgotten, true},
		{StatusChallenged, StatusActive, true},
		{StatusChallenged, StatusDeprecated, true},
		{StatusChallenged, StatusForgotten, true},
		{StatusDeprecated, StatusForgotten, true},
		{StatusDeprecated, StatusActive, false},
		{StatusDeprecated, StatusChallenged, false},
		{StatusForgotten, StatusActive, false},
		{StatusForgotten, StatusDeprecated, false},
		{StatusActive, StatusActive, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransition(tt.to)
		assert.Equal(t, tt.want, got, "%s → %s", tt.from, tt.to)
	}
}

func TestSourceType_Valid(t *testing.T) {
	for _, st := range ValidSourceTypes {
		assert.True(t, st.Valid(), "%s", st)
	}
	assert.False(t, SourceType("telepathy").Valid())
}

func TestRelationType_Valid(t *testing.T) {
	for _, rt := range ValidRelationTypes {
		assert.True(t, rt.Valid(), "%s", rt)
	}
	assert.False(t, RelationType("friends_with").Valid())
}
