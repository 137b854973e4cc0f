package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name     string
		ns       string
		maxDepth int
		wantErr  bool
	}{
		{"single segment", "project", 5, false},
		{"nested", "a/b/c", 5, false},
		{"at depth limit", "a/b/c/d/e/f", 5, false},
		{"over depth limit", "a/b/c/d/e/f/g", 5, true},
		{"empty", "", 5, true},
		{"leading slash", "/a", 5, true},
		{"trailing slash", "a/", 5, true},
		{"empty segment", "a//b", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.ns, tt.maxDepth)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseNamespacePattern(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		p, err := ParseNamespacePattern("a/b")
		require.NoError(t, err)
		assert.False(t, p.Recursive)
		assert.Equal(t, "a/b", p.Prefix)
	})

	t.Run("recursive", func(t *testing.T) {
		p, err := ParseNamespacePattern("a/*")
		require.NoError(t, err)
		assert.True(t, p.Recursive)
		assert.Equal(t, "a", p.Prefix)
		assert.Equal(t, -1, p.MaxExtraDepth)
	})

	t.Run("depth limited", func(t *testing.T) {
		p, err := ParseNamespacePattern("a/*/1")
		require.NoError(t, err)
		assert.True(t, p.Recursive)
		assert.Equal(t, "a", p.Prefix)
		assert.Equal(t, 1, p.MaxExtraDepth)
	})

	t.Run("invalid depth", func(t *testing.T) {
		_, err := ParseNamespacePattern("a/*/x")
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseNamespacePattern("")
		assert.Error(t, err)
	})
}

// The recursive-query scenario: claims at a, a/b, a/b/c, a/d; "a/*" matches
// all four, "a/*/1" matches a, a/b, and a/d but not a/b/c.
func TestNamespacePattern_Matches(t *testing.T) {
	namespaces := []string{"a", "a/b", "a/b/c", "a/d"}

	recursive, err := ParseNamespacePattern("a/*")
	require.NoError(t, err)
	for _, ns := range namespaces {
		assert.True(t, recursive.Matches(ns), "a/* should match %s", ns)
	}
	assert.False(t, recursive.Matches("ab"), "prefix match must respect segment boundaries")

	limited, err := ParseNamespacePattern("a/*/1")
	require.NoError(t, err)
	assert.True(t, limited.Matches("a"))
	assert.True(t, limited.Matches("a/b"))
	assert.True(t, limited.Matches("a/d"))
	assert.False(t, limited.Matches("a/b/c"))

	exact, err := ParseNamespacePattern("a/b")
	require.NoError(t, err)
	assert.True(t, exact.Matches("a/b"))
	assert.False(t, exact.Matches("a/b/c"))
	assert.False(t, exact.Matches("a"))
}
