package types

import (
	"fmt"
	"strings"
)

// DefaultMaxNamespaceDepth bounds namespace nesting when no explicit limit is
// configured. Depth is evaluated as the slash count.
const DefaultMaxNamespaceDepth = 5

// NamespaceDepth returns the number of slashes in ns.
func NamespaceDepth(ns string) int {
	return strings.Count(ns, "/")
}

// ValidateNamespace checks that ns is non-empty, carries no empty segments,
// and does not exceed maxDepth slashes.
func ValidateNamespace(ns string, maxDepth int) error {
	if ns == "" {
		return fmt.Errorf("types: namespace is empty")
	}
	if strings.HasPrefix(ns, "/") || strings.HasSuffix(ns, "/") || strings.Contains(ns, "//") {
		return fmt.Errorf("types: namespace %q has empty segments", ns)
	}
	if d := NamespaceDepth(ns); d > maxDepth {
		return fmt.Errorf("types: namespace %q depth %d exceeds maximum %d", ns, d, maxDepth)
	}
	return nil
}

// NamespaceMatchesExact reports ns == pattern.
func NamespaceMatchesExact(ns, pattern string) bool {
	return ns == pattern
}

// NamespaceMatchesRecursive reports whether ns equals prefix or lives under
// it (prefix + "/").
func NamespaceMatchesRecursive(ns, prefix string) bool {
	return ns == prefix || strings.HasPrefix(ns, prefix+"/")
}

// NamespaceMatchesDepthLimited is the recursive match restricted to
// namespaces at most extraDepth levels below prefix.
func NamespaceMatchesDepthLimited(ns, prefix string, extraDepth int) bool {
	if !NamespaceMatchesRecursive(ns, prefix) {
		return false
	}
	return NamespaceDepth(ns)-NamespaceDepth(prefix) <= extraDepth
}

// NamespacePattern is a parsed namespace query pattern. Three forms are
// supported: exact ("a/b"), recursive ("a/b/*"), and depth-limited
// ("a/b/*/2" — recursive, at most 2 levels below the prefix).
type NamespacePattern struct {
	Prefix string
	// Recursive is true for "p/*" and "p/*/k" forms.
	Recursive bool
	// MaxExtraDepth is the k in "p/*/k"; negative means unbounded.
	MaxExtraDepth int
}

// ParseNamespacePattern parses the textual pattern forms.
func ParseNamespacePattern(pattern string) (NamespacePattern, error) {
	if pattern == "" {
		return NamespacePattern{}, fmt.Errorf("types: empty namespace pattern")
	}

	// Depth-limited: "prefix/*/k"
	if i := strings.Index(pattern, "/*/"); i >= 0 {
		prefix := pattern[:i]
		var k int
		if _, err := fmt.Sscanf(pattern[i+3:], "%d", &k); err != nil || k < 0 {
			return NamespacePattern{}, fmt.Errorf("types: invalid depth bound in pattern %q", pattern)
		}
		if prefix == "" {
			return NamespacePattern{}, fmt.Errorf("types: empty prefix in pattern %q", pattern)
		}
		return NamespacePattern{Prefix: prefix, Recursive: true, MaxExtraDepth: k}, nil
	}

	// Recursive: "prefix/*"
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if prefix == "" {
			return NamespacePattern{}, fmt.Errorf("types: empty prefix in pattern %q", pattern)
		}
		return NamespacePattern{Prefix: prefix, Recursive: true, MaxExtraDepth: -1}, nil
	}

	return NamespacePattern{Prefix: pattern, Recursive: false, MaxExtraDepth: -1}, nil
}

// Matches reports whether ns satisfies the pattern.
func (p NamespacePattern) Matches(ns string) bool {
	if !p.Recursive {
		return NamespaceMatchesExact(ns, p.Prefix)
	}
	if p.MaxExtraDepth < 0 {
		return NamespaceMatchesRecursive(ns, p.Prefix)
	}
	return NamespaceMatchesDepthLimited(ns, p.Prefix, p.MaxExtraDepth)
}
