package loader

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreMatcher excludes files the harvester reports scanning from
// contributing to the inventory, per the workspace's configured ignore patterns.
type IgnoreMatcher struct {
	patterns []string
}

// NewIgnoreMatcher builds a matcher from glob patterns; invalid patterns are
// dropped rather than rejected outright, since a typo in one pattern
// shouldn't disable the rest.
func NewIgnoreMatcher(patterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, p := range patterns {
		if _, err := doublestar.Match(p, "x"); err != nil {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Ignored reports whether path (relative to the workspace root) matches any
// configured ignore pattern.
func (m *IgnoreMatcher) Ignored(path string) bool {
	clean := filepath.ToSlash(path)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, clean); ok {
			return true
		}
	}
	return false
}
