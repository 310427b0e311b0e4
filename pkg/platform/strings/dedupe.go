// Package strings provides helpers for codename and identifier lists.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  edit ", "view", "edit", "", "  "})
//	// Returns: []string{"edit", "view"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SortedSet returns the trimmed, deduplicated values in lexicographic order.
// The result is never nil so it serializes as [] rather than null.
//
//	SortedSet([]string{"view", "edit", "view"})
//	// Returns: []string{"edit", "view"}
func SortedSet(values []string) []string {
	result := DedupeAndTrim(values)
	if result == nil {
		return []string{}
	}
	result = slices.Clone(result)
	slices.Sort(result)
	return result
}
