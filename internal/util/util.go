// Package util holds small text-formatting helpers shared by the
// compiler's diagnostics and the command-line front ends.
package util

import "strings"

// MakeTextList joins items into a natural-language list ("a", "a and b",
// or "a, b, and c"), used when reporting more than one compile error or
// listing the valid events a state accepts.
func MakeTextList(items []string) string {
	if len(items) < 1 {
		return ""
	}

	if len(items) == 1 {
		return items[0]
	}
	if len(items) == 2 {
		return items[0] + " and " + items[1]
	}

	withConjunction := make([]string, len(items))
	copy(withConjunction, items)
	withConjunction[len(withConjunction)-1] = "and " + withConjunction[len(withConjunction)-1]
	return strings.Join(withConjunction, ", ")
}
