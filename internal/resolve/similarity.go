package resolve

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/antzucaro/matchr"
)

// Similarity returns the normalized edit-distance similarity of a and b in
// [0, 1]: (max(len) - distance) / max(len). Two empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1.0
	}
	d := levenshtein.ComputeDistance(a, b)
	return float64(longest-d) / float64(longest)
}

// JaroWinkler returns the case-insensitive Jaro-Winkler similarity of a and b.
// Used for place and occupation near-matches, never for names.
func JaroWinkler(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}
