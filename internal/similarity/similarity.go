// Package similarity provides normalized string similarity ratios used by
// metadata enrichment and duplicate detection.
package similarity

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Ratio returns the normalized Levenshtein similarity of a and b in [0, 1].
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longer)
}

// PartialRatio returns the best Ratio of the shorter string against any
// equally long window of the longer one. It rewards containment: comparing
// "Webster" against "Webster, Jane and Watson, Richard" yields 1.0.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 1.0
	}
	if len(short) == len(long) {
		return Ratio(string(short), string(long))
	}
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		r := Ratio(string(short), string(long[i:i+len(short)]))
		if r > best {
			best = r
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

// Normalize lowercases s and strips everything but letters, digits and
// single spaces, so that punctuation and casing differences do not count
// against similarity.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
