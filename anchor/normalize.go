package anchor

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalize prepares label or token text for comparison: NFKC, full-width
// folded to narrow, lower case, punctuation and symbols replaced by spaces,
// whitespace collapsed.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = width.Fold.String(s)
	s = strings.ToLower(s)

	var sb strings.Builder
	sb.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			if !space {
				sb.WriteByte(' ')
				space = true
			}
			continue
		}
		sb.WriteRune(r)
		space = false
	}
	return strings.TrimRight(sb.String(), " ")
}

// Tolerance returns the maximum edit distance accepted for a normalized
// label of n runes.
func Tolerance(n int, ratio float64) int {
	t := int(float64(n) * ratio)
	if t < 0 {
		return 0
	}
	return t
}
