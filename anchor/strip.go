package anchor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// labelSeparators are trimmed between a stripped label and its value.
const labelSeparators = " \t:-–—.#=|"

// StripLabel removes a leading label from text, along with the separators
// that follow it. The label matches the same way Locate matches it. It
// returns text unchanged and false when no label matches.
func StripLabel(text string, labels []string, ratio float64) (string, bool) {
	bestEnd, bestDist := -1, -1
	for _, label := range labels {
		norm := Normalize(label)
		if norm == "" {
			continue
		}
		tol := Tolerance(utf8.RuneCountInString(norm), ratio)

		for _, end := range wordEnds(text) {
			d := levenshtein.Distance(Normalize(text[:end]), norm, nil)
			if d > tol {
				continue
			}
			if bestEnd < 0 || d < bestDist || (d == bestDist && end > bestEnd) {
				bestEnd, bestDist = end, d
			}
		}
	}
	if bestEnd < 0 {
		return text, false
	}
	return strings.TrimLeft(text[bestEnd:], labelSeparators), true
}

// wordEnds returns the byte offsets at which a word of text ends.
func wordEnds(text string) []int {
	var ends []int
	prevWord := false
	for i, r := range text {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		if prevWord && !word {
			ends = append(ends, i)
		}
		prevWord = word
	}
	if prevWord {
		ends = append(ends, len(text))
	}
	return ends
}
