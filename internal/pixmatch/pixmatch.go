// Package pixmatch implements the PIX end-to-end-id / confirmation-code
// normalization and matching rules from spec.md §4.7.
package pixmatch

import "strings"

// glyphFold maps ambiguous upper-case glyphs to the digit a buyer reading
// a mobile banking screen would have intended — spec.md §4.7 "Suffix
// normalization".
var glyphFold = map[rune]rune{
	'O': '0',
	'I': '1',
	'L': '1',
	'S': '5',
	'Z': '2',
	'B': '8',
	'G': '6',
}

// Normalize upper-cases s and folds ambiguous letters to digits. It is
// idempotent: Normalize(Normalize(s)) == Normalize(s) (property 9 in
// spec.md §8), since the output alphabet after folding contains none of
// the folded letters.
func Normalize(s string) string {
	upper := strings.ToUpper(s)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if folded, ok := glyphFold[r]; ok {
			b.WriteRune(folded)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchesSuffix reports whether the normalized endToEndID ends with the
// normalized confirmationCode. An empty confirmationCode never matches —
// callers must route empty-code buys through the no-confirmation-code
// branch of the decision table instead.
func MatchesSuffix(endToEndID, confirmationCode string) bool {
	if confirmationCode == "" {
		return false
	}
	return strings.HasSuffix(Normalize(endToEndID), Normalize(confirmationCode))
}
