package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldReplacer = strings.NewReplacer("ß", "ss", "ẞ", "ss")

// Fold lowercases s, strips diacritics (ü→u) and expands ß to ss.
// Used for cache keys and for edit-distance comparison, where "München" and
// "Muenchen"-style spelling variants should land close together.
func Fold(s string) string {
	s = foldReplacer.Replace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(result), " ")
}
