package taxonomy

import (
	"math"
	"strings"

	"github.com/poiesic/succession/textnorm"
	"github.com/xrash/smetrics"
)

// RatioProvider scores string similarity on a 0..100 scale.
type RatioProvider interface {
	// Ratio compares a and b as whole strings.
	Ratio(a, b string) int
	// PartialRatio compares the shorter string against the best matching
	// part of the longer one.
	PartialRatio(a, b string) int
}

// LevenshteinRatio is the default RatioProvider. Both inputs are folded
// (lowercase, no diacritics) and compared by indel distance, so the ratio is
// 100 * (1 - distance / (len(a) + len(b))). The zero value is ready to use.
type LevenshteinRatio struct{}

var _ RatioProvider = LevenshteinRatio{}

// Ratio implements RatioProvider.
func (LevenshteinRatio) Ratio(a, b string) int {
	return indelRatio(textnorm.Fold(a), textnorm.Fold(b))
}

// PartialRatio implements RatioProvider. A substring scores 100. Otherwise
// the shorter string is compared with every run of the same number of words
// in the longer one, and with the prefix of that run cut to its length.
func (LevenshteinRatio) PartialRatio(a, b string) int {
	a, b = textnorm.Fold(a), textnorm.Fold(b)
	if len(a) > len(b) {
		a, b = b, a
	}
	if a == "" {
		return 0
	}
	if strings.Contains(b, a) {
		return 100
	}

	needle := strings.Fields(a)
	words := strings.Fields(b)
	if len(words) <= len(needle) {
		return indelRatio(a, b)
	}

	best := 0
	for i := 0; i+len(needle) <= len(words); i++ {
		window := strings.Join(words[i:i+len(needle)], " ")
		best = max(best, indelRatio(a, window))
		if len(window) > len(a) {
			best = max(best, indelRatio(a, window[:len(a)]))
		}
		if best == 100 {
			break
		}
	}
	return best
}

func indelRatio(a, b string) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	// substitution costs a deletion plus an insertion
	d := smetrics.WagnerFischer(a, b, 1, 1, 2)
	return int(math.Round(100 * float64(total-d) / float64(total)))
}
