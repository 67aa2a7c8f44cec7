package matching

import (
	"cmp"
	"slices"

	"github.com/poiesic/succession/core"
)

// Compare orders matches by composite score descending, then buyer id and
// seller id ascending.
func Compare(a, b *core.Match) int {
	if c := cmp.Compare(b.CompositeScore, a.CompositeScore); c != 0 {
		return c
	}
	if c := cmp.Compare(a.BuyerID, b.BuyerID); c != 0 {
		return c
	}
	return cmp.Compare(a.SellerID, b.SellerID)
}

// Rank returns a new slice holding matches in Compare order. With
// maxPerBuyer > 0 only the best maxPerBuyer matches of each buyer are kept.
// Neither the input slice nor the matches are modified.
func Rank(matches []*core.Match, maxPerBuyer int) []*core.Match {
	ranked := append(make([]*core.Match, 0, len(matches)), matches...)
	slices.SortStableFunc(ranked, Compare)
	if maxPerBuyer <= 0 {
		return ranked
	}

	perBuyer := make(map[string]int)
	out := ranked[:0]
	for _, m := range ranked {
		if perBuyer[m.BuyerID] >= maxPerBuyer {
			continue
		}
		perBuyer[m.BuyerID]++
		out = append(out, m)
	}
	return out
}
