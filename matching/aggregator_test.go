package matching

import (
	"math"
	"testing"
	"time"

	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func listingAt(id string, role core.Role, loc string) *core.Listing {
	return &core.Listing{
		ID:          id,
		Role:        role,
		LocationRaw: loc,
		Location:    location.Parser{}.Parse(loc),
	}
}

func newTestAggregator(t *testing.T, cfg Config) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(cfg, 8, "run-1", testTime)
	require.NoError(t, err)
	return agg
}

func ptr(v float64) *float64 { return &v }

func TestLocationScore(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		score  float64
		shared []string
	}{
		{"identical", "Bayern > München", "Bayern, München", 1, []string{"bayern", "münchen"}},
		{"half", "Bayern, München", "Bayern", 0.5, []string{"bayern"}},
		{"disjoint", "Berlin", "Hamburg", 0, []string{}},
		{"empty side", "", "Bayern", 0, []string{}},
		{"only marker", "bundesweit", "Bayern", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := location.Parser{}.Parse(tt.a)
			b := location.Parser{}.Parse(tt.b)

			ab, sharedAB := LocationScore(a, b)
			ba, sharedBA := LocationScore(b, a)
			assert.InDelta(t, tt.score, ab, 1e-12)
			assert.Equal(t, ab, ba, "location score must be symmetric")
			assert.Equal(t, tt.shared, sharedAB)
			assert.Equal(t, sharedAB, sharedBA)
		})
	}
}

func TestAggregator_SoftTaxonomy(t *testing.T) {
	agg := newTestAggregator(t, DefaultConfig())
	buyer := listingAt("b1", core.RoleBuyer, "Bayern, München")
	seller := listingAt("s1", core.RoleSeller, "Bayern, München")

	m, ok := agg.Score(buyer, seller, Signals{
		Categories: core.NewStringSet("elektro"),
		Keywords:   []string{"Elektrofirma"},
		Semantic:   0.5,
		DistanceKm: ptr(3.2),
	})
	require.True(t, ok)
	require.NotNil(t, m)

	assert.Equal(t, "b1", m.BuyerID)
	assert.Equal(t, "s1", m.SellerID)
	assert.InDelta(t, 1.0, m.LocationScore, 1e-12)
	assert.InDelta(t, 0.125, m.TaxonomyScore, 1e-12)
	assert.InDelta(t, 0.5, m.SemanticScore, 1e-12)
	assert.InDelta(t, 0.4+0.4*0.125+0.2*0.5, m.CompositeScore, 1e-12)
	assert.Equal(t, []string{"Elektrofirma"}, m.MatchingKeywords)
	assert.Equal(t, []string{"bayern", "münchen"}, m.MatchingLocations)
	require.NotNil(t, m.DistanceKm)
	assert.Equal(t, 3.2, *m.DistanceKm)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, testTime, m.CreatedAt)
	assert.NoError(t, core.ValidateMatch(m))
}

func TestAggregator_TaxonomyGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireTaxonomyOverlap = true
	agg := newTestAggregator(t, cfg)
	buyer := listingAt("b1", core.RoleBuyer, "Bayern")
	seller := listingAt("s1", core.RoleSeller, "Bayern, München")

	t.Run("no shared category", func(t *testing.T) {
		m, reason := agg.Evaluate(buyer, seller, Signals{Semantic: 1})
		assert.Nil(t, m)
		assert.Equal(t, NoSharedCategory, reason)
	})

	t.Run("gate passed", func(t *testing.T) {
		m, reason := agg.Evaluate(buyer, seller, Signals{
			Categories: core.NewStringSet("shk"),
			Semantic:   0.8,
		})
		require.Equal(t, Accepted, reason)
		assert.Equal(t, 1.0, m.TaxonomyScore)
		assert.InDelta(t, (0.4*0.5+0.2*0.8)/0.6, m.CompositeScore, 1e-12)
	})
}

func TestAggregator_Threshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0.5
	agg := newTestAggregator(t, cfg)
	buyer := listingAt("b1", core.RoleBuyer, "Berlin")
	seller := listingAt("s1", core.RoleSeller, "Hamburg")

	m, reason := agg.Evaluate(buyer, seller, Signals{Semantic: 0.9})
	assert.Nil(t, m)
	assert.Equal(t, BelowThreshold, reason)
}

func TestAggregator_MaxDistance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0
	cfg.MaxDistanceKm = 100
	agg := newTestAggregator(t, cfg)
	buyer := listingAt("b1", core.RoleBuyer, "München")
	seller := listingAt("s1", core.RoleSeller, "Berlin")

	_, reason := agg.Evaluate(buyer, seller, Signals{DistanceKm: ptr(504)})
	assert.Equal(t, TooFar, reason)

	_, reason = agg.Evaluate(buyer, seller, Signals{DistanceKm: ptr(100)})
	assert.Equal(t, Accepted, reason, "the limit itself is allowed")

	m, reason := agg.Evaluate(buyer, seller, Signals{})
	assert.Equal(t, Accepted, reason, "unknown distance never rejects")
	assert.Nil(t, m.DistanceKm)
}

func TestAggregator_ScoreBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0
	agg := newTestAggregator(t, cfg)
	buyer := listingAt("b1", core.RoleBuyer, "Bayern, München, Augsburg")
	seller := listingAt("s1", core.RoleSeller, "Bayern")

	many := core.NewStringSet("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	for _, sem := range []float64{-1, -0.2, 0, 0.3, 1, 1.7, math.NaN(), math.Inf(1)} {
		for _, cats := range []core.StringSet{nil, core.NewStringSet("shk"), many} {
			m, ok := agg.Score(buyer, seller, Signals{Categories: cats, Semantic: sem})
			require.True(t, ok)
			assert.NoError(t, core.ValidateMatch(m), "semantic=%v categories=%d", sem, cats.Len())
		}
	}
}

func TestAggregator_ThresholdMonotonic(t *testing.T) {
	buyer := listingAt("b1", core.RoleBuyer, "Bayern, München")
	sellers := []*core.Listing{
		listingAt("s1", core.RoleSeller, "Bayern"),
		listingAt("s2", core.RoleSeller, "München"),
		listingAt("s3", core.RoleSeller, "Hamburg"),
		listingAt("s4", core.RoleSeller, "Bayern, München"),
	}
	signals := []Signals{
		{Semantic: 0.1},
		{Semantic: 0.6, Categories: core.NewStringSet("elektro")},
		{Semantic: 0.9},
		{Semantic: 0.3, Categories: core.NewStringSet("elektro", "shk")},
	}

	accepted := func(threshold float64) map[string]bool {
		cfg := DefaultConfig()
		cfg.Threshold = threshold
		agg := newTestAggregator(t, cfg)
		out := map[string]bool{}
		for i, s := range sellers {
			if _, ok := agg.Score(buyer, s, signals[i]); ok {
				out[s.ID] = true
			}
		}
		return out
	}

	thresholds := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.7, 1}
	for i := 1; i < len(thresholds); i++ {
		low, high := accepted(thresholds[i-1]), accepted(thresholds[i])
		for id := range high {
			assert.True(t, low[id], "%s accepted at %v but not at %v", id, thresholds[i], thresholds[i-1])
		}
	}
}

func TestAggregator_KeywordsNotShared(t *testing.T) {
	agg := newTestAggregator(t, DefaultConfig())
	buyer := listingAt("b1", core.RoleBuyer, "Bayern")
	seller := listingAt("s1", core.RoleSeller, "Bayern")
	keywords := []string{"Elektrofirma"}

	m, ok := agg.Score(buyer, seller, Signals{Categories: core.NewStringSet("elektro"), Keywords: keywords})
	require.True(t, ok)
	keywords[0] = "changed"
	assert.Equal(t, []string{"Elektrofirma"}, m.MatchingKeywords)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "below_threshold", BelowThreshold.String())
	assert.Equal(t, "too_far", TooFar.String())
	assert.Equal(t, "no_shared_category", NoSharedCategory.String())
	assert.Equal(t, "Reason(9)", Reason(9).String())
}
