package matching

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/succession/ai/mock"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/location"
	"github.com/poiesic/succession/semantic"
	"github.com/poiesic/succession/storage/badger"
	"github.com/poiesic/succession/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var places = map[string]core.Coordinate{
	"bayern":   {Lat: 48.9468, Lon: 11.4038},
	"münchen":  {Lat: 48.1371, Lon: 11.5754},
	"augsburg": {Lat: 48.3705, Lon: 10.8978},
	"berlin":   {Lat: 52.5200, Lon: 13.4050},
	"hamburg":  {Lat: 53.5511, Lon: 9.9937},
}

func tableGeocoder() location.Geocoder {
	return location.GeocoderFunc(func(_ context.Context, name string) (core.Coordinate, bool, error) {
		c, ok := places[strings.ToLower(name)]
		return c, ok, nil
	})
}

type engineFixture struct {
	stores *badger.Stores
	dedup  *Deduplicator
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Backend.Close() })
	return &engineFixture{
		stores: stores,
		dedup:  NewDeduplicator(WithMatchStore(stores.Matches)),
	}
}

func (f *engineFixture) engine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	matcher, err := taxonomy.NewMatcher(taxonomy.Default(), taxonomy.WithMode(cfg.TaxonomyMode))
	require.NoError(t, err)
	resolver, err := location.NewResolver(tableGeocoder(), f.stores.Geocodes,
		location.WithMinDelay(0), location.WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	scorer, err := semantic.NewScorer(mock.NewMockEmbedder(), semantic.WithCache(f.stores.Embeddings))
	require.NoError(t, err)

	base := []Option{
		WithResolver(resolver),
		WithScorer(scorer),
		WithDeduplicator(f.dedup),
		WithCheckpoints(f.stores.Checkpoints),
		WithRunID("test-run"),
		WithClock(func() time.Time { return testTime }),
	}
	e, err := NewEngine(cfg, matcher, append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func buyer(id, title, loc, industry string) *core.Listing {
	return &core.Listing{ID: id, Role: core.RoleBuyer, Title: title, LocationRaw: loc, IndustryText: industry}
}

func seller(id, title, loc, industry string) *core.Listing {
	return &core.Listing{ID: id, Role: core.RoleSeller, Title: title, LocationRaw: loc, IndustryText: industry}
}

func findMatch(matches []*core.Match, buyerID, sellerID string) *core.Match {
	for _, m := range matches {
		if m.BuyerID == buyerID && m.SellerID == sellerID {
			return m
		}
	}
	return nil
}

func TestNewEngine_Validation(t *testing.T) {
	matcher, err := taxonomy.NewMatcher(taxonomy.Default())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Weights = Weights{Location: 1, Taxonomy: 1}
	_, err = NewEngine(cfg, matcher)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = NewEngine(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrMatcherRequired)

	_, err = NewEngine(DefaultConfig(), matcher, WithDeduplicator(nil))
	assert.Error(t, err)
}

func TestEngine_ElectricianInMunich(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, DefaultConfig())

	buyers := []*core.Listing{buyer("b1", "Suche Betrieb", "Bayern > München", "Elektroinstallation")}
	sellers := []*core.Listing{seller("s1", "Betrieb abzugeben", "Bayern, München", "Elektrofirma")}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)

	m := result.Matches[0]
	assert.Equal(t, "b1", m.BuyerID)
	assert.Equal(t, "s1", m.SellerID)
	assert.Greater(t, m.LocationScore, 0.0)
	assert.Greater(t, m.TaxonomyScore, 0.0)
	assert.Equal(t, []string{"Elektrofirma"}, m.MatchingKeywords)
	assert.Equal(t, []string{"bayern", "münchen"}, m.MatchingLocations)
	require.NotNil(t, m.DistanceKm)
	assert.InDelta(t, 0, *m.DistanceKm, 1e-9)
	assert.Equal(t, "test-run", m.RunID)
	assert.Equal(t, "test-run", result.RunID)
	assert.NoError(t, core.ValidateMatch(m))

	assert.Equal(t, 1, result.Stats.Emitted)
	assert.Equal(t, 1, result.Stats.BuyersProcessed)
	assert.NotEmpty(t, buyers[0].Embedding)
}

func TestEngine_UnresolvedBuyerSeesAllSellers(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0.04
	cfg.MaxDistanceKm = 50
	cfg.SearchRadiusKm = 50
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "Atlantis", "Elektrotechnik")}
	sellers := []*core.Listing{
		seller("s1", "", "München", "Elektrobetrieb"),
		seller("s2", "", "Berlin", "Elektromeister"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	for _, m := range result.Matches {
		assert.Nil(t, m.DistanceKm)
	}
	assert.Equal(t, 1, result.Stats.UnresolvedLocations)
	assert.Equal(t, 2, result.Stats.PairsEvaluated)
}

func TestEngine_SpatialFiltering(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	cfg.SearchRadiusKm = 100
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "München", "Elektro")}
	sellers := []*core.Listing{
		seller("near", "", "Augsburg", "Elektro"),
		seller("far", "", "Berlin", "Elektro"),
		seller("unknown", "", "", "Elektro"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	assert.NotNil(t, findMatch(result.Matches, "b1", "near"))
	assert.NotNil(t, findMatch(result.Matches, "b1", "unknown"), "sellers without coordinates stay candidates")
	assert.Nil(t, findMatch(result.Matches, "b1", "far"))
	assert.Equal(t, 2, result.Stats.PairsEvaluated)
}

func TestEngine_AnywhereBuyerIgnoresRadius(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	cfg.SearchRadiusKm = 10
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "München, bundesweit", "Elektro")}
	sellers := []*core.Listing{
		seller("s1", "", "Hamburg", "Elektro"),
		seller("s2", "", "Berlin", "Elektro"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 2)
}

func TestEngine_CandidateK(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	cfg.CandidateK = 1
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "München", "Elektro")}
	sellers := []*core.Listing{
		seller("s1", "", "Hamburg", "Elektro"),
		seller("s2", "", "Augsburg", "Elektro"),
		seller("s3", "", "Berlin", "Elektro"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "s2", result.Matches[0].SellerID)
}

func TestEngine_MaxDistance(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	cfg.MaxDistanceKm = 100
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "München", "Elektro")}
	sellers := []*core.Listing{
		seller("s1", "", "Augsburg", "Elektro"),
		seller("s2", "", "Berlin", "Elektro"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "s1", result.Matches[0].SellerID)
	assert.LessOrEqual(t, *result.Matches[0].DistanceKm, 100.0)
	assert.Equal(t, 1, result.Stats.RejectedDistance)
}

func TestEngine_TaxonomyGate(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	cfg.RequireTaxonomyOverlap = true
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "München", "Heizung und Sanitär")}
	sellers := []*core.Listing{
		seller("s1", "", "München", "Sanitärinstallation"),
		seller("s2", "", "München", "Restaurant"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "s1", result.Matches[0].SellerID)
	assert.Equal(t, 1.0, result.Matches[0].TaxonomyScore)
	assert.Equal(t, 1, result.Stats.RejectedTaxonomy)
}

func TestEngine_EmptyListingsDegrade(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	e := f.engine(t, cfg)

	buyers := []*core.Listing{{ID: "b1", Role: core.RoleBuyer}}
	sellers := []*core.Listing{{ID: "s1", Role: core.RoleSeller}}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	m := result.Matches[0]
	assert.Zero(t, m.LocationScore)
	assert.Zero(t, m.TaxonomyScore)
	assert.Zero(t, m.SemanticScore)
	assert.Zero(t, m.CompositeScore)
	assert.Nil(t, m.DistanceKm)
	assert.Equal(t, 2, result.Stats.Embeddings.Skipped)
}

func TestEngine_WithoutServices(t *testing.T) {
	matcher, err := taxonomy.NewMatcher(taxonomy.Default())
	require.NoError(t, err)
	e, err := NewEngine(DefaultConfig(), matcher)
	require.NoError(t, err)

	buyers := []*core.Listing{buyer("b1", "", "Bayern, München", "Elektro")}
	sellers := []*core.Listing{seller("s1", "", "München, Bayern", "Elektriker")}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Zero(t, result.Matches[0].SemanticScore)
	assert.Nil(t, result.Matches[0].DistanceKm)
	assert.NotEmpty(t, result.RunID)
}

func testListings() ([]*core.Listing, []*core.Listing) {
	locations := []string{"Bayern > München", "Berlin", "Hamburg", "Augsburg, Bayern", "", "bundesweit"}
	industries := []string{"Elektroinstallation", "Sanitär und Heizung", "Tischlerei", "Spedition", "Restaurant", "Softwareentwicklung"}

	var buyers, sellers []*core.Listing
	for i := range 12 {
		buyers = append(buyers, buyer(
			"b"+string(rune('a'+i)),
			"Nachfolge gesucht "+industries[(i+1)%len(industries)],
			locations[i%len(locations)],
			industries[i%len(industries)],
		))
	}
	for i := range 15 {
		sellers = append(sellers, seller(
			"s"+string(rune('a'+i)),
			"Betrieb zu verkaufen",
			locations[(i+2)%len(locations)],
			industries[(i*5)%len(industries)],
		))
	}
	return buyers, sellers
}

func TestEngine_DeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int) *Result {
		f := newFixture(t)
		cfg := DefaultConfig()
		cfg.Threshold = 0.1
		cfg.Workers = workers
		cfg.MaxMatchesPerBuyer = 3
		e := f.engine(t, cfg)
		buyers, sellers := testListings()
		result, err := e.Run(context.Background(), buyers, sellers)
		require.NoError(t, err)
		return result
	}

	sequential := run(1)
	require.NotEmpty(t, sequential.Matches)
	for _, workers := range []int{2, 8} {
		parallel := run(workers)
		assert.Equal(t, sequential.Matches, parallel.Matches, "workers=%d", workers)
		assert.Equal(t, sequential.Stats, parallel.Stats, "workers=%d", workers)
	}
	assert.Equal(t, sequential.Matches, run(1).Matches, "repeated runs must agree")
}

func TestEngine_NoPairTwiceAcrossRuns(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0.1
	ctx := context.Background()

	buyers, sellers := testListings()
	first, err := f.engine(t, cfg).Run(ctx, buyers, sellers)
	require.NoError(t, err)
	require.NotEmpty(t, first.Matches)

	// a fresh deduplicator seeded from the same store
	f.dedup = NewDeduplicator(WithMatchStore(f.stores.Matches))
	buyers, sellers = testListings()
	second, err := f.engine(t, cfg).Run(ctx, buyers, sellers)
	require.NoError(t, err)
	assert.Empty(t, second.Matches)
	assert.Equal(t, len(first.Matches), second.Stats.DuplicatePairs)

	stored, err := f.stores.Matches.CountMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(first.Matches), stored)
}

func TestEngine_PerBuyerCap(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	cfg.MaxMatchesPerBuyer = 2
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "München", "Elektro")}
	sellers := []*core.Listing{
		seller("s1", "", "München", "Elektro"),
		seller("s2", "", "München", "Restaurant"),
		seller("s3", "", "Berlin", "Restaurant"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "s1", result.Matches[0].SellerID)
	assert.Equal(t, 3, result.Stats.Emitted)
	assert.Equal(t, 1, result.Stats.Capped)

	stored, err := f.stores.Matches.CountMatches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stored, "only reported matches are persisted")

	t.Run("capped pair is reported by the next run", func(t *testing.T) {
		buyers := []*core.Listing{buyer("b1", "", "München", "Elektro")}
		sellers := []*core.Listing{
			seller("s1", "", "München", "Elektro"),
			seller("s2", "", "München", "Restaurant"),
			seller("s3", "", "Berlin", "Restaurant"),
		}
		next, err := e.Run(context.Background(), buyers, sellers)
		require.NoError(t, err)
		require.Len(t, next.Matches, 1)
		assert.Equal(t, 2, next.Stats.DuplicatePairs)
		assert.False(t, slices.ContainsFunc(result.Matches, func(m *core.Match) bool {
			return m.SellerID == next.Matches[0].SellerID
		}))
	})
}

func TestEngine_InvalidInput(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, DefaultConfig())

	_, err := e.Run(context.Background(), []*core.Listing{{Role: core.RoleBuyer}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Run(context.Background(), []*core.Listing{{ID: "x", Role: core.RoleSeller}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_DuplicateListingIDs(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Threshold = 0
	e := f.engine(t, cfg)

	buyers := []*core.Listing{buyer("b1", "", "München", "Elektro")}
	sellers := []*core.Listing{
		seller("s1", "", "München", "Elektro"),
		seller("s1", "", "Berlin", "Restaurant"),
	}

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.DuplicateListings)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, []string{"münchen"}, result.Matches[0].MatchingLocations)
}

func TestEngine_Checkpoint(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, DefaultConfig())
	buyers, sellers := testListings()

	_, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)

	cp, err := f.stores.Checkpoints.LoadCheckpoint(context.Background(), CheckpointName)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "test-run", cp.RunID)
	assert.Equal(t, len(buyers), cp.Processed)
}

func TestEngine_Cancelled(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, DefaultConfig())
	buyers, sellers := testListings()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Run(ctx, buyers, sellers)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Matches)
}

type countingMonitor struct {
	noopMonitor
	started  atomic.Int32
	emitted  atomic.Int32
	rejected atomic.Int32
	finished atomic.Int32
}

func (m *countingMonitor) Start(_ string, _, _ int)              { m.started.Add(1) }
func (m *countingMonitor) Emitted(_ *core.Match)                 { m.emitted.Add(1) }
func (m *countingMonitor) Rejected(_, _ *core.Listing, _ Reason) { m.rejected.Add(1) }
func (m *countingMonitor) Finish(_ *Result)                      { m.finished.Add(1) }

func TestEngine_Monitor(t *testing.T) {
	f := newFixture(t)
	mon := &countingMonitor{}
	e := f.engine(t, DefaultConfig(), WithMonitor(mon))
	buyers, sellers := testListings()

	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	assert.Equal(t, int32(1), mon.started.Load())
	assert.Equal(t, int32(1), mon.finished.Load())
	assert.Equal(t, int32(result.Stats.Emitted), mon.emitted.Load())
	assert.Equal(t, int32(result.Stats.PairsEvaluated-result.Stats.Emitted), mon.rejected.Load())
}

func TestEngine_Progress(t *testing.T) {
	f := newFixture(t)
	var out strings.Builder
	e := f.engine(t, DefaultConfig(), WithProgress(&out, 4))
	buyers, sellers := testListings()

	_, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "buyers: 12/12")
}

func TestEngine_GeocodeWorkers(t *testing.T) {
	var inFlight, peak atomic.Int64
	geocoder := location.GeocoderFunc(func(_ context.Context, name string) (core.Coordinate, bool, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		c, ok := places[strings.ToLower(name)]
		return c, ok, nil
	})

	f := newFixture(t)
	resolver, err := location.NewResolver(geocoder, f.stores.Geocodes, location.WithMinDelay(0))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Workers = 4
	e := f.engine(t, cfg, WithResolver(resolver), WithGeocodeWorkers(1))

	buyers := []*core.Listing{
		buyer("b1", "Suche Betrieb", "Bayern > München", "Elektroinstallation"),
		buyer("b2", "Suche Betrieb", "Berlin", "Gastronomie"),
	}
	sellers := []*core.Listing{
		seller("s1", "Betrieb abzugeben", "Augsburg", "Elektrofirma"),
		seller("s2", "Betrieb abzugeben", "Hamburg", "Restaurant"),
	}
	result, err := e.Run(context.Background(), buyers, sellers)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Stats.Geocodes.Names)
	assert.Equal(t, int64(1), peak.Load())
}
