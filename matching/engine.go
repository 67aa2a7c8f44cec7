package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/succession/batch"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/location"
	"github.com/poiesic/succession/semantic"
	"github.com/poiesic/succession/spatial"
	"github.com/poiesic/succession/storage"
	"github.com/poiesic/succession/taxonomy"
	"github.com/poiesic/succession/textnorm"
)

// CheckpointName is the checkpoint written after every run.
const CheckpointName = "match"

// Stats summarizes a run.
type Stats struct {
	Buyers            int
	Sellers           int
	DuplicateListings int // listings dropped because their id repeated

	UnresolvedLocations int // location names no coordinate was found for
	Geocodes            location.WarmStats
	Embeddings          semantic.EncodeStats

	BuyersProcessed   int
	PairsEvaluated    int
	DuplicatePairs    int // pairs skipped because they were reported before
	RejectedThreshold int
	RejectedDistance  int
	RejectedTaxonomy  int
	Emitted           int
	Capped            int // emitted matches dropped by the per-buyer cap
}

// Result is the outcome of a run. Matches are ranked.
type Result struct {
	RunID   string
	Matches []*core.Match
	Stats   Stats
}

// Engine runs the matching pipeline: text and location preparation,
// geocoding and embedding, candidate retrieval, scoring, deduplication and
// ranking.
type Engine struct {
	cfg         Config
	matcher     *taxonomy.Matcher
	normalizer  *textnorm.Normalizer
	parser      location.Parser
	resolver    *location.Resolver
	geoWorkers  int
	scorer      *semantic.Scorer
	dedup       *Deduplicator
	checkpoints storage.CheckpointRepository
	monitor     RunMonitor
	progress    io.Writer
	interval    int
	runID       string
	clock       func() time.Time
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithNormalizer sets the text normalizer. It must be the one the taxonomy
// matcher was built with.
func WithNormalizer(n *textnorm.Normalizer) Option {
	return func(e *Engine) error {
		if n != nil {
			e.normalizer = n
		}
		return nil
	}
}

// WithResolver enables geocoding. Without a resolver no listing gets
// coordinates and every buyer is compared against every seller.
func WithResolver(r *location.Resolver) Option {
	return func(e *Engine) error {
		e.resolver = r
		return nil
	}
}

// WithGeocodeWorkers sets how many geocoding lookups run at once. A value
// below 1 uses the scoring worker count.
func WithGeocodeWorkers(n int) Option {
	return func(e *Engine) error {
		e.geoWorkers = n
		return nil
	}
}

// WithScorer enables embeddings. Without a scorer semantic scores are 0.
func WithScorer(s *semantic.Scorer) Option {
	return func(e *Engine) error {
		e.scorer = s
		return nil
	}
}

// WithDeduplicator shares a deduplicator across runs.
func WithDeduplicator(d *Deduplicator) Option {
	return func(e *Engine) error {
		if d == nil {
			return errors.New("deduplicator cannot be nil")
		}
		e.dedup = d
		return nil
	}
}

// WithCheckpoints records the progress of each run in repo.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(e *Engine) error {
		e.checkpoints = repo
		return nil
	}
}

// WithMonitor sets a run monitor.
func WithMonitor(m RunMonitor) Option {
	return func(e *Engine) error {
		if m != nil {
			e.monitor = m
		}
		return nil
	}
}

// WithProgress writes buyer progress to w every interval buyers.
func WithProgress(w io.Writer, interval int) Option {
	return func(e *Engine) error {
		e.progress = w
		e.interval = interval
		return nil
	}
}

// WithRunID fixes the run id instead of generating a random one.
func WithRunID(id string) Option {
	return func(e *Engine) error {
		e.runID = id
		return nil
	}
}

// WithClock sets the source of match timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock != nil {
			e.clock = clock
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine validates cfg and creates an Engine.
func NewEngine(cfg Config, matcher *taxonomy.Matcher, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if matcher == nil {
		return nil, ErrMatcherRequired
	}

	e := &Engine{
		cfg:        cfg,
		matcher:    matcher,
		normalizer: textnorm.New(),
		dedup:      NewDeduplicator(),
		monitor:    &noopMonitor{},
		clock:      func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "match-engine")
	return e, nil
}

// Config returns the run configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run matches buyers against sellers. Listings are annotated in place.
// When ctx is cancelled no further buyer is started; the matches of the
// buyers already finished are ranked and returned together with ctx.Err().
func (e *Engine) Run(ctx context.Context, buyers, sellers []*core.Listing) (*Result, error) {
	runID := e.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := e.logger.With("run_id", runID)

	var stats Stats
	buyers, dropped, err := uniqueListings(buyers, core.RoleBuyer)
	if err != nil {
		return nil, err
	}
	stats.DuplicateListings += dropped
	sellers, dropped, err = uniqueListings(sellers, core.RoleSeller)
	if err != nil {
		return nil, err
	}
	stats.DuplicateListings += dropped
	stats.Buyers, stats.Sellers = len(buyers), len(sellers)

	e.monitor.Start(runID, len(buyers), len(sellers))
	logger.Info("starting run", "buyers", len(buyers), "sellers", len(sellers), "duplicate_listings", stats.DuplicateListings)

	result := &Result{RunID: runID, Matches: []*core.Match{}}
	if err := e.prepare(ctx, buyers, sellers, &stats); err != nil {
		result.Stats = stats
		return result, err
	}
	e.monitor.AfterPreparation(stats)

	if _, err := e.dedup.Seed(ctx); err != nil {
		result.Stats = stats
		return result, err
	}

	agg, err := NewAggregator(e.cfg, e.matcher.Len(), runID, e.clock())
	if err != nil {
		return nil, err
	}

	emitted, runErr := e.score(ctx, agg, buyers, sellers, &stats)
	ranked := Rank(emitted, e.cfg.MaxMatchesPerBuyer)
	stats.Emitted = len(emitted)
	stats.Capped = len(emitted) - len(ranked)
	ranked = e.register(ranked, &stats)
	result.Matches = ranked
	result.Stats = stats

	// persist what was found even when the run was cancelled
	persistCtx := context.WithoutCancel(ctx)
	if err := e.dedup.Flush(persistCtx, ranked); err != nil {
		return result, err
	}
	if err := e.saveCheckpoint(persistCtx, runID, stats.BuyersProcessed); err != nil {
		return result, err
	}

	e.monitor.Finish(result)
	logger.Info("run finished",
		"processed", stats.BuyersProcessed, "pairs", stats.PairsEvaluated,
		"matches", len(ranked), "duplicates", stats.DuplicatePairs,
		"below_threshold", stats.RejectedThreshold, "too_far", stats.RejectedDistance,
		"no_shared_category", stats.RejectedTaxonomy, "capped", stats.Capped)
	return result, runErr
}

// uniqueListings validates listings and keeps the first occurrence of each id.
func uniqueListings(listings []*core.Listing, role core.Role) ([]*core.Listing, int, error) {
	out := make([]*core.Listing, 0, len(listings))
	seen := make(map[string]struct{}, len(listings))
	for i, l := range listings {
		if err := core.ValidateListing(l); err != nil {
			return nil, 0, fmt.Errorf("%w: %s #%d: %w", ErrInvalidInput, role, i, err)
		}
		if l.Role != role {
			return nil, 0, fmt.Errorf("%w: %s #%d (%s) has role %s", ErrInvalidInput, role, i, l.ID, l.Role)
		}
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out, len(listings) - len(out), nil
}

// prepare normalizes and parses every listing, then geocodes and embeds
// them concurrently.
func (e *Engine) prepare(ctx context.Context, buyers, sellers []*core.Listing, stats *Stats) error {
	var g errgroup.Group
	for _, side := range [][]*core.Listing{buyers, sellers} {
		g.Go(func() error {
			for _, l := range side {
				e.annotate(l)
			}
			return nil
		})
	}
	_ = g.Wait()

	all := make([]*core.Listing, 0, len(buyers)+len(sellers))
	all = append(all, buyers...)
	all = append(all, sellers...)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		unresolved, warm, err := e.geocode(egCtx, all)
		stats.UnresolvedLocations, stats.Geocodes = unresolved, warm
		return err
	})
	eg.Go(func() error {
		if e.scorer == nil {
			return nil
		}
		enc, err := e.scorer.Encode(egCtx, all)
		stats.Embeddings = enc
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		return nil
	})
	return eg.Wait()
}

// annotate fills the derived fields that need no external service.
func (e *Engine) annotate(l *core.Listing) {
	l.NormalizedText = e.normalizer.ListingText(l)
	l.Location = e.parser.Parse(l.LocationRaw)
	l.Coordinates = nil
	e.matcher.Annotate(l)
}

// geocode warms the resolver with every distinct location name and then
// attaches coordinates to the listings from the cache.
func (e *Engine) geocode(ctx context.Context, listings []*core.Listing) (int, location.WarmStats, error) {
	if e.resolver == nil {
		return 0, location.WarmStats{}, nil
	}
	var names []string
	for _, l := range listings {
		names = append(names, location.LocationNames(l.Location)...)
	}
	workers := e.geoWorkers
	if workers < 1 {
		workers = e.cfg.Workers
	}
	warm, err := e.resolver.Warm(ctx, names, workers)
	if err != nil {
		return 0, warm, fmt.Errorf("geocoding failed: %w", err)
	}
	unresolved := 0
	for _, l := range listings {
		unresolved += e.resolver.ResolveListing(ctx, l)
	}
	return unresolved, warm, ctx.Err()
}

// buyerOutcome collects the work of one buyer so results can be merged in
// buyer order regardless of scheduling.
type buyerOutcome struct {
	done      bool
	matches   []*core.Match
	pairs     int
	dupes     int
	threshold int
	distance  int
	taxonomy  int
}

// score compares every buyer with its candidate sellers on a worker pool.
func (e *Engine) score(ctx context.Context, agg *Aggregator, buyers, sellers []*core.Listing, stats *Stats) ([]*core.Match, error) {
	idx := spatial.BuildFromListings(sellers)
	unlocated := make([]int, 0)
	for j, s := range sellers {
		if !s.HasCoordinates() {
			unlocated = append(unlocated, j)
		}
	}
	e.logger.Debug("spatial index built", "points", idx.Len(), "sellers", idx.Owners(), "unlocated", len(unlocated))

	pool, err := ants.NewPool(e.cfg.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var tracker *batch.ProgressTracker
	if e.progress != nil {
		tracker = batch.NewProgressTracker(e.progress, "buyers", len(buyers), e.interval)
		tracker.Start()
		defer tracker.Finish()
	}

	outcomes := make([]buyerOutcome, len(buyers))
	var wg sync.WaitGroup
	for i, buyer := range buyers {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			outcomes[i] = e.scoreBuyer(agg, idx, buyer, sellers, e.candidates(idx, buyer, len(sellers), unlocated))
			if tracker != nil {
				tracker.Increment(1)
			}
		}); err != nil {
			wg.Done()
			e.logger.Error("failed to submit buyer", "buyer", buyer.ID, "err", err)
		}
	}
	wg.Wait()

	var matches []*core.Match
	for _, o := range outcomes {
		if !o.done {
			continue
		}
		stats.BuyersProcessed++
		stats.PairsEvaluated += o.pairs
		stats.DuplicatePairs += o.dupes
		stats.RejectedThreshold += o.threshold
		stats.RejectedDistance += o.distance
		stats.RejectedTaxonomy += o.taxonomy
		matches = append(matches, o.matches...)
	}
	return matches, ctx.Err()
}

// candidates returns the seller indexes to compare buyer with, ascending.
// Buyers without coordinates, and every buyer when spatial filtering is
// off, get the full seller set. Sellers without coordinates are always
// candidates since distance cannot rule them out.
func (e *Engine) candidates(idx *spatial.Index, buyer *core.Listing, sellers int, unlocated []int) []int {
	if !e.cfg.SpatialFiltering() || !buyer.HasCoordinates() {
		all := make([]int, sellers)
		for j := range all {
			all[j] = j
		}
		return all
	}

	radius := e.cfg.SearchRadiusKm
	if buyer.Location.Anywhere {
		radius = spatial.HalfEarthKm
	}

	found := make(map[int]struct{})
	for _, origin := range buyer.Coordinates {
		var owners []int
		if e.cfg.CandidateK > 0 {
			owners = idx.QueryKNN(origin, e.cfg.CandidateK)
		} else {
			owners = idx.QueryRadius(origin, radius)
		}
		for _, o := range owners {
			found[o] = struct{}{}
		}
	}

	out := make([]int, 0, len(found)+len(unlocated))
	for o := range found {
		if e.cfg.CandidateK > 0 && radius > 0 && radius < spatial.HalfEarthKm {
			if d, ok := idx.Nearest(buyer.Coordinates, o); !ok || d > radius {
				continue
			}
		}
		out = append(out, o)
	}
	out = append(out, unlocated...)
	slices.Sort(out)
	return out
}

func (e *Engine) scoreBuyer(agg *Aggregator, idx *spatial.Index, buyer *core.Listing, sellers []*core.Listing, candidates []int) buyerOutcome {
	e.monitor.Candidates(buyer, len(candidates))
	out := buyerOutcome{done: true}
	for _, j := range candidates {
		seller := sellers[j]
		key := core.PairKey{BuyerID: buyer.ID, SellerID: seller.ID}
		if e.dedup.IsDuplicate(key) {
			out.dupes++
			continue
		}
		out.pairs++

		shared := e.matcher.Overlap(buyer, seller)
		sig := Signals{
			Categories: shared,
			Keywords:   e.matcher.Keywords(shared),
			Semantic:   semantic.Similarity(buyer.Embedding, seller.Embedding),
		}
		if d, ok := idx.Nearest(buyer.Coordinates, j); ok {
			sig.DistanceKm = &d
		}

		m, reason := agg.Evaluate(buyer, seller, sig)
		switch reason {
		case BelowThreshold:
			out.threshold++
		case TooFar:
			out.distance++
		case NoSharedCategory:
			out.taxonomy++
		}
		if m == nil {
			e.monitor.Rejected(buyer, seller, reason)
			continue
		}
		e.monitor.Emitted(m)
		out.matches = append(out.matches, m)
	}
	return out
}

// register claims the reported pairs. Capped-out pairs stay unclaimed and
// may be reported by a later run. A pair another run sharing the
// deduplicator claimed first is dropped.
func (e *Engine) register(ranked []*core.Match, stats *Stats) []*core.Match {
	kept := ranked[:0]
	for _, m := range ranked {
		if !e.dedup.Register(m.Key()) {
			stats.DuplicatePairs++
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func (e *Engine) saveCheckpoint(ctx context.Context, runID string, processed int) error {
	if e.checkpoints == nil {
		return nil
	}
	err := e.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Name:      CheckpointName,
		RunID:     runID,
		Processed: processed,
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
