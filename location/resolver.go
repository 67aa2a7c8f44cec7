package location

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/succession/batch"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/storage"
	"github.com/poiesic/succession/textnorm"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultMinDelay is the minimum spacing between provider calls.
	DefaultMinDelay = time.Second
	// DefaultMaxAttempts bounds provider calls per location name.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the wait after the first failed call; it doubles after each further failure.
	DefaultRetryDelay = 10 * time.Second
)

// Resolver turns location names into coordinates through a rate limited,
// retrying geocoder and a persistent cache. Every name is sent to the
// provider at most once: successes and failures alike are cached under the
// folded name.
type Resolver struct {
	geocoder    Geocoder
	cache       storage.GeocodeCache
	limiter     *rate.Limiter
	maxAttempts int
	retryDelay  time.Duration
	group       singleflight.Group
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMinDelay sets the minimum delay between provider calls.
// A non-positive delay disables rate limiting.
func WithMinDelay(d time.Duration) Option {
	return func(r *Resolver) {
		if d <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithMaxAttempts sets how many times a failing lookup is tried.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n < 1 {
			n = 1
		}
		r.maxAttempts = n
	}
}

// WithRetryDelay sets the base backoff delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Resolver) {
		r.retryDelay = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver around geocoder and cache.
func NewResolver(geocoder Geocoder, cache storage.GeocodeCache, opts ...Option) (*Resolver, error) {
	if geocoder == nil {
		return nil, ErrGeocoderRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}

	r := &Resolver{
		geocoder:    geocoder,
		cache:       cache,
		limiter:     rate.NewLimiter(rate.Every(DefaultMinDelay), 1),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "location-resolver")
	return r, nil
}

// Resolve returns the coordinates of name. ok is false when the name is
// empty, the provider has no answer, the retry budget ran out or the
// provider returned coordinates outside the valid range.
func (r *Resolver) Resolve(ctx context.Context, name string) (core.Coordinate, bool) {
	key := textnorm.Fold(name)
	if key == "" {
		return core.Coordinate{}, false
	}

	if res, ok := r.lookup(ctx, key); ok {
		return res.Coordinate, res.Resolved
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		if res, ok := r.lookup(ctx, key); ok {
			return res, nil
		}
		res := r.query(ctx, name)
		if res == nil {
			return res, nil
		}
		if err := r.cache.PutGeocode(ctx, key, res); err != nil {
			r.logger.Warn("failed to cache geocode result", "name", name, "err", err)
		}
		return res, nil
	})

	res := v.(*core.GeocodeResult)
	if res == nil {
		return core.Coordinate{}, false
	}
	return res.Coordinate, res.Resolved
}

// lookup reads the cache. Read errors are logged and treated as misses.
func (r *Resolver) lookup(ctx context.Context, key string) (*core.GeocodeResult, bool) {
	res, err := r.cache.GetGeocode(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("geocode cache read failed", "key", key, "err", err)
		}
		return nil, false
	}
	return res, true
}

// query asks the provider. It returns nil only when ctx was cancelled, so a
// shutdown never poisons the cache with unresolved entries.
func (r *Resolver) query(ctx context.Context, name string) *core.GeocodeResult {
	var (
		coord core.Coordinate
		found bool
	)
	err := batch.RetryWithBackoff(ctx, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return batch.Permanent(err)
		}
		c, ok, err := r.geocoder.Geocode(ctx, name)
		if err != nil {
			return err
		}
		coord, found = c, ok
		return nil
	}, r.maxAttempts, r.retryDelay)

	if ctx.Err() != nil {
		return nil
	}

	result := &core.GeocodeResult{Name: name, ResolvedAt: time.Now().UTC()}
	switch {
	case err != nil:
		r.logger.Warn("geocoding failed, caching as unresolved", "name", name, "attempts", r.maxAttempts, "err", err)
	case !found:
		r.logger.Debug("no geocoding result", "name", name)
	case !coord.Valid():
		r.logger.Warn("discarding out of range coordinates", "name", name, "lat", coord.Lat, "lon", coord.Lon)
	default:
		result.Coordinate = coord
		result.Resolved = true
	}
	return result
}

// ResolveListing resolves every parsed token of the listing and stores the
// distinct coordinates on it. It returns the number of unresolved tokens.
func (r *Resolver) ResolveListing(ctx context.Context, listing *core.Listing) int {
	coords := make([]core.Coordinate, 0)
	unresolved := 0
	for _, name := range LocationNames(listing.Location) {
		c, ok := r.Resolve(ctx, name)
		if !ok {
			unresolved++
			continue
		}
		if !slices.Contains(coords, c) {
			coords = append(coords, c)
		}
	}
	listing.Coordinates = coords
	return unresolved
}

// WarmStats summarizes a cache warm-up.
type WarmStats struct {
	Names      int
	Resolved   int
	Unresolved int
}

// Warm resolves the distinct names in parallel so later lookups are cache
// hits. Cancelling ctx stops submitting names; names already submitted finish.
func (r *Resolver) Warm(ctx context.Context, names []string, workers int) (WarmStats, error) {
	seen := make(map[string]string, len(names))
	for _, n := range names {
		if key := textnorm.Fold(n); key != "" {
			if _, ok := seen[key]; !ok {
				seen[key] = n
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	stats := WarmStats{Names: len(keys)}
	if len(keys) == 0 {
		return stats, nil
	}

	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return stats, err
	}
	defer pool.Release()

	var (
		wg                   sync.WaitGroup
		resolved, unresolved atomic.Int64
	)
	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		name := seen[k]
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if _, ok := r.Resolve(ctx, name); ok {
				resolved.Add(1)
			} else {
				unresolved.Add(1)
			}
		}); err != nil {
			wg.Done()
			r.logger.Error("failed to submit geocode task", "name", name, "err", err)
		}
	}
	wg.Wait()

	stats.Resolved = int(resolved.Load())
	stats.Unresolved = int(unresolved.Load())
	return stats, ctx.Err()
}

// LocationNames returns the geocodable names of a parsed location in a fixed
// order: states, then regions, then cities, each sorted.
func LocationNames(loc core.ParsedLocation) []string {
	names := make([]string, 0, loc.States.Len()+loc.Regions.Len()+loc.Cities.Len())
	names = append(names, loc.States.Sorted()...)
	names = append(names, loc.Regions.Sorted()...)
	names = append(names, loc.Cities.Sorted()...)
	return names
}
