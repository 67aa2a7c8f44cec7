package matching

import (
	"fmt"
	"math"
	"runtime"

	"github.com/poiesic/succession/taxonomy"
)

// weightTolerance bounds how far the weight sum may stray from 1.
const weightTolerance = 1e-6

// Weights are the relative contributions of the three signals to the
// composite score.
type Weights struct {
	Location float64 `yaml:"location"`
	Taxonomy float64 `yaml:"taxonomy"`
	Semantic float64 `yaml:"semantic"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Location + w.Taxonomy + w.Semantic
}

// Config holds the parameters of a matching run.
type Config struct {
	Weights   Weights
	Threshold float64

	// RequireTaxonomyOverlap turns the taxonomy signal into a gate: pairs
	// without a shared category are dropped and the composite is built from
	// location and semantic scores alone.
	RequireTaxonomyOverlap bool

	MaxDistanceKm      float64 // 0 disables the distance limit
	SearchRadiusKm     float64 // 0 disables the radius query
	CandidateK         int     // 0 disables the nearest-seller cap
	MaxMatchesPerBuyer int     // 0 keeps every match
	TaxonomyMode       taxonomy.Mode
	Workers            int
}

// DefaultConfig returns the weights and threshold of the advanced matcher:
// location and category count 0.4 each, text similarity 0.2, threshold 0.3.
func DefaultConfig() Config {
	return Config{
		Weights:      Weights{Location: 0.4, Taxonomy: 0.4, Semantic: 0.2},
		Threshold:    0.3,
		TaxonomyMode: taxonomy.ModeExact,
		Workers:      max(1, runtime.NumCPU()/2),
	}
}

// SpatialFiltering reports whether candidate sellers are narrowed through
// the spatial index.
func (c Config) SpatialFiltering() bool {
	return c.SearchRadiusKm > 0 || c.CandidateK > 0
}

// Validate checks the configuration before any listing is processed.
func (c Config) Validate() error {
	w := c.Weights
	for _, v := range []float64{w.Location, w.Taxonomy, w.Semantic} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %w: got %+v", ErrInvalidConfig, ErrInvalidWeights, w)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("%w: %w: sum is %v", ErrInvalidConfig, ErrInvalidWeights, w.Sum())
	}
	if c.RequireTaxonomyOverlap && w.Location+w.Semantic <= 0 {
		return fmt.Errorf("%w: %w: location and semantic weights are both zero with the taxonomy gate on",
			ErrInvalidConfig, ErrInvalidWeights)
	}
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: %w: got %v", ErrInvalidConfig, ErrInvalidThreshold, c.Threshold)
	}
	if c.MaxDistanceKm < 0 || c.SearchRadiusKm < 0 {
		return fmt.Errorf("%w: distances cannot be negative", ErrInvalidConfig)
	}
	if c.CandidateK < 0 || c.MaxMatchesPerBuyer < 0 {
		return fmt.Errorf("%w: candidate_k and max_matches_per_buyer cannot be negative", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if _, err := taxonomy.ParseMode(c.TaxonomyMode.String()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
