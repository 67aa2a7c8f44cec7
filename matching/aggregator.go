package matching

import (
	"fmt"
	"math"
	"time"

	"github.com/poiesic/succession/core"
)

// Reason tells why the aggregator accepted or dropped a pair.
type Reason int

const (
	// Accepted pairs produce a match.
	Accepted Reason = iota
	// BelowThreshold pairs have a composite score under the threshold.
	BelowThreshold
	// TooFar pairs are farther apart than the maximum distance.
	TooFar
	// NoSharedCategory pairs failed the taxonomy gate.
	NoSharedCategory
)

func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case BelowThreshold:
		return "below_threshold"
	case TooFar:
		return "too_far"
	case NoSharedCategory:
		return "no_shared_category"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Signals are the pair-level inputs computed outside the aggregator.
type Signals struct {
	Categories core.StringSet // categories shared by buyer and seller
	Keywords   []string       // canonical keywords of Categories, sorted
	Semantic   float64        // cosine similarity of the embeddings
	DistanceKm *float64       // nil when either side lacks coordinates
}

// Aggregator turns the signals of one pair into a composite score and
// decides whether the pair is a match. It is stateless apart from its
// configuration and safe for concurrent use.
type Aggregator struct {
	cfg        Config
	categories int
	runID      string
	createdAt  time.Time
}

// NewAggregator creates an Aggregator. categories is the size of the
// taxonomy, used to scale the soft taxonomy score. Matches are stamped with
// runID and createdAt.
func NewAggregator(cfg Config, categories int, runID string, createdAt time.Time) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		cfg:        cfg,
		categories: categories,
		runID:      runID,
		createdAt:  createdAt,
	}, nil
}

// LocationScore returns the share of location tokens the two sides have in
// common, relative to the larger side, and the shared tokens sorted. The
// score is symmetric and 0 when either side parsed no token.
func LocationScore(a, b core.ParsedLocation) (float64, []string) {
	na, nb := a.Len(), b.Len()
	if na == 0 || nb == 0 {
		return 0, []string{}
	}
	shared := a.Overlap(b)
	return float64(shared.Len()) / float64(max(1, na, nb)), shared.Sorted()
}

// TaxonomyScore returns the share of known categories matched by a pair.
func (a *Aggregator) TaxonomyScore(shared core.StringSet) float64 {
	return clamp(float64(shared.Len()) / float64(max(1, a.categories)))
}

// Score returns the match for a pair, or false when the pair is dropped.
func (a *Aggregator) Score(buyer, seller *core.Listing, sig Signals) (*core.Match, bool) {
	m, reason := a.Evaluate(buyer, seller, sig)
	return m, reason == Accepted
}

// Evaluate scores a pair and reports why it was dropped. The match is nil
// unless the reason is Accepted.
func (a *Aggregator) Evaluate(buyer, seller *core.Listing, sig Signals) (*core.Match, Reason) {
	w := a.cfg.Weights
	loc, sharedLocations := LocationScore(buyer.Location, seller.Location)
	sem := clamp(sig.Semantic)

	var tax, composite float64
	if a.cfg.RequireTaxonomyOverlap {
		if sig.Categories.Len() == 0 {
			return nil, NoSharedCategory
		}
		// gate passed; the remaining weights are rescaled to sum to 1
		tax = 1
		composite = (w.Location*loc + w.Semantic*sem) / (w.Location + w.Semantic)
	} else {
		tax = a.TaxonomyScore(sig.Categories)
		composite = w.Location*loc + w.Taxonomy*tax + w.Semantic*sem
	}
	composite = clamp(composite)

	if composite < a.cfg.Threshold {
		return nil, BelowThreshold
	}
	if a.cfg.MaxDistanceKm > 0 && sig.DistanceKm != nil && *sig.DistanceKm > a.cfg.MaxDistanceKm {
		return nil, TooFar
	}

	var distance *float64
	if sig.DistanceKm != nil {
		d := *sig.DistanceKm
		distance = &d
	}
	keywords := append([]string{}, sig.Keywords...)

	return &core.Match{
		BuyerID:           buyer.ID,
		SellerID:          seller.ID,
		LocationScore:     loc,
		TaxonomyScore:     tax,
		SemanticScore:     sem,
		CompositeScore:    composite,
		DistanceKm:        distance,
		MatchingKeywords:  keywords,
		MatchingLocations: sharedLocations,
		CreatedAt:         a.createdAt,
		RunID:             a.runID,
	}, Accepted
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}
