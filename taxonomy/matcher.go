package taxonomy

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/textnorm"
)

// DefaultFuzzyThreshold is the minimum partial ratio for a fuzzy hit.
const DefaultFuzzyThreshold = 80

// Mode selects how synonyms are found in text.
type Mode int

const (
	// ModeExact reports a category when a synonym is a substring of the text.
	ModeExact Mode = iota
	// ModeFuzzy reports a category when a synonym's partial ratio against
	// the text reaches the fuzzy threshold.
	ModeFuzzy
	// ModeAuto uses exact overlap and falls back to fuzzy overlap for pairs
	// where exact matching finds nothing.
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModeFuzzy:
		return "fuzzy"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "exact", "fuzzy" or "auto".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact", "":
		return ModeExact, nil
	case "fuzzy":
		return ModeFuzzy, nil
	case "auto":
		return ModeAuto, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

type compiledCategory struct {
	id      string
	keyword string
	terms   []string // normalized, distinct, non-empty
}

// Matcher finds taxonomy categories in normalized listing text.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	categories []compiledCategory
	keywords   map[string]string
	mode       Mode
	threshold  int
	ratio      RatioProvider
	normalizer *textnorm.Normalizer
	logger     *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMode sets the matching mode. Default: ModeExact.
func WithMode(mode Mode) Option {
	return func(m *Matcher) {
		m.mode = mode
	}
}

// WithFuzzyThreshold sets the minimum partial ratio (0..100) for fuzzy hits.
func WithFuzzyThreshold(threshold int) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// WithRatioProvider replaces the default LevenshteinRatio.
func WithRatioProvider(r RatioProvider) Option {
	return func(m *Matcher) {
		if r != nil {
			m.ratio = r
		}
	}
}

// WithNormalizer sets the normalizer applied to synonyms. It must be the one
// used for listing text, otherwise stemmed text never contains an
// unstemmed synonym.
func WithNormalizer(n *textnorm.Normalizer) Option {
	return func(m *Matcher) {
		if n != nil {
			m.normalizer = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher compiles a taxonomy into a Matcher.
func NewMatcher(t *Taxonomy, opts ...Option) (*Matcher, error) {
	if t == nil {
		return nil, ErrEmptyTaxonomy
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	m := &Matcher{
		keywords:  make(map[string]string, len(t.Categories)),
		mode:      ModeExact,
		threshold: DefaultFuzzyThreshold,
		ratio:     LevenshteinRatio{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.normalizer == nil {
		m.normalizer = textnorm.New()
	}
	if m.threshold < 0 || m.threshold > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, m.threshold)
	}
	if m.mode < ModeExact || m.mode > ModeAuto {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, m.mode)
	}
	m.logger = m.logger.With("component", "taxonomy-matcher")

	for _, c := range t.Categories {
		cc := compiledCategory{id: strings.TrimSpace(c.ID), keyword: strings.TrimSpace(c.Keyword)}
		if cc.keyword == "" {
			cc.keyword = cc.id
		}
		for _, term := range c.Terms() {
			norm := m.normalizer.Normalize(term)
			if norm != "" && !slices.Contains(cc.terms, norm) {
				cc.terms = append(cc.terms, norm)
			}
		}
		if len(cc.terms) == 0 {
			return nil, fmt.Errorf("%w: %s has no terms left after normalization", ErrInvalidCategory, cc.id)
		}
		m.categories = append(m.categories, cc)
		m.keywords[cc.id] = cc.keyword
	}

	m.logger.Debug("taxonomy compiled", "categories", len(m.categories), "mode", m.mode, "threshold", m.threshold)
	return m, nil
}

// Len returns the number of known categories.
func (m *Matcher) Len() int {
	return len(m.categories)
}

// Mode returns the configured matching mode.
func (m *Matcher) Mode() Mode {
	return m.mode
}

// Categories returns the categories with a synonym contained in text.
// text must be normalized with the matcher's normalizer.
func (m *Matcher) Categories(text string) core.StringSet {
	found := core.NewStringSet()
	if text == "" {
		return found
	}
	for _, c := range m.categories {
		for _, term := range c.terms {
			if strings.Contains(text, term) {
				found.Add(c.id)
				break
			}
		}
	}
	return found
}

// FuzzyCategories returns the categories with a synonym whose partial ratio
// against text reaches the fuzzy threshold.
func (m *Matcher) FuzzyCategories(text string) core.StringSet {
	found := core.NewStringSet()
	if text == "" {
		return found
	}
	for _, c := range m.categories {
		for _, term := range c.terms {
			if m.ratio.PartialRatio(term, text) >= m.threshold {
				found.Add(c.id)
				break
			}
		}
	}
	return found
}

// Annotate stores the categories of the listing's normalized text on the
// listing. Fuzzy categories are computed only when the mode can use them.
func (m *Matcher) Annotate(l *core.Listing) {
	l.Categories = m.Categories(l.NormalizedText)
	l.FuzzyCategories = nil
	if m.mode != ModeExact {
		l.FuzzyCategories = m.FuzzyCategories(l.NormalizedText)
	}
}

// Overlap returns the categories shared by two annotated listings under the
// matcher's mode.
func (m *Matcher) Overlap(a, b *core.Listing) core.StringSet {
	return m.overlap(a.Categories, a.FuzzyCategories, b.Categories, b.FuzzyCategories)
}

// MatchCategories returns the categories for which both normalized texts
// contain a synonym.
func (m *Matcher) MatchCategories(a, b string) core.StringSet {
	var fuzzyA, fuzzyB core.StringSet
	if m.mode != ModeExact {
		fuzzyA, fuzzyB = m.FuzzyCategories(a), m.FuzzyCategories(b)
	}
	return m.overlap(m.Categories(a), fuzzyA, m.Categories(b), fuzzyB)
}

func (m *Matcher) overlap(exactA, fuzzyA, exactB, fuzzyB core.StringSet) core.StringSet {
	switch m.mode {
	case ModeFuzzy:
		return fuzzyA.Intersect(fuzzyB)
	case ModeAuto:
		if shared := exactA.Intersect(exactB); shared.Len() > 0 {
			return shared
		}
		return fuzzyA.Intersect(fuzzyB)
	default:
		return exactA.Intersect(exactB)
	}
}

// Keywords returns the canonical keywords of ids, sorted.
func (m *Matcher) Keywords(ids core.StringSet) []string {
	out := make([]string, 0, ids.Len())
	for _, id := range ids.Sorted() {
		if k, ok := m.keywords[id]; ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
