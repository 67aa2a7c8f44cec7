package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/textnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultMatcher(t *testing.T, opts ...Option) (*Matcher, *textnorm.Normalizer) {
	t.Helper()
	norm := textnorm.New()
	m, err := NewMatcher(Default(), append([]Option{WithNormalizer(norm)}, opts...)...)
	require.NoError(t, err)
	return m, norm
}

func TestDefault_IsValid(t *testing.T) {
	tax := Default()
	require.NoError(t, tax.Validate())

	m, _ := newDefaultMatcher(t)
	assert.Equal(t, len(tax.Categories), m.Len())
}

func TestParse(t *testing.T) {
	t.Run("valid yaml", func(t *testing.T) {
		tax, err := Parse([]byte(`
categories:
  - id: elektro
    keyword: Elektrofirma
    synonyms: [elektriker, elektroinstallation]
  - id: shk
    synonyms: [sanitär]
`))
		require.NoError(t, err)
		require.Len(t, tax.Categories, 2)
		assert.Equal(t, []string{"Elektrofirma", "elektriker", "elektroinstallation"}, tax.Categories[0].Terms())
	})

	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{"empty", "categories: []", ErrEmptyTaxonomy},
		{"missing id", "categories:\n  - keyword: x", ErrInvalidCategory},
		{"no terms", "categories:\n  - id: x", ErrInvalidCategory},
		{"duplicate", "categories:\n  - id: x\n    keyword: a\n  - id: x\n    keyword: b", ErrDuplicateCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("categories: ["))
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  - id: bau\n    keyword: Baufirma\n"), 0644))

	tax, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bau", tax.Categories[0].ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewMatcher_Validation(t *testing.T) {
	_, err := NewMatcher(nil)
	assert.ErrorIs(t, err, ErrEmptyTaxonomy)

	_, err = NewMatcher(Default(), WithFuzzyThreshold(101))
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = NewMatcher(Default(), WithMode(Mode(7)))
	assert.ErrorIs(t, err, ErrInvalidMode)

	// a category made only of stopwords has nothing to match
	_, err = NewMatcher(&Taxonomy{Categories: []Category{{ID: "x", Keyword: "und oder"}}})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"exact": ModeExact, "": ModeExact, "FUZZY": ModeFuzzy, " auto ": ModeAuto} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("strict")
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, "fuzzy", ModeFuzzy.String())
}

func TestMatcher_SynonymMatch(t *testing.T) {
	m, norm := newDefaultMatcher(t)

	buyer := norm.Normalize("Elektroinstallation")
	seller := norm.Normalize("Elektrofirma")

	got := m.MatchCategories(buyer, seller)
	assert.Equal(t, []string{"elektro"}, got.Sorted())
	assert.Equal(t, []string{"Elektrofirma"}, m.Keywords(got))
}

func TestMatcher_BothSidesRequired(t *testing.T) {
	m, norm := newDefaultMatcher(t)

	got := m.MatchCategories(norm.Normalize("Sanitärbetrieb mit Heizungsbau"), norm.Normalize("Schreinerei mit Innenausbau"))
	assert.Zero(t, got.Len())
}

func TestMatcher_EmptyText(t *testing.T) {
	m, _ := newDefaultMatcher(t, WithMode(ModeAuto))

	assert.NotNil(t, m.Categories(""))
	assert.Zero(t, m.MatchCategories("", "").Len())
	assert.Zero(t, m.MatchCategories("elektro", "").Len())
}

func TestMatcher_Modes(t *testing.T) {
	buyerText := "Suche Schreinrei im Süden"
	sellerText := "Traditionelle Schreinerei zu verkaufen"

	tests := []struct {
		mode Mode
		want []string
	}{
		{ModeExact, []string{}},
		{ModeFuzzy, []string{"schreinerei"}},
		{ModeAuto, []string{"schreinerei"}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			m, norm := newDefaultMatcher(t, WithMode(tt.mode))
			got := m.MatchCategories(norm.Normalize(buyerText), norm.Normalize(sellerText))
			assert.Equal(t, tt.want, got.Sorted())
		})
	}
}

func TestMatcher_AutoPrefersExactOverlap(t *testing.T) {
	m, norm := newDefaultMatcher(t, WithMode(ModeAuto))

	// exact overlap on elektro; the typo'd schreinerei would only match fuzzily
	got := m.MatchCategories(
		norm.Normalize("Elektriker und Schreinrei"),
		norm.Normalize("Elektrobetrieb und Schreinerei"),
	)
	assert.Equal(t, []string{"elektro"}, got.Sorted())
}

func TestMatcher_AnnotateAndOverlap(t *testing.T) {
	m, norm := newDefaultMatcher(t, WithMode(ModeFuzzy))

	buyer := &core.Listing{ID: "b", NormalizedText: norm.Normalize("Heizungbau Betrieb gesucht")}
	seller := &core.Listing{ID: "s", NormalizedText: norm.Normalize("SHK Meisterbetrieb, Heizungsbau")}
	m.Annotate(buyer)
	m.Annotate(seller)

	assert.NotNil(t, buyer.FuzzyCategories)
	assert.Equal(t, []string{"shk"}, m.Overlap(buyer, seller).Sorted())

	exact, _ := newDefaultMatcher(t)
	exact.Annotate(buyer)
	assert.Nil(t, buyer.FuzzyCategories)
}

type fixedRatio int

func (f fixedRatio) Ratio(a, b string) int        { return int(f) }
func (f fixedRatio) PartialRatio(a, b string) int { return int(f) }

func TestMatcher_CustomRatioProvider(t *testing.T) {
	m, _ := newDefaultMatcher(t, WithMode(ModeFuzzy), WithRatioProvider(fixedRatio(90)), WithFuzzyThreshold(85))
	assert.Equal(t, m.Len(), m.FuzzyCategories("irgendwas").Len())

	m, _ = newDefaultMatcher(t, WithMode(ModeFuzzy), WithRatioProvider(fixedRatio(50)))
	assert.Zero(t, m.FuzzyCategories("irgendwas").Len())
}
