package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one industry or business type: a canonical keyword plus the
// synonyms that identify it in free text. The keyword itself always counts
// as a synonym.
type Category struct {
	ID       string   `yaml:"id"`
	Keyword  string   `yaml:"keyword"`
	Synonyms []string `yaml:"synonyms"`
}

// Terms returns the keyword followed by the synonyms, skipping blanks.
func (c Category) Terms() []string {
	terms := make([]string, 0, len(c.Synonyms)+1)
	if k := strings.TrimSpace(c.Keyword); k != "" {
		terms = append(terms, k)
	}
	for _, s := range c.Synonyms {
		if s = strings.TrimSpace(s); s != "" {
			terms = append(terms, s)
		}
	}
	return terms
}

// Taxonomy is the static keyword to category table.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`
}

// Load reads a YAML taxonomy file.
//
//	categories:
//	  - id: elektro
//	    keyword: Elektrofirma
//	    synonyms: [elektriker, elektroinstallation]
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML taxonomy.
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that every category has a unique id and at least one term.
func (t *Taxonomy) Validate() error {
	if len(t.Categories) == 0 {
		return ErrEmptyTaxonomy
	}
	seen := make(map[string]struct{}, len(t.Categories))
	for i, c := range t.Categories {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return fmt.Errorf("%w: category %d has no id", ErrInvalidCategory, i)
		}
		if len(c.Terms()) == 0 {
			return fmt.Errorf("%w: %s has no keyword or synonyms", ErrInvalidCategory, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCategory, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Default returns the built-in German small business taxonomy.
func Default() *Taxonomy {
	return &Taxonomy{Categories: []Category{
		{
			ID:      "shk",
			Keyword: "Heizung Sanitär",
			Synonyms: []string{
				"shk", "sanitär", "heizung", "klima", "sanitärtechnik", "heizungstechnik",
				"heizungsbau", "wasserinstallation", "klimatechnik", "lüftung",
				"sanitärhandwerk", "klimaanlage", "sanitärinstallation", "installateur",
			},
		},
		{
			ID:      "elektro",
			Keyword: "Elektrofirma",
			Synonyms: []string{
				"elektro", "elektriker", "elektrobetrieb", "elektroinstallation",
				"elektrotechnik", "elektromeister", "elektrohandwerk", "elektroarbeiten",
				"elektrofachbetrieb", "elektroanlagen", "elektroservice",
			},
		},
		{
			ID:      "schreinerei",
			Keyword: "Schreinerei",
			Synonyms: []string{
				"schreiner", "tischlerei", "tischler", "möbelbau", "innenausbau",
				"holzverarbeitung", "fensterbau",
			},
		},
		{
			ID:      "transport",
			Keyword: "Transport und Logistik",
			Synonyms: []string{
				"transport", "logistik", "spedition", "kurierdienst", "umzug",
				"lagerlogistik", "fuhrunternehmen",
			},
		},
		{
			ID:      "physiotherapie",
			Keyword: "Physiotherapie",
			Synonyms: []string{
				"physiotherapeut", "krankengymnastik", "ergotherapie", "massage",
				"rehabilitation", "therapiezentrum",
			},
		},
		{
			ID:      "gastronomie",
			Keyword: "Gastronomie",
			Synonyms: []string{
				"restaurant", "gaststätte", "cafe", "bäckerei", "catering",
				"imbiss", "hotel", "bistro",
			},
		},
		{
			ID:      "it",
			Keyword: "IT-Dienstleistung",
			Synonyms: []string{
				"software", "softwareentwicklung", "it-dienstleister", "edv",
				"it-systemhaus", "systemhaus", "webentwicklung", "informatik",
			},
		},
		{
			ID:      "bau",
			Keyword: "Bauunternehmen",
			Synonyms: []string{
				"baufirma", "hochbau", "tiefbau", "maurer", "dachdecker",
				"bauhandwerk", "trockenbau", "malerbetrieb", "maler",
			},
		},
	}}
}
