package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mapping names the CSV columns that feed each listing field. Fields built
// from several columns join the non-empty values; location columns are
// joined with ", " so each column stays a separate location token.
type Mapping struct {
	// ID lists candidate id columns; the first non-empty one wins. When all
	// are empty the data row index is used.
	ID              []string          `yaml:"id"`
	Title           []string          `yaml:"title"`
	Summary         []string          `yaml:"summary"`
	LongDescription []string          `yaml:"long_description"`
	Location        []string          `yaml:"location"`
	Industry        []string          `yaml:"industry"`
	Extra           map[string]string `yaml:"extra"` // output name -> column
}

// Mappings holds the mapping of both input files.
type Mappings struct {
	Buyer  Mapping `yaml:"buyer"`
	Seller Mapping `yaml:"seller"`
}

// DefaultBuyerMapping matches the buyer export of the listing portal.
func DefaultBuyerMapping() Mapping {
	return Mapping{
		ID:              []string{"id", "contact details"},
		Title:           []string{"title"},
		Summary:         []string{"description"},
		LongDescription: []string{"long_description"},
		Location:        []string{"location"},
		Industry:        []string{"Industrie", "Sub-Industrie"},
		Extra: map[string]string{
			"date":    "publishing date",
			"contact": "contact details",
		},
	}
}

// DefaultSellerMapping matches the seller listings scraped from the sales
// exchange.
func DefaultSellerMapping() Mapping {
	return Mapping{
		ID:              []string{"id", "url"},
		Title:           []string{"title"},
		Summary:         []string{"description"},
		LongDescription: []string{"long_description"},
		Location:        []string{"location", "standort"},
		Industry:        []string{"branchen"},
		Extra: map[string]string{
			"date":          "date",
			"url":           "url",
			"employees":     "mitarbeiter",
			"revenue":       "jahresumsatz",
			"price":         "preisvorstellung",
			"international": "international",
		},
	}
}

// DefaultMappings returns the default buyer and seller mappings.
func DefaultMappings() Mappings {
	return Mappings{Buyer: DefaultBuyerMapping(), Seller: DefaultSellerMapping()}
}

// IsZero reports whether no column is mapped at all.
func (m Mapping) IsZero() bool {
	return len(m.ID) == 0 && len(m.Title) == 0 && len(m.Summary) == 0 &&
		len(m.LongDescription) == 0 && len(m.Location) == 0 && len(m.Industry) == 0 &&
		len(m.Extra) == 0
}

// ParseMappings parses YAML. A side left out keeps its default mapping.
func ParseMappings(data []byte) (Mappings, error) {
	var m Mappings
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Mappings{}, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if m.Buyer.IsZero() {
		m.Buyer = DefaultBuyerMapping()
	}
	if m.Seller.IsZero() {
		m.Seller = DefaultSellerMapping()
	}
	return m, nil
}

// LoadMappings reads a YAML mapping file.
func LoadMappings(path string) (Mappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mappings{}, fmt.Errorf("failed to read mapping: %w", err)
	}
	return ParseMappings(data)
}
