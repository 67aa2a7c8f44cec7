// Package config loads the run configuration of the matcher.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// SUCCESSION_* environment variables (a .env file is read first), and finally
// whatever the command line sets on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/succession/ai"
	"github.com/poiesic/succession/location"
	"github.com/poiesic/succession/location/nominatim"
	"github.com/poiesic/succession/matching"
	"github.com/poiesic/succession/taxonomy"
	"github.com/poiesic/succession/textnorm"
)

// Config is the full run configuration.
type Config struct {
	// Store is the BadgerDB directory holding caches and emitted matches.
	Store string `yaml:"store"`

	Input     Input           `yaml:"input"`
	Output    Output          `yaml:"output"`
	Matching  Matching        `yaml:"matching"`
	Taxonomy  TaxonomySection `yaml:"taxonomy"`
	Text      Text            `yaml:"text"`
	Embedding Embedding       `yaml:"embedding"`
	Geocoding Geocoding       `yaml:"geocoding"`
}

// Input names the listing files and the column mapping.
type Input struct {
	Buyers  string `yaml:"buyers"`
	Sellers string `yaml:"sellers"`
	Mapping string `yaml:"mapping"`
}

// Output selects the sinks. Both may be set.
type Output struct {
	CSV         string `yaml:"csv"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Table       string `yaml:"table"`
}

// Matching mirrors matching.Config in file form.
type Matching struct {
	Weights                matching.Weights `yaml:"weights"`
	Threshold              float64          `yaml:"threshold"`
	RequireTaxonomyOverlap bool             `yaml:"require_taxonomy_overlap"`
	MaxDistanceKm          float64          `yaml:"max_distance_km"`
	SearchRadiusKm         float64          `yaml:"search_radius_km"`
	CandidateK             int              `yaml:"candidate_k"`
	MaxMatchesPerBuyer     int              `yaml:"max_matches_per_buyer"`
	Workers                int              `yaml:"workers"`
}

// TaxonomySection selects the category table and how it is matched.
type TaxonomySection struct {
	File           string `yaml:"file"`
	Mode           string `yaml:"mode"`
	FuzzyThreshold int    `yaml:"fuzzy_threshold"`
}

// Text configures normalization.
type Text struct {
	Stemming     bool     `yaml:"stemming"`
	Stopwords    []string `yaml:"stopwords"`
	LongDigitRun int      `yaml:"long_digit_run"`
}

// Embedding configures the semantic signal. Disabled leaves every
// semantic score at zero.
type Embedding struct {
	Enabled           bool          `yaml:"enabled"`
	Host              string        `yaml:"host"`
	Model             string        `yaml:"model"`
	ModelVersion      string        `yaml:"model_version"`
	BatchSize         int           `yaml:"batch_size"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	AllowUnknownModel bool          `yaml:"allow_unknown_model"`
}

// Geocoding configures the Nominatim client and resolver. Disabled leaves
// every listing without coordinates.
type Geocoding struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	UserAgent   string        `yaml:"user_agent"`
	Country     string        `yaml:"country"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Workers     int           `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	m := matching.DefaultConfig()
	a := ai.DefaultConfig()
	return &Config{
		Store: "succession.db",
		Output: Output{
			Table: "matches",
		},
		Matching: Matching{
			Weights:   m.Weights,
			Threshold: m.Threshold,
			Workers:   m.Workers,
		},
		Taxonomy: TaxonomySection{
			Mode:           m.TaxonomyMode.String(),
			FuzzyThreshold: taxonomy.DefaultFuzzyThreshold,
		},
		Text: Text{
			LongDigitRun: textnorm.DefaultLongDigitRun,
		},
		Embedding: Embedding{
			Enabled:    true,
			Host:       a.EmbeddingHost,
			Model:      a.EmbeddingModel,
			BatchSize:  a.BatchSize,
			MaxRetries: a.MaxRetries,
			RetryDelay: a.RetryDelay,
		},
		Geocoding: Geocoding{
			Enabled:     true,
			BaseURL:     nominatim.DefaultBaseURL,
			UserAgent:   nominatim.DefaultUserAgent,
			Country:     nominatim.DefaultCountry,
			MinDelay:    location.DefaultMinDelay,
			MaxAttempts: location.DefaultMaxAttempts,
			RetryDelay:  location.DefaultRetryDelay,
			Workers:     1,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays the YAML document onto the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return nil
}

// MatchingConfig builds the aggregator and engine configuration.
func (c *Config) MatchingConfig() (matching.Config, error) {
	mode, err := taxonomy.ParseMode(c.Taxonomy.Mode)
	if err != nil {
		return matching.Config{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return matching.Config{
		Weights:                c.Matching.Weights,
		Threshold:              c.Matching.Threshold,
		RequireTaxonomyOverlap: c.Matching.RequireTaxonomyOverlap,
		MaxDistanceKm:          c.Matching.MaxDistanceKm,
		SearchRadiusKm:         c.Matching.SearchRadiusKm,
		CandidateK:             c.Matching.CandidateK,
		MaxMatchesPerBuyer:     c.Matching.MaxMatchesPerBuyer,
		TaxonomyMode:           mode,
		Workers:                c.Matching.Workers,
	}, nil
}

// AIConfig builds the embedding provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithModelVersion(c.Embedding.ModelVersion),
		ai.WithBatchSize(c.Embedding.BatchSize),
		ai.WithRetries(c.Embedding.MaxRetries, c.Embedding.RetryDelay),
		ai.WithAllowUnknownModel(c.Embedding.AllowUnknownModel),
	)
}

// NormalizerOptions returns the text normalization options.
func (c *Config) NormalizerOptions() []textnorm.Option {
	return []textnorm.Option{
		textnorm.WithStemming(c.Text.Stemming),
		textnorm.WithStopwords(c.Text.Stopwords...),
		textnorm.WithLongDigitRun(c.Text.LongDigitRun),
	}
}

// GeocoderOptions returns the Nominatim client options.
func (c *Config) GeocoderOptions() []nominatim.Option {
	return []nominatim.Option{
		nominatim.WithBaseURL(c.Geocoding.BaseURL),
		nominatim.WithUserAgent(c.Geocoding.UserAgent),
		nominatim.WithCountry(c.Geocoding.Country),
	}
}

// ResolverOptions returns the rate limit and retry options of the resolver.
func (c *Config) ResolverOptions() []location.Option {
	return []location.Option{
		location.WithMinDelay(c.Geocoding.MinDelay),
		location.WithMaxAttempts(c.Geocoding.MaxAttempts),
		location.WithRetryDelay(c.Geocoding.RetryDelay),
	}
}

// Validate checks the whole configuration. It fails before any listing
// is read.
func (c *Config) Validate() error {
	if c.Store == "" {
		return fmt.Errorf("%w: store path is required", ErrInvalidValue)
	}
	mc, err := c.MatchingConfig()
	if err != nil {
		return err
	}
	if err := mc.Validate(); err != nil {
		return err
	}
	if c.Taxonomy.FuzzyThreshold < 0 || c.Taxonomy.FuzzyThreshold > 100 {
		return fmt.Errorf("%w: taxonomy fuzzy_threshold %d outside [0, 100]", ErrInvalidValue, c.Taxonomy.FuzzyThreshold)
	}
	if c.Text.LongDigitRun < 0 {
		return fmt.Errorf("%w: text long_digit_run must not be negative", ErrInvalidValue)
	}
	if c.Embedding.Enabled {
		if err := c.AIConfig().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
	}
	if c.Geocoding.Enabled {
		if c.Geocoding.BaseURL == "" {
			return fmt.Errorf("%w: geocoding base_url is required", ErrInvalidValue)
		}
		if c.Geocoding.MaxAttempts < 1 {
			return fmt.Errorf("%w: geocoding max_attempts must be positive", ErrInvalidValue)
		}
		if c.Geocoding.Workers < 1 {
			return fmt.Errorf("%w: geocoding workers must be positive", ErrInvalidValue)
		}
		if c.Geocoding.MinDelay < 0 || c.Geocoding.RetryDelay < 0 {
			return fmt.Errorf("%w: geocoding delays must not be negative", ErrInvalidValue)
		}
	}
	return nil
}
