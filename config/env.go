package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment variable the configuration reads.
const EnvPrefix = "SUCCESSION_"

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Environment returns a lookup over the process environment that falls back
// to the given .env files. Missing files are skipped; process variables win
// over file entries.
func Environment(files ...string) (LookupFunc, error) {
	fromFiles := make(map[string]string)
	for _, file := range files {
		vars, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		for k, v := range vars {
			if _, seen := fromFiles[k]; !seen {
				fromFiles[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFiles[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides settings from SUCCESSION_* variables. Empty values are
// ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("STORE", &c.Store)
	e.str("BUYERS", &c.Input.Buyers)
	e.str("SELLERS", &c.Input.Sellers)
	e.str("MAPPING", &c.Input.Mapping)
	e.str("OUTPUT_CSV", &c.Output.CSV)
	e.str("POSTGRES_DSN", &c.Output.PostgresDSN)
	e.str("POSTGRES_TABLE", &c.Output.Table)

	e.float("WEIGHT_LOCATION", &c.Matching.Weights.Location)
	e.float("WEIGHT_TAXONOMY", &c.Matching.Weights.Taxonomy)
	e.float("WEIGHT_SEMANTIC", &c.Matching.Weights.Semantic)
	e.float("THRESHOLD", &c.Matching.Threshold)
	e.boolean("REQUIRE_TAXONOMY_OVERLAP", &c.Matching.RequireTaxonomyOverlap)
	e.float("MAX_DISTANCE_KM", &c.Matching.MaxDistanceKm)
	e.float("SEARCH_RADIUS_KM", &c.Matching.SearchRadiusKm)
	e.integer("CANDIDATE_K", &c.Matching.CandidateK)
	e.integer("MAX_MATCHES_PER_BUYER", &c.Matching.MaxMatchesPerBuyer)
	e.integer("WORKERS", &c.Matching.Workers)

	e.str("TAXONOMY_FILE", &c.Taxonomy.File)
	e.str("TAXONOMY_MODE", &c.Taxonomy.Mode)
	e.integer("FUZZY_THRESHOLD", &c.Taxonomy.FuzzyThreshold)
	e.boolean("STEMMING", &c.Text.Stemming)

	e.boolean("EMBEDDING_ENABLED", &c.Embedding.Enabled)
	e.str("EMBEDDING_HOST", &c.Embedding.Host)
	e.str("EMBEDDING_MODEL", &c.Embedding.Model)
	e.str("EMBEDDING_MODEL_VERSION", &c.Embedding.ModelVersion)
	e.integer("EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize)
	e.integer("EMBEDDING_MAX_RETRIES", &c.Embedding.MaxRetries)
	e.duration("EMBEDDING_RETRY_DELAY", &c.Embedding.RetryDelay)

	e.boolean("GEOCODING_ENABLED", &c.Geocoding.Enabled)
	e.str("NOMINATIM_URL", &c.Geocoding.BaseURL)
	e.str("NOMINATIM_USER_AGENT", &c.Geocoding.UserAgent)
	e.str("NOMINATIM_COUNTRY", &c.Geocoding.Country)
	e.duration("GEOCODING_MIN_DELAY", &c.Geocoding.MinDelay)
	e.integer("GEOCODING_MAX_ATTEMPTS", &c.Geocoding.MaxAttempts)
	e.duration("GEOCODING_RETRY_DELAY", &c.Geocoding.RetryDelay)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(name string) (string, string, bool) {
	key := EnvPrefix + name
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return key, v, ok && v != ""
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, key, value, err))
}

func (e *envReader) str(name string, dst *string) {
	if _, v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(name string, dst *float64) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) boolean(name string, dst *bool) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(name string, dst *time.Duration) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}
