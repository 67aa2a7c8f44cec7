// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package succession wires the matching pipeline together: the BadgerDB
// store, the geocoder, the embedding provider, the taxonomy and the sinks.
package succession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/poiesic/succession/ai"
	"github.com/poiesic/succession/ai/openai"
	"github.com/poiesic/succession/config"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/export"
	"github.com/poiesic/succession/location"
	"github.com/poiesic/succession/location/nominatim"
	"github.com/poiesic/succession/matching"
	"github.com/poiesic/succession/semantic"
	"github.com/poiesic/succession/source"
	"github.com/poiesic/succession/storage/badger"
	"github.com/poiesic/succession/taxonomy"
	"github.com/poiesic/succession/textnorm"
)

// ErrNoInput is returned by LoadListings when an input file is not configured.
var ErrNoInput = errors.New("input file not configured")

// Service owns the long lived resources of a matching run.
type Service struct {
	cfg        *config.Config
	stores     *badger.Stores
	provider   ai.Provider
	resolver   *location.Resolver
	scorer     *semantic.Scorer
	normalizer *textnorm.Normalizer
	matcher    *taxonomy.Matcher
	mappings   source.Mappings
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*options)

type options struct {
	provider ai.Provider
	geocoder location.Geocoder
	inMemory bool
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI compatible embedding provider.
func WithProvider(p ai.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithGeocoder replaces the Nominatim client.
func WithGeocoder(g location.Geocoder) Option {
	return func(o *options) {
		o.geocoder = g
	}
}

// WithInMemoryStore keeps all state in memory instead of cfg.Store.
func WithInMemoryStore() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open validates cfg and opens every resource it names.
func Open(cfg *config.Config, opts ...Option) (*Service, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		normalizer: textnorm.New(cfg.NormalizerOptions()...),
		mappings:   source.DefaultMappings(),
		logger:     o.logger.With("component", "succession"),
	}

	if cfg.Input.Mapping != "" {
		m, err := source.LoadMappings(cfg.Input.Mapping)
		if err != nil {
			return nil, err
		}
		s.mappings = m
	}

	matcher, err := s.newMatcher(o.logger)
	if err != nil {
		return nil, err
	}
	s.matcher = matcher

	backend, err := badger.OpenBackend(cfg.Store, o.inMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.stores = badger.NewStores(backend)

	if cfg.Geocoding.Enabled {
		geocoder := o.geocoder
		if geocoder == nil {
			geocoder = nominatim.New(cfg.GeocoderOptions()...)
		}
		resolverOpts := append(cfg.ResolverOptions(), location.WithLogger(o.logger))
		s.resolver, err = location.NewResolver(geocoder, s.stores.Geocodes, resolverOpts...)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	if cfg.Embedding.Enabled {
		aiConfig := cfg.AIConfig()
		aiConfig.Normalize()
		provider := o.provider
		if provider == nil {
			provider, err = openai.NewProvider(aiConfig)
			if err != nil {
				backend.Close()
				return nil, fmt.Errorf("failed to create embedding provider: %w", err)
			}
		}
		s.provider = provider
		s.scorer, err = semantic.NewScorer(provider.Embedder(),
			semantic.WithCache(s.stores.Embeddings),
			semantic.WithConfig(aiConfig),
			semantic.WithWorkers(cfg.Matching.Workers),
			semantic.WithLogger(o.logger),
		)
		if err != nil {
			provider.Close()
			backend.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *Service) newMatcher(logger *slog.Logger) (*taxonomy.Matcher, error) {
	tax := taxonomy.Default()
	if s.cfg.Taxonomy.File != "" {
		loaded, err := taxonomy.Load(s.cfg.Taxonomy.File)
		if err != nil {
			return nil, err
		}
		tax = loaded
	}
	mode, err := taxonomy.ParseMode(s.cfg.Taxonomy.Mode)
	if err != nil {
		return nil, err
	}
	return taxonomy.NewMatcher(tax,
		taxonomy.WithMode(mode),
		taxonomy.WithFuzzyThreshold(s.cfg.Taxonomy.FuzzyThreshold),
		taxonomy.WithNormalizer(s.normalizer),
		taxonomy.WithLogger(logger),
	)
}

// Close releases the provider and the store.
func (s *Service) Close() error {
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing embedding provider", "err", err)
		}
	}
	if err := s.stores.Backend.Close(); err != nil {
		s.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Stores returns the persistent stores.
func (s *Service) Stores() *badger.Stores {
	return s.stores
}

// Matcher returns the taxonomy matcher.
func (s *Service) Matcher() *taxonomy.Matcher {
	return s.matcher
}

// Resolver returns the geocoding resolver, nil when geocoding is disabled.
func (s *Service) Resolver() *location.Resolver {
	return s.resolver
}

// Mappings returns the column mapping of the input files.
func (s *Service) Mappings() source.Mappings {
	return s.mappings
}

// LoadListings reads the configured buyer and seller files.
func (s *Service) LoadListings(ctx context.Context) (buyers, sellers []*core.Listing, err error) {
	if s.cfg.Input.Buyers == "" || s.cfg.Input.Sellers == "" {
		return nil, nil, fmt.Errorf("%w: buyers and sellers are both required", ErrNoInput)
	}
	loader := source.NewLoader(source.WithLogger(s.logger))
	buyers, err = loader.LoadCSVFile(ctx, s.cfg.Input.Buyers, core.RoleBuyer, s.mappings.Buyer)
	if err != nil {
		return nil, nil, err
	}
	sellers, err = loader.LoadCSVFile(ctx, s.cfg.Input.Sellers, core.RoleSeller, s.mappings.Seller)
	if err != nil {
		return nil, nil, err
	}
	return buyers, sellers, nil
}

// NewEngine creates an engine bound to the service's stores and services.
// opts are applied after the defaults, so callers may override any of them.
func (s *Service) NewEngine(opts ...matching.Option) (*matching.Engine, error) {
	mc, err := s.cfg.MatchingConfig()
	if err != nil {
		return nil, err
	}
	dedup := matching.NewDeduplicator(
		matching.WithMatchStore(s.stores.Matches),
		matching.WithDedupLogger(s.logger),
	)
	defaults := []matching.Option{
		matching.WithNormalizer(s.normalizer),
		matching.WithDeduplicator(dedup),
		matching.WithCheckpoints(s.stores.Checkpoints),
		matching.WithLogger(s.logger),
	}
	if s.resolver != nil {
		defaults = append(defaults,
			matching.WithResolver(s.resolver),
			matching.WithGeocodeWorkers(s.cfg.Geocoding.Workers),
		)
	}
	if s.scorer != nil {
		defaults = append(defaults, matching.WithScorer(s.scorer))
	}
	return matching.NewEngine(mc, s.matcher, append(defaults, opts...)...)
}

// OpenExporters creates the configured sinks. The caller closes them.
func (s *Service) OpenExporters(ctx context.Context) ([]export.Exporter, error) {
	var out []export.Exporter
	if s.cfg.Output.CSV != "" {
		csv, err := export.CreateCSV(s.cfg.Output.CSV,
			export.WithExtraColumns(extraColumns(s.mappings.Buyer), extraColumns(s.mappings.Seller)),
			export.WithCSVLogger(s.logger),
		)
		if err != nil {
			return nil, err
		}
		out = append(out, csv)
	}
	if s.cfg.Output.PostgresDSN != "" {
		pg, err := export.NewPostgresExporter(ctx, s.cfg.Output.PostgresDSN,
			export.WithTable(s.cfg.Output.Table),
			export.WithPostgresLogger(s.logger),
		)
		if err != nil {
			closeAll(out)
			return nil, err
		}
		out = append(out, pg)
	}
	return out, nil
}

// Match runs the engine and writes the ranked matches to every configured
// sink. The result is returned even when a sink fails.
func (s *Service) Match(ctx context.Context, buyers, sellers []*core.Listing, opts ...matching.Option) (*matching.Result, error) {
	engine, err := s.NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	exporters, err := s.OpenExporters(ctx)
	if err != nil {
		return nil, err
	}

	result, runErr := engine.Run(ctx, buyers, sellers)
	if result == nil {
		closeAll(exporters)
		return nil, runErr
	}

	lookup := export.NewListingIndex(buyers, sellers)
	var errs []error
	for _, ex := range exporters {
		if err := ex.Export(context.WithoutCancel(ctx), result.Matches, lookup); err != nil {
			errs = append(errs, fmt.Errorf("export failed: %w", err))
		}
	}
	for _, ex := range exporters {
		if err := ex.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return result, errors.Join(append([]error{runErr}, errs...)...)
}

func extraColumns(m source.Mapping) []string {
	return slices.Sorted(maps.Keys(m.Extra))
}

func closeAll(exporters []export.Exporter) {
	for _, ex := range exporters {
		_ = ex.Close()
	}
}
