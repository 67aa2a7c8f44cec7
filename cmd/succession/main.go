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

package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/succession"
	"github.com/poiesic/succession/config"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/export"
	"github.com/poiesic/succession/location"
	"github.com/poiesic/succession/matching"
	"github.com/poiesic/succession/storage/badger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "succession",
		Usage: "Match business buyers with sellers for succession",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML run configuration",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Read SUCCESSION_* variables from this file",
				Value: ".env",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "match",
				Usage:  "Match buyers against sellers and export new matches",
				Action: matchCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:  "buyers",
						Usage: "Buyer listings CSV",
					},
					&cli.StringFlag{
						Name:  "sellers",
						Usage: "Seller listings CSV",
					},
					&cli.StringFlag{
						Name:  "mapping",
						Usage: "YAML column mapping for the listing files",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write matches to this CSV file",
					},
					&cli.StringFlag{
						Name:  "postgres-dsn",
						Usage: "Also write matches to this PostgreSQL database",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum composite score of a match",
					},
					&cli.Float64Flag{
						Name:  "max-distance",
						Usage: "Reject pairs further apart than this many km (0 disables)",
					},
					&cli.Float64Flag{
						Name:  "radius",
						Usage: "Only compare sellers within this many km of a buyer (0 disables)",
					},
					&cli.IntFlag{
						Name:  "candidates",
						Usage: "Only compare the K nearest sellers of a buyer (0 disables)",
					},
					&cli.IntFlag{
						Name:  "max-per-buyer",
						Usage: "Keep at most N matches per buyer (0 keeps all)",
					},
					&cli.StringFlag{
						Name:  "taxonomy-mode",
						Usage: "Category matching mode (exact, fuzzy, auto)",
					},
					&cli.StringFlag{
						Name:  "taxonomy",
						Usage: "YAML taxonomy file replacing the built-in categories",
					},
					&cli.BoolFlag{
						Name:  "require-category",
						Usage: "Only match pairs that share a category",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent workers",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
					&cli.BoolFlag{
						Name:  "no-embeddings",
						Usage: "Skip the semantic signal",
					},
					&cli.BoolFlag{
						Name:  "no-geocoding",
						Usage: "Skip geocoding; all sellers are compared with every buyer",
					},
					&cli.StringFlag{
						Name:  "run-id",
						Usage: "Fix the run id instead of generating one",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N buyers",
						Value: 100,
					},
				},
			},
			{
				Name:   "geocode",
				Usage:  "Warm the geocode cache with every location in the listing files",
				Action: geocodeCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:  "buyers",
						Usage: "Buyer listings CSV",
					},
					&cli.StringFlag{
						Name:  "sellers",
						Usage: "Seller listings CSV",
					},
					&cli.StringFlag{
						Name:  "mapping",
						Usage: "YAML column mapping for the listing files",
					},
					&cli.StringFlag{
						Name:  "nominatim-url",
						Usage: "Nominatim base URL",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent lookups",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Import previously reported matches so they are never reported again",
				Action: seedCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringSliceFlag{
						Name:     "from",
						Aliases:  []string{"f"},
						Usage:    "Match CSV file written by an earlier run (repeatable)",
						Required: true,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show what the store holds",
				Action: statsCommand,
				Flags: []cli.Flag{
					dbFlag(),
				},
			},
		},
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db",
		Aliases: []string{"d"},
		Usage:   "Path to BadgerDB database directory",
	}
}

// loadConfig layers the config file, the environment and the command flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	lookup, err := config.Environment(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	applyFlags(c, cfg)
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	setString(c, "db", &cfg.Store)
	setString(c, "buyers", &cfg.Input.Buyers)
	setString(c, "sellers", &cfg.Input.Sellers)
	setString(c, "mapping", &cfg.Input.Mapping)
	setString(c, "output", &cfg.Output.CSV)
	setString(c, "postgres-dsn", &cfg.Output.PostgresDSN)
	setString(c, "taxonomy", &cfg.Taxonomy.File)
	setString(c, "taxonomy-mode", &cfg.Taxonomy.Mode)
	setString(c, "embedding-host", &cfg.Embedding.Host)
	setString(c, "embedding-model", &cfg.Embedding.Model)
	setString(c, "nominatim-url", &cfg.Geocoding.BaseURL)

	if c.IsSet("threshold") {
		cfg.Matching.Threshold = c.Float64("threshold")
	}
	if c.IsSet("max-distance") {
		cfg.Matching.MaxDistanceKm = c.Float64("max-distance")
	}
	if c.IsSet("radius") {
		cfg.Matching.SearchRadiusKm = c.Float64("radius")
	}
	if c.IsSet("candidates") {
		cfg.Matching.CandidateK = c.Int("candidates")
	}
	if c.IsSet("max-per-buyer") {
		cfg.Matching.MaxMatchesPerBuyer = c.Int("max-per-buyer")
	}
	if c.IsSet("require-category") {
		cfg.Matching.RequireTaxonomyOverlap = c.Bool("require-category")
	}
	if c.IsSet("workers") {
		cfg.Matching.Workers = c.Int("workers")
		cfg.Geocoding.Workers = c.Int("workers")
	}
	if c.Bool("no-embeddings") {
		cfg.Embedding.Enabled = false
	}
	if c.Bool("no-geocoding") {
		cfg.Geocoding.Enabled = false
	}
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func matchCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := succession.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}
	defer svc.Close()

	buyers, sellers, err := svc.LoadListings(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.Store)
	fmt.Fprintf(os.Stderr, "Buyers: %s (%d)\n", cfg.Input.Buyers, len(buyers))
	fmt.Fprintf(os.Stderr, "Sellers: %s (%d)\n", cfg.Input.Sellers, len(sellers))
	if cfg.Embedding.Enabled {
		fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.Embedding.Model)
	}
	fmt.Fprintln(os.Stderr)

	opts := []matching.Option{matching.WithProgress(os.Stderr, c.Int("report-interval"))}
	if c.IsSet("run-id") {
		opts = append(opts, matching.WithRunID(c.String("run-id")))
	}
	result, err := svc.Match(ctx, buyers, sellers, opts...)
	if result != nil {
		printSummary(os.Stderr, result)
	}
	if err != nil {
		return fmt.Errorf("matching failed: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, r *matching.Result) {
	s := r.Stats
	fmt.Fprintf(w, "Run: %s\n", r.RunID)
	fmt.Fprintf(w, "Listings: %d buyers, %d sellers, %d duplicate ids dropped\n", s.Buyers, s.Sellers, s.DuplicateListings)
	fmt.Fprintf(w, "Geocoding: %d names, %d resolved, %d unresolved\n", s.Geocodes.Names, s.Geocodes.Resolved, s.Geocodes.Unresolved)
	fmt.Fprintf(w, "Embeddings: %d texts, %d cached, %d encoded, %d failed, %d unresolved\n",
		s.Embeddings.Texts, s.Embeddings.Cached, s.Embeddings.Encoded, s.Embeddings.Failed, s.Embeddings.Unresolved)
	fmt.Fprintf(w, "Pairs: %d evaluated, %d already reported\n", s.PairsEvaluated, s.DuplicatePairs)
	fmt.Fprintf(w, "Rejected: %d below threshold, %d too far, %d without shared category\n", s.RejectedThreshold, s.RejectedDistance, s.RejectedTaxonomy)
	fmt.Fprintf(w, "Matches: %d (%d dropped by the per-buyer cap)\n", len(r.Matches), s.Capped)
}

func geocodeCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Embedding.Enabled = false
	if !cfg.Geocoding.Enabled {
		return errors.New("geocoding is disabled")
	}
	svc, err := succession.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}
	defer svc.Close()

	buyers, sellers, err := svc.LoadListings(ctx)
	if err != nil {
		return err
	}
	names := locationNames(append(buyers, sellers...))

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.Store)
	fmt.Fprintf(os.Stderr, "Nominatim: %s\n", cfg.Geocoding.BaseURL)
	fmt.Fprintf(os.Stderr, "Location names: %d\n", len(names))
	fmt.Fprintln(os.Stderr)

	stats, err := svc.Resolver().Warm(ctx, names, cfg.Geocoding.Workers)
	fmt.Fprintf(os.Stderr, "Resolved: %d, unresolved: %d\n", stats.Resolved, stats.Unresolved)
	if err != nil {
		return fmt.Errorf("geocoding failed: %w", err)
	}
	return nil
}

func locationNames(listings []*core.Listing) []string {
	var parser location.Parser
	var names []string
	for _, l := range listings {
		names = append(names, location.LocationNames(parser.Parse(l.LocationRaw))...)
	}
	return names
}

func openStores(c *cli.Context) (*badger.Stores, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.Store == "" {
		return nil, fmt.Errorf("database path is required")
	}
	backend, err := badger.OpenBackend(cfg.Store, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return badger.NewStores(backend), nil
}

func seedCommand(c *cli.Context) error {
	ctx := c.Context

	stores, err := openStores(c)
	if err != nil {
		return err
	}
	defer stores.Backend.Close()

	before, err := stores.Matches.CountMatches(ctx)
	if err != nil {
		return err
	}
	read := 0
	for _, path := range c.StringSlice("from") {
		matches, err := readMatches(path)
		if err != nil {
			return err
		}
		if err := stores.Matches.SaveMatches(ctx, matches...); err != nil {
			return fmt.Errorf("failed to save matches from %s: %w", path, err)
		}
		read += len(matches)
		slog.Info("seeded matches", "file", path, "matches", len(matches))
	}
	after, err := stores.Matches.CountMatches(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Read %d matches, %d new pairs, %d pairs stored\n", read, after-before, after)
	return nil
}

func readMatches(path string) ([]*core.Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	matches, err := export.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return matches, nil
}

func statsCommand(c *cli.Context) error {
	ctx := c.Context

	stores, err := openStores(c)
	if err != nil {
		return err
	}
	defer stores.Backend.Close()

	resolved, unresolved, err := stores.Geocodes.CountGeocodes(ctx)
	if err != nil {
		return err
	}
	matches, err := stores.Matches.CountMatches(ctx)
	if err != nil {
		return err
	}
	cp, err := stores.Checkpoints.LoadCheckpoint(ctx, matching.CheckpointName)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Geocodes: %d resolved, %d unresolved\n", resolved, unresolved)
	fmt.Fprintf(w, "Matches: %d\n", matches)
	if cp == nil {
		fmt.Fprintln(w, "Last run: none")
		return nil
	}
	fmt.Fprintf(w, "Last run: %s, %d buyers processed, updated %s\n", cp.RunID, cp.Processed, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
