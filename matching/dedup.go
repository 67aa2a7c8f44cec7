package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/storage"
)

// Deduplicator remembers every (buyer id, seller id) pair already reported.
// Keys are built from ids only, so edited listing text never makes a stored
// pair new again. It is safe for concurrent use.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[core.PairKey]struct{}
	store  storage.MatchRepository
	logger *slog.Logger
}

// DedupOption configures a Deduplicator.
type DedupOption func(*Deduplicator)

// WithMatchStore persists flushed matches to store and seeds from it.
func WithMatchStore(store storage.MatchRepository) DedupOption {
	return func(d *Deduplicator) {
		d.store = store
	}
}

// WithDedupLogger sets a custom logger.
func WithDedupLogger(logger *slog.Logger) DedupOption {
	return func(d *Deduplicator) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDeduplicator creates an empty Deduplicator. Without a match store it
// only remembers pairs for the lifetime of the process.
func NewDeduplicator(opts ...DedupOption) *Deduplicator {
	d := &Deduplicator{
		seen:   make(map[core.PairKey]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "deduplicator")
	return d
}

// Seed loads every pair key held by the match store and returns how many
// were new to the deduplicator.
func (d *Deduplicator) Seed(ctx context.Context) (int, error) {
	if d.store == nil {
		return 0, nil
	}
	keys, err := d.store.PairKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load stored pairs: %w", err)
	}
	added := d.SeedKeys(keys...)
	d.logger.Info("seeded from match store", "stored", len(keys), "added", added)
	return added, nil
}

// SeedKeys registers keys as already reported and returns how many were new.
func (d *Deduplicator) SeedKeys(keys ...core.PairKey) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	added := 0
	for _, k := range keys {
		if _, ok := d.seen[k]; !ok {
			d.seen[k] = struct{}{}
			added++
		}
	}
	return added
}

// IsDuplicate reports whether key has been registered or seeded.
func (d *Deduplicator) IsDuplicate(key core.PairKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

// Register marks key as reported. It returns false when key was already
// known; the check and the insert happen under one lock.
func (d *Deduplicator) Register(key core.PairKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Len returns the number of known pairs.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Flush persists matches to the match store so later runs are seeded with
// them. It is a no-op without a store.
func (d *Deduplicator) Flush(ctx context.Context, matches []*core.Match) error {
	if d.store == nil || len(matches) == 0 {
		return nil
	}
	if err := d.store.SaveMatches(ctx, matches...); err != nil {
		return fmt.Errorf("failed to persist matches: %w", err)
	}
	d.logger.Debug("persisted matches", "count", len(matches))
	return nil
}
