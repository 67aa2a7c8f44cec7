package storage

import (
	"context"

	"github.com/poiesic/succession/core"
)

// GeocodeCache memoizes geocoding lookups keyed by folded location name.
// Unresolved lookups are stored as well so the provider is never asked twice.
// Implementations must be thread-safe and support concurrent access.
type GeocodeCache interface {
	// GetGeocode returns the cached result for key.
	// Returns ErrNotFound if the key has never been looked up.
	GetGeocode(ctx context.Context, key string) (*core.GeocodeResult, error)

	// PutGeocode stores the result for key, replacing any previous entry.
	PutGeocode(ctx context.Context, key string, result *core.GeocodeResult) error

	// CountGeocodes returns the number of resolved and unresolved entries.
	CountGeocodes(ctx context.Context) (resolved, unresolved int, err error)
}

// EmbeddingCache stores normalized embedding vectors keyed by a content ID
// derived from (model version, text). An empty vector marks a text the
// provider failed on.
type EmbeddingCache interface {
	// GetEmbedding returns the cached vector for key.
	// Returns ErrNotFound if no vector is stored.
	GetEmbedding(ctx context.Context, key core.ID) ([]float32, error)

	// PutEmbeddings stores several vectors in one transaction.
	PutEmbeddings(ctx context.Context, vectors map[core.ID][]float32) error
}

// MatchRepository persists emitted matches. Its pair keys seed the
// deduplicator so later runs never report a stored pair again.
type MatchRepository interface {
	// SaveMatches stores matches keyed by (buyer id, seller id).
	// An already stored pair is left untouched.
	SaveMatches(ctx context.Context, matches ...*core.Match) error

	// HasMatch reports whether a match for key has been stored.
	HasMatch(ctx context.Context, key core.PairKey) (bool, error)

	// PairKeys returns the keys of all stored matches in key order.
	PairKeys(ctx context.Context) ([]core.PairKey, error)

	// Matches returns all stored matches in key order.
	Matches(ctx context.Context) ([]*core.Match, error)

	// CountMatches returns the number of stored matches.
	CountMatches(ctx context.Context) (int, error)
}

// CheckpointRepository stores progress markers for long running jobs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, setting UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint with the given name.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error)
}
