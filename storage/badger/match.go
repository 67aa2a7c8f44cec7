package badger

import (
	"context"
	"errors"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/storage"
)

// MatchRepository implements storage.MatchRepository for BadgerDB.
type MatchRepository struct {
	backend *Backend
}

var _ storage.MatchRepository = (*MatchRepository)(nil)

// NewMatchRepository creates a match store on top of backend.
//
// Returns storage.MatchRepository interface to enforce abstraction.
func NewMatchRepository(backend *Backend) storage.MatchRepository {
	return &MatchRepository{backend: backend}
}

// SaveMatches stores matches. Pairs that are already stored keep their
// original record, so a match is never rewritten once persisted.
func (r *MatchRepository) SaveMatches(ctx context.Context, matches ...*core.Match) error {
	for chunk := range slices.Chunk(matches, writeChunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, m := range chunk {
				key := makeMatchKey(m.Key())
				_, err := tx.Get(key)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				if err := tx.Set(key, storage.MarshalMatch(m)); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// HasMatch reports whether key has been stored.
func (r *MatchRepository) HasMatch(ctx context.Context, key core.PairKey) (bool, error) {
	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeMatchKey(key))
		if err == nil {
			found = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}, false)
	return found, err
}

// PairKeys returns the keys of all stored matches without decoding values.
func (r *MatchRepository) PairKeys(ctx context.Context) ([]core.PairKey, error) {
	var keys []core.PairKey
	err := r.backend.scanPrefix([]byte(matchPrefix), false, func(key, _ []byte) error {
		pk, err := pairKeyFromMatchKey(key)
		if err != nil {
			return err
		}
		keys = append(keys, pk)
		return nil
	})
	return keys, err
}

// Matches returns all stored matches in key order.
func (r *MatchRepository) Matches(ctx context.Context) ([]*core.Match, error) {
	var matches []*core.Match
	err := r.backend.scanPrefix([]byte(matchPrefix), true, func(_, value []byte) error {
		m, err := storage.UnmarshalMatch(value)
		if err != nil {
			return err
		}
		matches = append(matches, m)
		return nil
	})
	return matches, err
}

// CountMatches returns the number of stored matches.
func (r *MatchRepository) CountMatches(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.scanPrefix([]byte(matchPrefix), false, func(_, _ []byte) error {
		count++
		return nil
	})
	return count, err
}
