package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/storage"
)

// GeocodeCache implements storage.GeocodeCache for BadgerDB.
type GeocodeCache struct {
	backend *Backend
}

var _ storage.GeocodeCache = (*GeocodeCache)(nil)

// NewGeocodeCache creates a geocode cache on top of backend.
//
// Returns storage.GeocodeCache interface to enforce abstraction.
func NewGeocodeCache(backend *Backend) storage.GeocodeCache {
	return &GeocodeCache{backend: backend}
}

// GetGeocode returns the cached result for key or storage.ErrNotFound.
func (c *GeocodeCache) GetGeocode(ctx context.Context, key string) (*core.GeocodeResult, error) {
	var result *core.GeocodeResult
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		val, err := getValue(tx, makeGeocodeKey(key))
		if err != nil {
			return err
		}
		result, err = storage.UnmarshalGeocodeResult(val)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PutGeocode stores result under key. ResolvedAt is set when zero.
func (c *GeocodeCache) PutGeocode(ctx context.Context, key string, result *core.GeocodeResult) error {
	if result.ResolvedAt.IsZero() {
		result.ResolvedAt = time.Now().UTC()
	}
	return c.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeGeocodeKey(key), storage.MarshalGeocodeResult(result)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// CountGeocodes counts resolved and unresolved cache entries.
func (c *GeocodeCache) CountGeocodes(ctx context.Context) (resolved, unresolved int, err error) {
	err = c.backend.scanPrefix([]byte(geocodePrefix), true, func(_, value []byte) error {
		result, err := storage.UnmarshalGeocodeResult(value)
		if err != nil {
			return err
		}
		if result.Resolved {
			resolved++
		} else {
			unresolved++
		}
		return nil
	})
	return resolved, unresolved, err
}
