package badger

import (
	"context"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/storage"
)

// EmbeddingCache implements storage.EmbeddingCache for BadgerDB.
type EmbeddingCache struct {
	backend *Backend
}

var _ storage.EmbeddingCache = (*EmbeddingCache)(nil)

// NewEmbeddingCache creates an embedding cache on top of backend.
func NewEmbeddingCache(backend *Backend) storage.EmbeddingCache {
	return &EmbeddingCache{backend: backend}
}

// GetEmbedding returns the vector stored under key or storage.ErrNotFound.
func (c *EmbeddingCache) GetEmbedding(ctx context.Context, key core.ID) ([]float32, error) {
	var vector []float32
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		val, err := getValue(tx, makeEmbeddingKey(key))
		if err != nil {
			return err
		}
		vector, err = storage.UnmarshalVector(val)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// PutEmbeddings stores vectors, writing at most writeChunkSize per transaction.
func (c *EmbeddingCache) PutEmbeddings(ctx context.Context, vectors map[core.ID][]float32) error {
	keys := make([]core.ID, 0, len(vectors))
	for k := range vectors {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for chunk := range slices.Chunk(keys, writeChunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.backend.WithTx(func(tx *badger.Txn) error {
			for _, k := range chunk {
				if err := tx.Set(makeEmbeddingKey(k), storage.MarshalVector(vectors[k])); err != nil {
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
