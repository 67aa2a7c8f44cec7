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

package badger

import "github.com/poiesic/succession/storage"

// Stores bundles every store backed by one Backend.
type Stores struct {
	Backend     *Backend
	Geocodes    storage.GeocodeCache
	Embeddings  storage.EmbeddingCache
	Matches     storage.MatchRepository
	Checkpoints storage.CheckpointRepository
}

// NewStores creates all stores on top of an open backend.
func NewStores(backend *Backend) *Stores {
	return &Stores{
		Backend:     backend,
		Geocodes:    NewGeocodeCache(backend),
		Embeddings:  NewEmbeddingCache(backend),
		Matches:     NewMatchRepository(backend),
		Checkpoints: NewCheckpointRepository(backend),
	}
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must close the returned Backend when done.
func NewMemoryStores() (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return NewStores(backend), nil
}
