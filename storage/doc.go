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

// Package storage provides the persistence abstraction for succession.
//
// The matching engine keeps three kinds of state across runs: the geocode
// cache, the embedding cache and the store of emitted matches (which doubles
// as the deduplicator seed). Each is an interface here so the engine never
// depends on a concrete backend and tests can substitute in-memory storage.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return these interfaces:
//
//	cache, err := badger.NewGeocodeCache(backend)  // storage.GeocodeCache
//
// # Lifecycle
//
// Stores are opened at run start and closed at run end by the owner of the
// backend. Nothing in this package holds global state.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores()
//
// # Serialization
//
// Values are encoded with mus-go primitives (see serialization.go). Floats
// are stored as their IEEE-754 bit patterns so round trips are exact.
package storage
