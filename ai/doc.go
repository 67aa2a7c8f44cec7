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

// Package ai provides abstractions for the embedding provider used by the
// semantic scorer.
//
// The matcher only needs text vectors, so the package defines two interfaces:
//
//   - Embedder: generates vector embeddings from text
//   - Provider: owns an Embedder together with its configuration
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: deterministic test doubles
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behavior and inspect call counts.
//
// # Model identity
//
// Config.Validate rejects embedding models missing from KnownModels unless
// AllowUnknownModel is set, so a typo in the model name fails before any
// listing is encoded. Config.CacheVersion keys the embedding cache.
//
//	cfg := ai.NewConfig(ai.WithEmbeddingModel("bge-m3"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, texts)
package ai
