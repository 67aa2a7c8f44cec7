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

package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownModel is returned by Validate for a model outside KnownModels.
var ErrUnknownModel = errors.New("ai config: unknown embedding model")

// KnownModels lists the embedding models whose output has been checked
// against the matcher. The map value is the vector dimension reported by
// the model, 0 when it depends on the deployment.
var KnownModels = map[string]int{
	"embeddinggemma":                        768,
	"nomic-embed-text":                      768,
	"mxbai-embed-large":                     1024,
	"bge-m3":                                1024,
	"jina/jina-embeddings-v2-base-de":       768,
	"paraphrase-multilingual-minilm-l12-v2": 384,
	"paraphrase-multilingual-mpnet-base-v2": 768,
	"distiluse-base-multilingual-cased-v2":  512,
	"text-embedding-3-small":                1536,
	"text-embedding-3-large":                3072,
}

// Config holds configuration for the embedding provider.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	EmbeddingModel string

	// ModelVersion pins a revision of EmbeddingModel. Cached vectors are keyed
	// by model and version, so bumping it invalidates the embedding cache.
	ModelVersion string

	// BatchSize is the number of texts sent per provider call.
	// Default: 32
	BatchSize int

	// MaxRetries bounds provider calls per batch.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base backoff between retries.
	// Default: 1s
	RetryDelay time.Duration

	// AllowUnknownModel accepts models missing from KnownModels.
	AllowUnknownModel bool
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithModelVersion sets the model revision used in cache keys.
func WithModelVersion(version string) ConfigOption {
	return func(c *Config) {
		c.ModelVersion = version
	}
}

// WithBatchSize sets the number of texts per provider call.
func WithBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithRetries sets the retry budget and base delay for provider calls.
func WithRetries(maxRetries int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithAllowUnknownModel disables the KnownModels check.
func WithAllowUnknownModel(allow bool) ConfigOption {
	return func(c *Config) {
		c.AllowUnknownModel = allow
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible service.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "embeddinggemma",
		BatchSize:      32,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithEmbeddingModel("bge-m3"),
//	    WithBatchSize(64),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc), and
// lowercases the model identifier.
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/") + "/v1"
	}
	c.EmbeddingModel = strings.ToLower(strings.TrimSpace(c.EmbeddingModel))
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if _, ok := KnownModels[c.EmbeddingModel]; !ok && !c.AllowUnknownModel {
		return fmt.Errorf("%w: %q", ErrUnknownModel, c.EmbeddingModel)
	}
	if c.BatchSize < 1 {
		return errors.New("ai config: BatchSize must be positive")
	}
	if c.MaxRetries < 1 {
		return errors.New("ai config: MaxRetries must be positive")
	}
	if c.RetryDelay < 0 {
		return errors.New("ai config: RetryDelay must not be negative")
	}
	return nil
}

// CacheVersion identifies the vectors this configuration produces.
// Embeddings cached under one CacheVersion are never served for another.
func (c *Config) CacheVersion() string {
	if c.ModelVersion == "" {
		return c.EmbeddingModel
	}
	return c.EmbeddingModel + "@" + c.ModelVersion
}
