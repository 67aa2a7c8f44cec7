package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/succession/ai"
	"github.com/poiesic/succession/batch"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/storage"
)

// Scorer encodes listing text into L2-normalized vectors. Provider calls are
// batched and run on a worker pool; vectors are cached per model version and
// text so a text is never encoded twice.
type Scorer struct {
	embedder   ai.Embedder
	cache      storage.EmbeddingCache
	version    string
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	workers    int
	logger     *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithCache stores vectors in cache. Without a cache every Encode call asks
// the provider.
func WithCache(cache storage.EmbeddingCache) Option {
	return func(s *Scorer) {
		s.cache = cache
	}
}

// WithModelVersion sets the version mixed into cache keys.
func WithModelVersion(version string) Option {
	return func(s *Scorer) {
		s.version = version
	}
}

// WithBatchSize sets the number of texts per provider call.
func WithBatchSize(n int) Option {
	return func(s *Scorer) {
		s.batchSize = max(1, n)
	}
}

// WithRetries sets the attempts per batch and the base backoff delay.
func WithRetries(maxAttempts int, delay time.Duration) Option {
	return func(s *Scorer) {
		s.maxRetries = max(1, maxAttempts)
		s.retryDelay = delay
	}
}

// WithWorkers sets how many batches are encoded concurrently.
func WithWorkers(n int) Option {
	return func(s *Scorer) {
		s.workers = max(1, n)
	}
}

// WithConfig applies the batch size, retry budget and cache version of an
// ai.Config.
func WithConfig(cfg *ai.Config) Option {
	return func(s *Scorer) {
		WithModelVersion(cfg.CacheVersion())(s)
		WithBatchSize(cfg.BatchSize)(s)
		WithRetries(cfg.MaxRetries, cfg.RetryDelay)(s)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScorer creates a Scorer around embedder.
func NewScorer(embedder ai.Embedder, opts ...Option) (*Scorer, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	s := &Scorer{
		embedder:   embedder,
		batchSize:  32,
		maxRetries: 3,
		retryDelay: time.Second,
		workers:    4,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "semantic-scorer")
	return s, nil
}

// CacheKey identifies the vector of text under a model version.
func CacheKey(version, text string) core.ID {
	return core.IDFromContent(version + "\x00" + text)
}

// EncodeStats summarizes one Encode call. Counts are per distinct text.
type EncodeStats struct {
	Texts      int // distinct non-empty texts
	Cached     int // served from the cache
	Encoded    int // produced by the provider
	Failed     int // left without a vector after retries
	Unresolved int // failed in an earlier run, not asked again
	Skipped    int // listings with empty normalized text
}

// Encode sets Embedding on every listing with non-empty NormalizedText.
// Listings sharing a text share one vector. Texts whose batch still fails
// after retries are left without embedding, logged and cached as
// unresolved so later runs do not ask the provider again. Only cancellation
// and pool errors are returned.
func (s *Scorer) Encode(ctx context.Context, listings []*core.Listing) (EncodeStats, error) {
	var stats EncodeStats

	byText := make(map[string][]*core.Listing)
	for _, l := range listings {
		if l.NormalizedText == "" {
			l.Embedding = nil
			stats.Skipped++
			continue
		}
		byText[l.NormalizedText] = append(byText[l.NormalizedText], l)
	}
	texts := make([]string, 0, len(byText))
	for t := range byText {
		texts = append(texts, t)
	}
	slices.Sort(texts)
	stats.Texts = len(texts)

	vectors := make(map[string][]float32, len(texts))
	missing, unresolved := s.fromCache(ctx, texts, vectors)
	stats.Cached = len(texts) - len(missing) - unresolved
	stats.Unresolved = unresolved

	if len(missing) > 0 {
		encoded, failed, err := s.encodeMissing(ctx, missing, vectors)
		stats.Encoded, stats.Failed = encoded, failed
		if err != nil {
			return stats, err
		}
	}

	for text, group := range byText {
		v := vectors[text]
		for _, l := range group {
			l.Embedding = v
		}
	}

	s.logger.Info("embeddings ready",
		"texts", stats.Texts, "cached", stats.Cached, "encoded", stats.Encoded,
		"failed", stats.Failed, "unresolved", stats.Unresolved, "skipped", stats.Skipped)
	return stats, ctx.Err()
}

// fromCache fills vectors from the cache and returns the texts it lacks.
// An empty cached vector marks a text the provider failed on.
func (s *Scorer) fromCache(ctx context.Context, texts []string, vectors map[string][]float32) (missing []string, unresolved int) {
	if s.cache == nil {
		return texts, 0
	}
	for _, t := range texts {
		v, err := s.cache.GetEmbedding(ctx, CacheKey(s.version, t))
		switch {
		case err != nil:
			missing = append(missing, t)
		case len(v) == 0:
			unresolved++
		default:
			vectors[t] = v
		}
	}
	return missing, unresolved
}

// markUnresolved caches an empty vector for every text of a failed batch.
func (s *Scorer) markUnresolved(ctx context.Context, texts []string) {
	if s.cache == nil {
		return
	}
	entries := make(map[core.ID][]float32, len(texts))
	for _, t := range texts {
		entries[CacheKey(s.version, t)] = []float32{}
	}
	if err := s.cache.PutEmbeddings(ctx, entries); err != nil {
		s.logger.Warn("failed to cache unresolved embeddings", "texts", len(texts), "err", err)
	}
}

func (s *Scorer) encodeMissing(ctx context.Context, texts []string, vectors map[string][]float32) (encoded, failed int, err error) {
	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create embedding pool: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for chunk := range slices.Chunk(texts, s.batchSize) {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			result, err := s.encodeBatch(ctx, chunk)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("embedding batch failed, caching as unresolved", "texts", len(chunk), "err", err)
				s.markUnresolved(ctx, chunk)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed += len(chunk)
				return
			}
			for i, t := range chunk {
				vectors[t] = result[i]
			}
			encoded += len(chunk)
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return encoded, failed, fmt.Errorf("failed to submit embedding batch: %w", submitErr)
		}
	}
	wg.Wait()
	return encoded, failed, nil
}

// encodeBatch asks the provider for one batch, normalizes the vectors and
// caches them.
func (s *Scorer) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var raw [][]float32
	err := batch.RetryWithBackoff(ctx, func() error {
		var err error
		raw, err = s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(raw) != len(texts) {
			return fmt.Errorf("%w: expected %d, got %d", ErrVectorCountMismatch, len(texts), len(raw))
		}
		return nil
	}, s.maxRetries, s.retryDelay)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(raw))
	for i, v := range raw {
		out[i] = NormalizeVector(v)
	}

	if s.cache != nil {
		entries := make(map[core.ID][]float32, len(texts))
		for i, t := range texts {
			if len(out[i]) > 0 {
				entries[CacheKey(s.version, t)] = out[i]
			}
		}
		if err := s.cache.PutEmbeddings(ctx, entries); err != nil {
			s.logger.Warn("failed to cache embeddings", "texts", len(texts), "err", err)
		}
	}
	return out, nil
}
