package semantic

import "errors"

// ErrEmbedderRequired is returned by NewScorer without an embedder.
var ErrEmbedderRequired = errors.New("embedder required")

// ErrVectorCountMismatch is returned when the provider answers a batch with
// the wrong number of vectors.
var ErrVectorCountMismatch = errors.New("embedding count mismatch")
