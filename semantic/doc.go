// Package semantic scores the textual similarity of listings.
//
// Scorer.Encode turns every listing's normalized text into an L2-normalized
// embedding, so cosine similarity is a dot product. Similarity clips cosine
// to [0, 1]; listings without an embedding score 0.
package semantic
