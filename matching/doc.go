// Package matching scores buyer listings against seller listings.
//
// An Engine prepares both sides (text normalization, location parsing,
// geocoding, embeddings, taxonomy categories), narrows each buyer's sellers
// through a spatial index and hands every candidate pair to an Aggregator,
// which combines the location, taxonomy and semantic signals into one
// composite score. Emitted pairs pass a Deduplicator seeded from the match
// store and are finally ordered by Rank.
//
// Results do not depend on the number of workers: each buyer's matches are
// collected separately and merged in input order before ranking.
package matching
