// Package taxonomy matches listing text against a static keyword to category
// table.
//
// A category matches a pair of texts only when both texts contain one of its
// synonyms. Synonyms are normalized with the same textnorm.Normalizer as the
// listing text, then found by substring containment (ModeExact), by a fuzzy
// partial ratio (ModeFuzzy) or by exact matching with a fuzzy fallback
// (ModeAuto).
package taxonomy
