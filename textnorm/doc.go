// Package textnorm normalizes listing text before taxonomy matching and
// embedding. Normalization is deterministic and performs no I/O.
package textnorm
