package taxonomy

import "errors"

var (
	// ErrEmptyTaxonomy is returned when a taxonomy defines no categories.
	ErrEmptyTaxonomy = errors.New("taxonomy has no categories")

	// ErrInvalidCategory is returned for a category without id or synonyms.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrDuplicateCategory is returned when two categories share an id.
	ErrDuplicateCategory = errors.New("duplicate category id")

	// ErrInvalidMode is returned when parsing an unknown matching mode.
	ErrInvalidMode = errors.New("invalid taxonomy matching mode")

	// ErrInvalidThreshold is returned for a fuzzy threshold outside 0..100.
	ErrInvalidThreshold = errors.New("fuzzy threshold must be between 0 and 100")
)
