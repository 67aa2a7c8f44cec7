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

package core

import (
	"fmt"
	"math"
)

// ValidateListing validates a Listing according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Role must be valid (Buyer or Seller)
//
// NOT validated (input defects degrade to zero scores instead):
//   - Text fields (may all be empty)
//   - LocationRaw (may be empty or malformed)
func ValidateListing(listing *Listing) error {
	if listing == nil {
		return fmt.Errorf("%w: listing is nil", ErrInvalidListing)
	}

	if listing.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidListing, ErrEmptyID)
	}

	if err := ValidateRole(listing.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListing, err)
	}

	return nil
}

// ValidateMatch checks that a Match is fit for export.
//
// Validation rules:
//   - BuyerID and SellerID must not be empty
//   - every score must lie in [0,1]
//   - DistanceKm, when present, must be finite and non-negative
func ValidateMatch(match *Match) error {
	if match == nil {
		return fmt.Errorf("%w: match is nil", ErrInvalidMatch)
	}

	if match.BuyerID == "" || match.SellerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMatch, ErrEmptyID)
	}

	scores := []struct {
		name  string
		value float64
	}{
		{"location_score", match.LocationScore},
		{"taxonomy_score", match.TaxonomyScore},
		{"semantic_score", match.SemanticScore},
		{"composite_score", match.CompositeScore},
	}
	for _, s := range scores {
		if !IsValidScore(s.value) {
			return fmt.Errorf("%w: %w: %s=%v", ErrInvalidMatch, ErrScoreOutOfRange, s.name, s.value)
		}
	}

	if match.DistanceKm != nil {
		d := *match.DistanceKm
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return fmt.Errorf("%w: %w: %v", ErrInvalidMatch, ErrInvalidDistance, d)
		}
	}

	return nil
}

// ValidateRole validates that a Role has a valid value.
func ValidateRole(role Role) error {
	if role != RoleBuyer && role != RoleSeller {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, role)
	}
	return nil
}

// IsValidScore reports whether v is a number in [0,1].
func IsValidScore(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
