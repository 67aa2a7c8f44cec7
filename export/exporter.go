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

package export

import (
	"context"
	"fmt"
	"strconv"

	"github.com/poiesic/succession/core"
)

// Exporter writes ranked matches to a sink.
type Exporter interface {
	// Export validates every match and writes them in the given order.
	// A malformed match aborts the export before anything is written.
	Export(ctx context.Context, matches []*core.Match, lookup Lookup) error

	// Close releases the sink.
	Close() error
}

// Lookup resolves listing ids to the listings the matches were built from,
// so exports can carry identifying fields next to the ids.
type Lookup interface {
	Buyer(id string) *core.Listing
	Seller(id string) *core.Listing
}

// ListingIndex is a map backed Lookup.
type ListingIndex struct {
	buyers  map[string]*core.Listing
	sellers map[string]*core.Listing
}

var _ Lookup = (*ListingIndex)(nil)

// NewListingIndex indexes listings by id. The first listing wins on
// duplicate ids, as in a matching run.
func NewListingIndex(buyers, sellers []*core.Listing) *ListingIndex {
	idx := &ListingIndex{
		buyers:  make(map[string]*core.Listing, len(buyers)),
		sellers: make(map[string]*core.Listing, len(sellers)),
	}
	for _, l := range buyers {
		if _, ok := idx.buyers[l.ID]; !ok {
			idx.buyers[l.ID] = l
		}
	}
	for _, l := range sellers {
		if _, ok := idx.sellers[l.ID]; !ok {
			idx.sellers[l.ID] = l
		}
	}
	return idx
}

// Buyer returns the buyer with id, or nil.
func (i *ListingIndex) Buyer(id string) *core.Listing {
	if i == nil {
		return nil
	}
	return i.buyers[id]
}

// Seller returns the seller with id, or nil.
func (i *ListingIndex) Seller(id string) *core.Listing {
	if i == nil {
		return nil
	}
	return i.sellers[id]
}

// validateAll checks every record up front so a bad record never leaves a
// half written export behind.
func validateAll(matches []*core.Match) error {
	for i, m := range matches {
		if err := core.ValidateMatch(m); err != nil {
			id := "<nil>"
			if m != nil {
				id = m.BuyerID + "/" + m.SellerID
			}
			return fmt.Errorf("%w: record %d (%s): %w", ErrInvalidRecord, i, id, err)
		}
	}
	return nil
}

// FormatScore renders a score with fixed precision so identical runs
// produce identical files.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// FormatDistance renders a distance in km, or "" when unknown.
func FormatDistance(d *float64) string {
	if d == nil {
		return ""
	}
	return strconv.FormatFloat(*d, 'f', 2, 64)
}
