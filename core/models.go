package core

import (
	"encoding/binary"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a compact identifier used for content-addressed cache keys.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Role identifies which side of the market a listing belongs to.
type Role int

const (
	// RoleBuyer is a request from someone looking to acquire a business.
	RoleBuyer Role = iota + 1
	// RoleSeller is an offering of a business for sale.
	RoleSeller
)

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	default:
		return "unknown"
	}
}

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinate is finite and inside the WGS84 range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// StringSet is an unordered set of strings.
type StringSet map[string]struct{}

// NewStringSet returns a set holding the given items. Empty strings are skipped.
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts item unless it is empty.
func (s StringSet) Add(item string) {
	if item == "" {
		return
	}
	s[item] = struct{}{}
}

// Has reports whether item is in the set.
func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Len returns the number of items. A nil set has length zero.
func (s StringSet) Len() int {
	return len(s)
}

// Sorted returns the items in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	slices.Sort(out)
	return out
}

// Intersect returns the items present in both sets.
func (s StringSet) Intersect(other StringSet) StringSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(StringSet)
	for item := range small {
		if large.Has(item) {
			out[item] = struct{}{}
		}
	}
	return out
}

// ParsedLocation is a location string split into federal states, cities and regions.
// Anywhere is set when the string declares no geographic restriction
// ("bundesweit", "deutschland"); such markers are not added to the sets.
type ParsedLocation struct {
	States   StringSet
	Cities   StringSet
	Regions  StringSet
	Anywhere bool
}

// NewParsedLocation returns a location with empty, non-nil sets.
func NewParsedLocation() ParsedLocation {
	return ParsedLocation{
		States:  make(StringSet),
		Cities:  make(StringSet),
		Regions: make(StringSet),
	}
}

// Tokens returns the union of states, cities and regions.
func (p ParsedLocation) Tokens() StringSet {
	out := make(StringSet, p.States.Len()+p.Cities.Len()+p.Regions.Len())
	for _, set := range []StringSet{p.States, p.Cities, p.Regions} {
		for item := range set {
			out[item] = struct{}{}
		}
	}
	return out
}

// Len returns the number of distinct tokens.
func (p ParsedLocation) Len() int {
	return p.Tokens().Len()
}

// Overlap returns the tokens both locations share.
func (p ParsedLocation) Overlap(other ParsedLocation) StringSet {
	return p.Tokens().Intersect(other.Tokens())
}

// IsEmpty reports whether no token was parsed.
func (p ParsedLocation) IsEmpty() bool {
	return p.States.Len() == 0 && p.Cities.Len() == 0 && p.Regions.Len() == 0
}

// Listing is a buyer request or seller offering projected into a common shape.
// Raw fields come from the input row; the remaining fields are filled in by the
// pipeline stages and are not changed after embeddings have been computed.
type Listing struct {
	ID              string
	Role            Role
	Title           string
	Summary         string
	LongDescription string
	IndustryText    string
	LocationRaw     string
	Extra           map[string]string // identifying pass-through columns (url, contact, ...)

	Location        ParsedLocation
	Coordinates     []Coordinate // empty when nothing resolved
	NormalizedText  string
	Categories      StringSet // taxonomy categories found by exact synonym containment
	FuzzyCategories StringSet // taxonomy categories found by fuzzy ratio, nil in exact mode
	Embedding       []float32 // nil when NormalizedText is empty
}

// HasCoordinates reports whether at least one location resolved.
func (l *Listing) HasCoordinates() bool {
	return len(l.Coordinates) > 0
}

// PairKey identifies a buyer-seller pair. It is built from listing ids only,
// never from listing content.
type PairKey struct {
	BuyerID  string
	SellerID string
}

const pairKeySeparator = "\x1f"

// String encodes the key as "buyer<US>seller".
func (k PairKey) String() string {
	return k.BuyerID + pairKeySeparator + k.SellerID
}

// ParsePairKey reverses PairKey.String.
func ParsePairKey(s string) (PairKey, error) {
	buyer, seller, ok := strings.Cut(s, pairKeySeparator)
	if !ok || buyer == "" || seller == "" {
		return PairKey{}, ErrInvalidPairKey
	}
	return PairKey{BuyerID: buyer, SellerID: seller}, nil
}

// Match is a scored buyer-seller pair. Matches are created by the aggregator
// and never modified afterwards.
type Match struct {
	BuyerID           string
	SellerID          string
	LocationScore     float64
	TaxonomyScore     float64
	SemanticScore     float64
	CompositeScore    float64
	DistanceKm        *float64 // nil unless both listings have coordinates
	MatchingKeywords  []string
	MatchingLocations []string
	CreatedAt         time.Time
	RunID             string
}

// Key returns the pair identity of the match.
func (m *Match) Key() PairKey {
	return PairKey{BuyerID: m.BuyerID, SellerID: m.SellerID}
}

// GeocodeResult is the cached outcome of one geocoding lookup. Failed lookups
// are cached too, with Resolved set to false.
type GeocodeResult struct {
	Name       string
	Coordinate Coordinate
	Resolved   bool
	ResolvedAt time.Time
}

// Checkpoint records how far a matching run got.
type Checkpoint struct {
	Name      string
	RunID     string
	Processed int
	UpdatedAt time.Time
}
