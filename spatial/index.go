package spatial

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/succession/core"
	"github.com/tidwall/rtree"
)

const (
	// EarthRadiusKm is the mean Earth radius used by Haversine.
	EarthRadiusKm = 6371.0088

	// HalfEarthKm is the largest possible great-circle distance. A radius of
	// at least this size covers the whole sphere.
	HalfEarthKm = math.Pi * EarthRadiusKm
)

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b core.Coordinate) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(min(1, h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Index answers radius and nearest neighbor queries over seller coordinates.
// Points are stored as (lat, lon) in an R-tree; every point carries the
// index of the listing that owns it, and one owner may have many points.
// An Index is read-only after Build and safe for concurrent queries.
type Index struct {
	tree   rtree.RTreeG[int]
	points map[int][]core.Coordinate
}

// Build indexes points[i] under owners[i]. Invalid coordinates are skipped.
// Build panics if the slices differ in length.
func Build(points []core.Coordinate, owners []int) *Index {
	if len(points) != len(owners) {
		panic("spatial: points and owners differ in length")
	}
	idx := &Index{points: make(map[int][]core.Coordinate)}
	for i, p := range points {
		if !p.Valid() {
			continue
		}
		pt := [2]float64{p.Lat, p.Lon}
		idx.tree.Insert(pt, pt, owners[i])
		idx.points[owners[i]] = append(idx.points[owners[i]], p)
	}
	return idx
}

// BuildFromListings indexes the coordinates of every listing under its
// position in the slice.
func BuildFromListings(listings []*core.Listing) *Index {
	var (
		points []core.Coordinate
		owners []int
	)
	for i, l := range listings {
		for _, c := range l.Coordinates {
			points = append(points, c)
			owners = append(owners, i)
		}
	}
	return Build(points, owners)
}

// Len returns the number of indexed points.
func (idx *Index) Len() int {
	return idx.tree.Len()
}

// Owners returns the number of distinct owners with at least one point.
func (idx *Index) Owners() int {
	return len(idx.points)
}

// nearby walks points in increasing haversine distance from origin. Nodes
// are bounded below by their latitude gap alone, which never overestimates
// the great-circle distance.
func (idx *Index) nearby(origin core.Coordinate, iter func(owner int, dist float64) bool) {
	idx.tree.Nearby(
		func(min, max [2]float64, _ int, item bool) float64 {
			if item {
				return Haversine(origin, core.Coordinate{Lat: min[0], Lon: min[1]})
			}
			switch {
			case origin.Lat < min[0]:
				return EarthRadiusKm * radians(min[0]-origin.Lat)
			case origin.Lat > max[0]:
				return EarthRadiusKm * radians(origin.Lat-max[0])
			default:
				return 0
			}
		},
		func(_, _ [2]float64, owner int, dist float64) bool {
			return iter(owner, dist)
		},
	)
}

// QueryRadius returns the distinct owners with a point within radiusKm of
// origin, sorted ascending. A radius <= 0 or >= HalfEarthKm means the whole
// sphere.
func (idx *Index) QueryRadius(origin core.Coordinate, radiusKm float64) []int {
	if radiusKm <= 0 || radiusKm >= HalfEarthKm {
		radiusKm = math.Inf(1)
	}
	seen := make(map[int]struct{})
	idx.nearby(origin, func(owner int, dist float64) bool {
		if dist > radiusKm {
			return false
		}
		seen[owner] = struct{}{}
		return true
	})

	out := make([]int, 0, len(seen))
	for owner := range seen {
		out = append(out, owner)
	}
	slices.Sort(out)
	return out
}

type ownerDist struct {
	owner int
	dist  float64
}

// QueryKNN returns the k owners nearest to origin, closest first. Owners at
// equal distance are ordered by owner index.
func (idx *Index) QueryKNN(origin core.Coordinate, k int) []int {
	if k <= 0 {
		return []int{}
	}
	best := make(map[int]float64)
	cutoff := math.Inf(1)
	idx.nearby(origin, func(owner int, dist float64) bool {
		// keep walking through ties at the k-th distance
		if dist > cutoff {
			return false
		}
		if _, ok := best[owner]; !ok {
			best[owner] = dist
			if len(best) == k {
				cutoff = dist
			}
		}
		return true
	})

	found := make([]ownerDist, 0, len(best))
	for owner, dist := range best {
		found = append(found, ownerDist{owner, dist})
	}
	slices.SortFunc(found, func(a, b ownerDist) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.owner, b.owner)
	})
	if len(found) > k {
		found = found[:k]
	}

	out := make([]int, len(found))
	for i, f := range found {
		out[i] = f.owner
	}
	return out
}

// Nearest returns the smallest distance between any of origins and any point
// of owner. ok is false when either side has no coordinates.
func (idx *Index) Nearest(origins []core.Coordinate, owner int) (dist float64, ok bool) {
	points := idx.points[owner]
	if len(points) == 0 || len(origins) == 0 {
		return 0, false
	}
	dist = math.Inf(1)
	for _, o := range origins {
		for _, p := range points {
			dist = min(dist, Haversine(o, p))
		}
	}
	return dist, true
}
