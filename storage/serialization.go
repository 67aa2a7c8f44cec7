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

package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/succession/core"
)

// encoder appends mus-encoded values to a growing buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) grow(size int) []byte {
	n := len(e.buf)
	e.buf = slices.Grow(e.buf, size)[:n+size]
	return e.buf[n:]
}

func (e *encoder) uint64(v uint64) {
	varint.Uint64.Marshal(v, e.grow(varint.Uint64.Size(v)))
}

func (e *encoder) int64(v int64) {
	varint.Int64.Marshal(v, e.grow(varint.Int64.Size(v)))
}

func (e *encoder) string(v string) {
	ord.String.Marshal(v, e.grow(ord.String.Size(v)))
}

func (e *encoder) bool(v bool) {
	ord.Bool.Marshal(v, e.grow(ord.Bool.Size(v)))
}

func (e *encoder) float64(v float64) {
	e.uint64(math.Float64bits(v))
}

func (e *encoder) time(t time.Time) {
	e.int64(t.UnixMicro())
}

func (e *encoder) strings(vs []string) {
	e.uint64(uint64(len(vs)))
	for _, v := range vs {
		e.string(v)
	}
}

// decoder reads mus-encoded values in order. The first error sticks; later
// reads return zero values.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) float64() float64 {
	return math.Float64frombits(d.uint64())
}

func (d *decoder) time() time.Time {
	return time.UnixMicro(d.int64()).UTC()
}

// length reads a collection length and rejects values that cannot fit in the
// remaining bytes, so corrupt input never triggers a huge allocation.
func (d *decoder) length() int {
	l := d.uint64()
	if d.err == nil && l > uint64(len(d.bs)-d.n) {
		d.err = ErrTruncatedData
		return 0
	}
	return int(l)
}

func (d *decoder) strings() []string {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]string, 0, l)
	for range l {
		out = append(out, d.string())
	}
	return out
}

func (d *decoder) result(what string) error {
	if d.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, d.err)
	}
	return nil
}

// MarshalGeocodeResult serializes a GeocodeResult to bytes.
func MarshalGeocodeResult(r *core.GeocodeResult) []byte {
	var e encoder
	e.string(r.Name)
	e.float64(r.Coordinate.Lat)
	e.float64(r.Coordinate.Lon)
	e.bool(r.Resolved)
	e.time(r.ResolvedAt)
	return e.buf
}

// UnmarshalGeocodeResult deserializes a GeocodeResult from bytes.
func UnmarshalGeocodeResult(data []byte) (*core.GeocodeResult, error) {
	d := decoder{bs: data}
	r := &core.GeocodeResult{
		Name: d.string(),
		Coordinate: core.Coordinate{
			Lat: d.float64(),
			Lon: d.float64(),
		},
		Resolved:   d.bool(),
		ResolvedAt: d.time(),
	}
	if err := d.result("geocode result"); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalVector serializes an embedding vector to bytes.
func MarshalVector(v []float32) []byte {
	var e encoder
	e.uint64(uint64(len(v)))
	for _, f := range v {
		e.uint64(uint64(math.Float32bits(f)))
	}
	return e.buf
}

// UnmarshalVector deserializes an embedding vector from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	d := decoder{bs: data}
	l := d.length()
	v := make([]float32, l)
	for i := range v {
		v[i] = math.Float32frombits(uint32(d.uint64()))
	}
	if err := d.result("vector"); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalMatch serializes a Match to bytes.
func MarshalMatch(m *core.Match) []byte {
	var e encoder
	e.string(m.BuyerID)
	e.string(m.SellerID)
	e.float64(m.LocationScore)
	e.float64(m.TaxonomyScore)
	e.float64(m.SemanticScore)
	e.float64(m.CompositeScore)
	e.bool(m.DistanceKm != nil)
	if m.DistanceKm != nil {
		e.float64(*m.DistanceKm)
	}
	e.strings(m.MatchingKeywords)
	e.strings(m.MatchingLocations)
	e.time(m.CreatedAt)
	e.string(m.RunID)
	return e.buf
}

// UnmarshalMatch deserializes a Match from bytes.
func UnmarshalMatch(data []byte) (*core.Match, error) {
	d := decoder{bs: data}
	m := &core.Match{
		BuyerID:        d.string(),
		SellerID:       d.string(),
		LocationScore:  d.float64(),
		TaxonomyScore:  d.float64(),
		SemanticScore:  d.float64(),
		CompositeScore: d.float64(),
	}
	if d.bool() {
		dist := d.float64()
		m.DistanceKm = &dist
	}
	m.MatchingKeywords = d.strings()
	m.MatchingLocations = d.strings()
	m.CreatedAt = d.time()
	m.RunID = d.string()
	if err := d.result("match"); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(c *core.Checkpoint) []byte {
	var e encoder
	e.string(c.Name)
	e.string(c.RunID)
	e.int64(int64(c.Processed))
	e.time(c.UpdatedAt)
	return e.buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	d := decoder{bs: data}
	c := &core.Checkpoint{
		Name:      d.string(),
		RunID:     d.string(),
		Processed: int(d.int64()),
		UpdatedAt: d.time(),
	}
	if err := d.result("checkpoint"); err != nil {
		return nil, err
	}
	return c, nil
}
