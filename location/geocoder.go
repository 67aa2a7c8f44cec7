package location

import (
	"context"

	"github.com/poiesic/succession/core"
)

// Geocoder resolves a place name to coordinates.
// Implementations must be thread-safe for concurrent use.
type Geocoder interface {
	// Geocode looks up name. It returns ok=false with a nil error when the
	// provider has no answer, and a non-nil error for transport or provider
	// failures that may succeed on retry.
	Geocode(ctx context.Context, name string) (coord core.Coordinate, ok bool, err error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, name string) (core.Coordinate, bool, error)

// Geocode calls f.
func (f GeocoderFunc) Geocode(ctx context.Context, name string) (core.Coordinate, bool, error) {
	return f(ctx, name)
}
