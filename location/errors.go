package location

import "errors"

var (
	// ErrGeocoderRequired is returned when a resolver is built without a geocoder.
	ErrGeocoderRequired = errors.New("geocoder required")

	// ErrCacheRequired is returned when a resolver is built without a cache.
	ErrCacheRequired = errors.New("geocode cache required")
)
