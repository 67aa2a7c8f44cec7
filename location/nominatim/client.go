// Package nominatim implements location.Geocoder against an OpenStreetMap
// Nominatim compatible search endpoint.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/poiesic/succession/batch"
	"github.com/poiesic/succession/core"
	"github.com/poiesic/succession/location"
)

const (
	// DefaultBaseURL is the public OpenStreetMap instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies the client as the usage policy requires.
	DefaultUserAgent = "succession-geocoder/1.0"
	// DefaultCountry is appended to every query to bias results.
	DefaultCountry = "Germany"
)

// ErrUnexpectedStatus is returned for non-200 responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client queries the Nominatim /search endpoint.
type Client struct {
	baseURL   string
	userAgent string
	country   string
	http      *http.Client
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCountry sets the country suffix added to queries. Empty disables it.
func WithCountry(country string) Option {
	return func(c *Client) {
		c.country = country
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a Nominatim geocoder.
//
// Returns location.Geocoder interface to enforce abstraction.
func New(opts ...Option) location.Geocoder {
	return newClient(opts...)
}

func newClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		country:   DefaultCountry,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    slog.Default().With("component", "nominatim"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the first search hit for name. Rate limiting and 5xx
// responses are reported as errors so the caller retries; other client
// errors are permanent.
func (c *Client) Geocode(ctx context.Context, name string) (core.Coordinate, bool, error) {
	q := name
	if c.country != "" {
		q = name + ", " + c.country
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return core.Coordinate{}, false, batch.Permanent(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return core.Coordinate{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %d for %q", ErrUnexpectedStatus, resp.StatusCode, name)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return core.Coordinate{}, false, err
		}
		return core.Coordinate{}, false, batch.Permanent(err)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return core.Coordinate{}, false, fmt.Errorf("nominatim: decode response: %w", err)
	}
	if len(places) == 0 {
		return core.Coordinate{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return core.Coordinate{}, false, batch.Permanent(fmt.Errorf("nominatim: bad latitude %q: %w", places[0].Lat, err))
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return core.Coordinate{}, false, batch.Permanent(fmt.Errorf("nominatim: bad longitude %q: %w", places[0].Lon, err))
	}

	c.logger.Debug("geocoded", "name", name, "match", places[0].DisplayName)
	return core.Coordinate{Lat: lat, Lon: lon}, true, nil
}
