// Package spatial indexes seller coordinates for radius and nearest neighbor
// queries under the haversine metric.
package spatial
