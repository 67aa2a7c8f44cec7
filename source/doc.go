// Package source projects buyer and seller CSV exports onto core.Listing.
//
// Column names are configured with a Mapping, either the defaults for the
// two known export shapes or a YAML file.
package source
