package export

import "errors"

var (
	// ErrInvalidRecord is returned when a match fails validation. The export
	// is aborted; no record is skipped silently.
	ErrInvalidRecord = errors.New("invalid match record")

	// ErrMissingColumn is returned when a CSV lacks a required column.
	ErrMissingColumn = errors.New("missing column")

	// ErrExporterClosed is returned when Export is called after Close.
	ErrExporterClosed = errors.New("exporter closed")
)
