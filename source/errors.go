package source

import "errors"

var (
	// ErrNoHeader is returned when the input has no header row.
	ErrNoHeader = errors.New("csv input has no header row")

	// ErrNoMappedColumns is returned when none of the mapped columns exist.
	ErrNoMappedColumns = errors.New("no mapped column found in header")
)
