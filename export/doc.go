// Package export writes ranked matches to their sinks.
//
// CSVExporter produces the report file; PostgresExporter inserts into a
// matches table. Both validate every record before writing and abort on the
// first malformed one. ReadCSV reads a report back, which is how earlier
// results are imported into the match store.
package export
