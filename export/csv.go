package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/succession/core"
)

// listSeparator joins keyword and location lists inside one cell.
const listSeparator = "; "

// Column names shared by the writer and ReadCSV.
const (
	ColBuyerID           = "buyer_id"
	ColSellerID          = "seller_id"
	ColLocationScore     = "location_score"
	ColTaxonomyScore     = "taxonomy_score"
	ColSemanticScore     = "semantic_score"
	ColCompositeScore    = "composite_score"
	ColDistanceKm        = "distance_km"
	ColMatchingKeywords  = "matching_keywords"
	ColMatchingLocations = "matching_locations"
	ColCreatedAt         = "created_at"
	ColRunID             = "run_id"
)

// CSVExporter writes matches as CSV rows, one per match, with the
// identifying fields of both listings next to the scores.
type CSVExporter struct {
	w            io.Writer
	closer       io.Closer
	buyerExtras  []string
	sellerExtras []string
	header       bool
	closed       bool
	logger       *slog.Logger
}

var _ Exporter = (*CSVExporter)(nil)

// CSVOption configures a CSVExporter.
type CSVOption func(*CSVExporter)

// WithExtraColumns adds pass-through listing fields (Listing.Extra keys) to
// every row, prefixed with buyer_ and seller_.
func WithExtraColumns(buyer, seller []string) CSVOption {
	return func(e *CSVExporter) {
		e.buyerExtras = append([]string{}, buyer...)
		e.sellerExtras = append([]string{}, seller...)
	}
}

// WithCSVLogger sets a custom logger.
func WithCSVLogger(logger *slog.Logger) CSVOption {
	return func(e *CSVExporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewCSVExporter writes to w. Close does not close w.
func NewCSVExporter(w io.Writer, opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{w: w, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "csv-exporter")
	return e
}

// CreateCSV creates the file at path, including missing directories, and
// returns an exporter that closes it.
func CreateCSV(path string, opts ...CSVOption) (*CSVExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}
	e := NewCSVExporter(f, opts...)
	e.closer = f
	return e, nil
}

// Header returns the column names written by the exporter.
func (e *CSVExporter) Header() []string {
	h := []string{ColBuyerID, "buyer_title", "buyer_location"}
	for _, k := range e.buyerExtras {
		h = append(h, "buyer_"+k)
	}
	h = append(h, ColSellerID, "seller_title", "seller_location")
	for _, k := range e.sellerExtras {
		h = append(h, "seller_"+k)
	}
	return append(h,
		ColLocationScore, ColTaxonomyScore, ColSemanticScore, ColCompositeScore,
		ColDistanceKm, ColMatchingKeywords, ColMatchingLocations, ColCreatedAt, ColRunID,
	)
}

// Export writes the header on first use and one row per match.
func (e *CSVExporter) Export(ctx context.Context, matches []*core.Match, lookup Lookup) error {
	if e.closed {
		return ErrExporterClosed
	}
	if err := validateAll(matches); err != nil {
		return err
	}

	writer := csv.NewWriter(e.w)
	if !e.header {
		if err := writer.Write(e.Header()); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		e.header = true
	}

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			writer.Flush()
			return err
		}
		if err := writer.Write(e.row(m, lookup)); err != nil {
			return fmt.Errorf("failed to write CSV row %s/%s: %w", m.BuyerID, m.SellerID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	e.logger.Info("matches written", "rows", len(matches))
	return nil
}

func (e *CSVExporter) row(m *core.Match, lookup Lookup) []string {
	var b, s *core.Listing
	if lookup != nil {
		b, s = lookup.Buyer(m.BuyerID), lookup.Seller(m.SellerID)
	}

	row := []string{m.BuyerID}
	row = append(row, identifying(b, e.buyerExtras)...)
	row = append(row, m.SellerID)
	row = append(row, identifying(s, e.sellerExtras)...)
	return append(row,
		FormatScore(m.LocationScore),
		FormatScore(m.TaxonomyScore),
		FormatScore(m.SemanticScore),
		FormatScore(m.CompositeScore),
		FormatDistance(m.DistanceKm),
		strings.Join(m.MatchingKeywords, listSeparator),
		strings.Join(m.MatchingLocations, listSeparator),
		m.CreatedAt.UTC().Format(time.RFC3339),
		m.RunID,
	)
}

func identifying(l *core.Listing, extras []string) []string {
	out := make([]string, 2+len(extras))
	if l == nil {
		return out
	}
	out[0], out[1] = l.Title, l.LocationRaw
	for i, k := range extras {
		out[2+i] = l.Extra[k]
	}
	return out
}

// Close closes the underlying file when the exporter created it.
func (e *CSVExporter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

// ReadCSV reads matches back from a file written by CSVExporter. Only
// buyer_id and seller_id are required; other columns are optional.
func ReadCSV(r io.Reader) ([]*core.Match, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []*core.Match{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{ColBuyerID, ColSellerID} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var matches []*core.Match
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		m, err := parseRow(cols, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		matches = append(matches, m)
	}
	if matches == nil {
		matches = []*core.Match{}
	}
	return matches, nil
}

func parseRow(cols map[string]int, record []string) (*core.Match, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	score := func(name string) (float64, error) {
		v := get(name)
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, name, err)
		}
		return f, nil
	}
	list := func(name string) []string {
		out := []string{}
		for _, part := range strings.Split(get(name), strings.TrimSpace(listSeparator)) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	m := &core.Match{
		BuyerID:           get(ColBuyerID),
		SellerID:          get(ColSellerID),
		MatchingKeywords:  list(ColMatchingKeywords),
		MatchingLocations: list(ColMatchingLocations),
		RunID:             get(ColRunID),
	}
	var err error
	if m.LocationScore, err = score(ColLocationScore); err != nil {
		return nil, err
	}
	if m.TaxonomyScore, err = score(ColTaxonomyScore); err != nil {
		return nil, err
	}
	if m.SemanticScore, err = score(ColSemanticScore); err != nil {
		return nil, err
	}
	if m.CompositeScore, err = score(ColCompositeScore); err != nil {
		return nil, err
	}
	if d := get(ColDistanceKm); d != "" {
		v, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, ColDistanceKm, err)
		}
		m.DistanceKm = &v
	}
	if ts := get(ColCreatedAt); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, ColCreatedAt, err)
		}
		m.CreatedAt = t
	}
	if err := core.ValidateMatch(m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return m, nil
}
