package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/succession/core"
)

// ctxCheckInterval is how many rows are read between cancellation checks.
const ctxCheckInterval = 256

// Loader reads listings from CSV input.
type Loader struct {
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "csv-source")
	return l
}

// LoadCSV reads listings of role from r. Columns are looked up by header
// name, case-insensitively; mapped columns missing from the header yield
// empty fields. Rows are never dropped for missing text.
func (l *Loader) LoadCSV(ctx context.Context, r io.Reader, role core.Role, m Mapping) ([]*core.Listing, error) {
	if err := core.ValidateRole(role); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := indexHeader(header)

	resolved := resolveMapping(cols, m)
	if resolved.empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoMappedColumns, role)
	}
	if missing := missingColumns(cols, m); len(missing) > 0 {
		l.logger.Warn("mapped columns not in header", "role", role, "columns", missing)
	}

	var listings []*core.Listing
	for row := 0; ; row++ {
		if row%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row+1, err)
		}
		listings = append(listings, resolved.listing(record, row, role))
	}

	l.logger.Info("listings loaded", "role", role, "count", len(listings))
	return listings, nil
}

// LoadCSVFile opens path and calls LoadCSV.
func (l *Loader) LoadCSVFile(ctx context.Context, path string, role core.Role, m Mapping) ([]*core.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s input: %w", role, err)
	}
	defer f.Close()
	return l.LoadCSV(ctx, f, role, m)
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := columnKey(h)
		if _, dup := cols[key]; !dup && key != "" {
			cols[key] = i
		}
	}
	return cols
}

func columnKey(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
}

// columns maps mapped names to header positions, dropping absent ones.
func columns(cols map[string]int, names []string) []int {
	out := make([]int, 0, len(names))
	for _, n := range names {
		if i, ok := cols[columnKey(n)]; ok {
			out = append(out, i)
		}
	}
	return out
}

func missingColumns(cols map[string]int, m Mapping) []string {
	var missing []string
	all := slices.Concat(m.ID, m.Title, m.Summary, m.LongDescription, m.Location, m.Industry)
	for _, c := range m.Extra {
		all = append(all, c)
	}
	for _, n := range all {
		if _, ok := cols[columnKey(n)]; !ok && !slices.Contains(missing, n) {
			missing = append(missing, n)
		}
	}
	slices.Sort(missing)
	return missing
}

type resolvedMapping struct {
	id, title, summary, long, location, industry []int
	extra                                        map[string]int
}

func resolveMapping(cols map[string]int, m Mapping) resolvedMapping {
	r := resolvedMapping{
		id:       columns(cols, m.ID),
		title:    columns(cols, m.Title),
		summary:  columns(cols, m.Summary),
		long:     columns(cols, m.LongDescription),
		location: columns(cols, m.Location),
		industry: columns(cols, m.Industry),
		extra:    make(map[string]int, len(m.Extra)),
	}
	for name, col := range m.Extra {
		if i, ok := cols[columnKey(col)]; ok {
			r.extra[name] = i
		}
	}
	return r
}

func (r resolvedMapping) empty() bool {
	return len(r.id)+len(r.title)+len(r.summary)+len(r.long)+len(r.location)+len(r.industry)+len(r.extra) == 0
}

func (r resolvedMapping) listing(record []string, row int, role core.Role) *core.Listing {
	l := &core.Listing{
		ID:              first(record, r.id),
		Role:            role,
		Title:           join(record, r.title, " "),
		Summary:         join(record, r.summary, " "),
		LongDescription: join(record, r.long, " "),
		IndustryText:    join(record, r.industry, " "),
		LocationRaw:     join(record, r.location, ", "),
	}
	if l.ID == "" {
		l.ID = strconv.Itoa(row)
	}
	if len(r.extra) > 0 {
		l.Extra = make(map[string]string, len(r.extra))
		for name, i := range r.extra {
			l.Extra[name] = cell(record, i)
		}
	}
	return l
}

func cell(record []string, i int) string {
	if i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func first(record []string, idx []int) string {
	for _, i := range idx {
		if v := cell(record, i); v != "" {
			return v
		}
	}
	return ""
}

func join(record []string, idx []int, sep string) string {
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		if v := cell(record, i); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
