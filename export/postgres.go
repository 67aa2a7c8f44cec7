package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/poiesic/succession/batch"
	"github.com/poiesic/succession/core"
)

// DefaultTable is the table matches are written to.
const DefaultTable = "matches"

// DefaultInsertBatch is the number of rows per INSERT statement.
const DefaultInsertBatch = 50

// matchColumns are the columns of one inserted row, in placeholder order.
var matchColumns = []string{
	"buyer_id", "seller_id", "buyer_title", "seller_title",
	"location_score", "taxonomy_score", "semantic_score", "composite_score",
	"distance_km", "matching_keywords", "matching_locations", "created_at", "run_id",
}

// PostgresExporter inserts matches into PostgreSQL. Pairs already present
// in the table are left untouched.
type PostgresExporter struct {
	db         *sql.DB
	table      string
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	closed     bool
	logger     *slog.Logger
}

var _ Exporter = (*PostgresExporter)(nil)

// PostgresOption configures a PostgresExporter.
type PostgresOption func(*PostgresExporter)

// WithTable sets the target table name.
func WithTable(name string) PostgresOption {
	return func(e *PostgresExporter) {
		if name != "" {
			e.table = name
		}
	}
}

// WithInsertBatch sets the rows per INSERT statement.
func WithInsertBatch(n int) PostgresOption {
	return func(e *PostgresExporter) {
		e.batchSize = max(1, n)
	}
}

// WithConnectRetries sets the connection attempts and the base backoff delay.
func WithConnectRetries(attempts int, delay time.Duration) PostgresOption {
	return func(e *PostgresExporter) {
		e.maxRetries = max(1, attempts)
		e.retryDelay = delay
	}
}

// WithPostgresLogger sets a custom logger.
func WithPostgresLogger(logger *slog.Logger) PostgresOption {
	return func(e *PostgresExporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewPostgresExporter connects to dsn, retrying the initial ping, and
// creates the match table if it does not exist.
func NewPostgresExporter(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresExporter, error) {
	e := &PostgresExporter{
		table:      DefaultTable,
		batchSize:  DefaultInsertBatch,
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "postgres-exporter")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = batch.RetryWithBackoff(ctx, func() error {
		return db.PingContext(ctx)
	}, e.maxRetries, e.retryDelay)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	e.db = db

	if err := e.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	e.logger.Info("connected to PostgreSQL", "table", e.table)
	return e, nil
}

func (e *PostgresExporter) createTable(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, createTableSQL(e.table)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func createTableSQL(table string) string {
	t := pq.QuoteIdentifier(table)
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		buyer_id           TEXT          NOT NULL,
		seller_id          TEXT          NOT NULL,
		buyer_title        TEXT,
		seller_title       TEXT,
		location_score     NUMERIC(6,4)  NOT NULL,
		taxonomy_score     NUMERIC(6,4)  NOT NULL,
		semantic_score     NUMERIC(6,4)  NOT NULL,
		composite_score    NUMERIC(6,4)  NOT NULL,
		distance_km        DOUBLE PRECISION,
		matching_keywords  TEXT[],
		matching_locations TEXT[],
		created_at         TIMESTAMPTZ   NOT NULL,
		run_id             TEXT,
		PRIMARY KEY (buyer_id, seller_id)
	);

	CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (composite_score DESC);
	`, t, pq.QuoteIdentifier("idx_"+table+"_composite"))
}

// insertSQL builds a multi-row INSERT for rows matches.
func insertSQL(table string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", pq.QuoteIdentifier(table), strings.Join(matchColumns, ", "))
	n := 1
	for r := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range matchColumns {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT (buyer_id, seller_id) DO NOTHING")
	return b.String()
}

func insertArgs(m *core.Match, lookup Lookup) []any {
	var buyerTitle, sellerTitle string
	if lookup != nil {
		if b := lookup.Buyer(m.BuyerID); b != nil {
			buyerTitle = b.Title
		}
		if s := lookup.Seller(m.SellerID); s != nil {
			sellerTitle = s.Title
		}
	}
	var distance sql.NullFloat64
	if m.DistanceKm != nil {
		distance = sql.NullFloat64{Float64: *m.DistanceKm, Valid: true}
	}
	return []any{
		m.BuyerID, m.SellerID, buyerTitle, sellerTitle,
		m.LocationScore, m.TaxonomyScore, m.SemanticScore, m.CompositeScore,
		distance, pq.Array(m.MatchingKeywords), pq.Array(m.MatchingLocations),
		m.CreatedAt.UTC(), m.RunID,
	}
}

// Export inserts matches in one transaction, batchSize rows per statement.
func (e *PostgresExporter) Export(ctx context.Context, matches []*core.Match, lookup Lookup) (err error) {
	if e.closed {
		return ErrExporterClosed
	}
	if err := validateAll(matches); err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inserted := int64(0)
	for start := 0; start < len(matches); start += e.batchSize {
		chunk := matches[start:min(start+e.batchSize, len(matches))]
		args := make([]any, 0, len(chunk)*len(matchColumns))
		for _, m := range chunk {
			args = append(args, insertArgs(m, lookup)...)
		}
		res, execErr := tx.ExecContext(ctx, insertSQL(e.table, len(chunk)), args...)
		if execErr != nil {
			return fmt.Errorf("failed to insert matches: %w", execErr)
		}
		if n, rowsErr := res.RowsAffected(); rowsErr == nil {
			inserted += n
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	e.logger.Info("matches inserted", "inserted", inserted, "total", len(matches))
	return nil
}

// Close closes the database connection.
func (e *PostgresExporter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}
