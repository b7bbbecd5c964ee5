// Package store owns the PostGIS side of the pipeline: it materializes the
// start_year/end_year columns every time-sliced query relies on and answers
// per-year feature counts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/ppiankov/ohmexport/internal/model"
	"github.com/ppiankov/ohmexport/internal/temporal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Store wraps the spatial database connection.
type Store struct {
	DB     *sql.DB
	cfg    model.StoreConfig
	logger *slog.Logger
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg model.StoreConfig, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, cfg, logger), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, cfg model.StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		DB:     db,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "store")),
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// PrepareResult reports what Prepare did for one table.
type PrepareResult struct {
	Table string
	Rows  int64
}

// Prepare materializes the derived year columns and their indexes on every
// configured table. Tables are processed concurrently.
func (s *Store) Prepare(ctx context.Context) ([]PrepareResult, error) {
	results := make([]PrepareResult, len(s.cfg.Tables))

	g, ctx := errgroup.WithContext(ctx)
	for i, table := range s.cfg.Tables {
		g.Go(func() error {
			rows, err := s.prepareTable(ctx, table)
			if err != nil {
				return fmt.Errorf("prepare %s: %w", table, err)
			}
			results[i] = PrepareResult{Table: table, Rows: rows}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) prepareTable(ctx context.Context, table string) (int64, error) {
	ctx, span := otel.Tracer("ohmexport/store").Start(ctx, "store.prepareTable")
	span.SetAttributes(attribute.String("table", table))
	defer span.End()

	for _, stmt := range ColumnStatements(table) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, fmt.Errorf("add year columns: %w", err)
		}
	}

	rows, err := s.Backfill(ctx, table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rows, err
	}

	for _, stmt := range IndexStatements(table, s.cfg) {
		s.logger.Debug("creating index", slog.String("table", table), slog.String("sql", stmt))
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return rows, fmt.Errorf("create index: %w", err)
		}
	}

	span.SetAttributes(attribute.Int64("rows", rows))
	return rows, nil
}

// CountActive counts rows of table matching filter that are active at year.
func (s *Store) CountActive(ctx context.Context, table, filter string, year int) (int64, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, CountQuery(table, filter, year)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count features for %d: %w", year, err)
	}
	return n, nil
}

// ColumnStatements returns the DDL adding the derived year columns.
func ColumnStatements(table string) []string {
	t := QuoteQualified(table)
	return []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s integer", t, temporal.StartColumn),
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s integer", t, temporal.EndColumn),
	}
}

// IndexStatements returns the indexes that keep per-year queries tractable:
// a joint btree over the year columns, GIN over tags and GiST over geometry.
func IndexStatements(table string, cfg model.StoreConfig) []string {
	t := QuoteQualified(table)
	base := indexBaseName(table)
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			pq.QuoteIdentifier(base+"_years_idx"), t, temporal.StartColumn, temporal.EndColumn),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (%s)",
			pq.QuoteIdentifier(base+"_tags_idx"), t, pq.QuoteIdentifier(cfg.TagsColumn)),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gist (%s)",
			pq.QuoteIdentifier(base+"_geom_idx"), t, pq.QuoteIdentifier(cfg.GeomColumn)),
	}
}

// ExportQuery selects the snapshot of table active at year. filter is an
// operator-supplied SQL condition and is embedded verbatim.
func ExportQuery(table, filter string, cfg model.StoreConfig, year int) string {
	return fmt.Sprintf("SELECT %s, name, %s, %s, %s::text AS tags, %s FROM %s WHERE %s",
		pq.QuoteIdentifier(cfg.KeyColumn),
		temporal.StartColumn, temporal.EndColumn,
		pq.QuoteIdentifier(cfg.TagsColumn),
		pq.QuoteIdentifier(cfg.GeomColumn),
		QuoteQualified(table),
		where(filter, year))
}

// CountQuery counts the rows ExportQuery would return.
func CountQuery(table, filter string, year int) string {
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", QuoteQualified(table), where(filter, year))
}

func where(filter string, year int) string {
	predicate := temporal.ActiveAtSQL(year)
	if strings.TrimSpace(filter) == "" {
		return predicate
	}
	return fmt.Sprintf("(%s) AND %s", filter, predicate)
}

// QuoteQualified quotes a possibly schema-qualified table name.
func QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func indexBaseName(table string) string {
	return strings.ReplaceAll(table, ".", "_")
}
