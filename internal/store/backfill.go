package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/ppiankov/ohmexport/internal/metrics"
	"github.com/ppiankov/ohmexport/internal/model"
	"github.com/ppiankov/ohmexport/internal/temporal"
)

// Raw date tags the year columns are derived from.
const (
	StartDateTag = "start_date"
	EndDateTag   = "end_date"
)

// Backfill recomputes start_year/end_year for every row of table from its raw
// date tags, walking the key column in batches. It returns the rows updated.
func (s *Store) Backfill(ctx context.Context, table string) (int64, error) {
	selectSQL := backfillSelect(table, s.cfg)
	updateSQL := backfillUpdate(table, s.cfg)

	var (
		lastKey int64
		first   = true
		total   int64
	)

	for {
		batch, err := s.readBatch(ctx, selectSQL, lastKey, first)
		if err != nil {
			return total, err
		}
		if len(batch.keys) == 0 {
			break
		}

		if _, err := s.DB.ExecContext(ctx, updateSQL, batch.keys, batch.starts, batch.ends); err != nil {
			return total, fmt.Errorf("update year columns: %w", err)
		}

		total += int64(len(batch.keys))
		metrics.BackfillRowsTotal.WithLabelValues(table).Add(float64(len(batch.keys)))
		s.logger.Debug("backfilled batch",
			slog.String("table", table),
			slog.Int("rows", len(batch.keys)),
			slog.Int64("total", total))

		lastKey = batch.keys[len(batch.keys)-1]
		first = false

		if len(batch.keys) < s.cfg.BackfillBatch {
			break
		}
	}

	return total, nil
}

type yearBatch struct {
	keys   []int64
	starts []*int32
	ends   []*int32
}

func (s *Store) readBatch(ctx context.Context, query string, after int64, first bool) (*yearBatch, error) {
	rows, err := s.DB.QueryContext(ctx, query, first, after, s.cfg.BackfillBatch)
	if err != nil {
		return nil, fmt.Errorf("read date tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	batch := &yearBatch{}
	for rows.Next() {
		var (
			key        int64
			start, end *string
		)
		if err := rows.Scan(&key, &start, &end); err != nil {
			return nil, fmt.Errorf("scan date tags: %w", err)
		}
		batch.keys = append(batch.keys, key)
		batch.starts = append(batch.starts, yearColumn(start))
		batch.ends = append(batch.ends, yearColumn(end))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate date tags: %w", err)
	}
	return batch, nil
}

// yearColumn converts a raw tag into the value stored in a year column;
// nil means SQL NULL.
func yearColumn(raw *string) *int32 {
	if raw == nil {
		return nil
	}
	year, ok := temporal.ParseYear(*raw)
	if !ok {
		return nil
	}
	y := int32(year)
	return &y
}

func backfillSelect(table string, cfg model.StoreConfig) string {
	key := pq.QuoteIdentifier(cfg.KeyColumn)
	tags := pq.QuoteIdentifier(cfg.TagsColumn)
	return fmt.Sprintf(
		"SELECT %[1]s, %[2]s->>%[3]s, %[2]s->>%[4]s FROM %[5]s WHERE ($1 OR %[1]s > $2) ORDER BY %[1]s LIMIT $3",
		key, tags, pq.QuoteLiteral(StartDateTag), pq.QuoteLiteral(EndDateTag), QuoteQualified(table))
}

func backfillUpdate(table string, cfg model.StoreConfig) string {
	key := pq.QuoteIdentifier(cfg.KeyColumn)
	return fmt.Sprintf(
		"UPDATE %[1]s AS f SET %[3]s = v.start_year, %[4]s = v.end_year "+
			"FROM unnest($1::bigint[], $2::integer[], $3::integer[]) AS v(key, start_year, end_year) "+
			"WHERE f.%[2]s = v.key",
		QuoteQualified(table), key, temporal.StartColumn, temporal.EndColumn)
}
