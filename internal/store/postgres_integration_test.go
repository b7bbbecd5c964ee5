//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ppiankov/ohmexport/internal/model"
	"github.com/ppiankov/ohmexport/internal/store"
)

type PostgresStoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	store     *store.Store
	cfg       model.StoreConfig
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgis/postgis:16-3.4",
		tcpostgres.WithDatabase("ohm"),
		tcpostgres.WithUsername("ohm"),
		tcpostgres.WithPassword("ohm"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.cfg = model.DefaultConfig().Store
	s.cfg.DSN = dsn
	s.cfg.Tables = []string{"osm_admin_areas"}
	s.cfg.BackfillBatch = 2

	s.store, err = store.Open(ctx, s.cfg, nil)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	_, err := s.store.DB.ExecContext(ctx, `DROP TABLE IF EXISTS osm_admin_areas`)
	s.Require().NoError(err)
	_, err = s.store.DB.ExecContext(ctx, `
		CREATE TABLE osm_admin_areas (
			id bigserial PRIMARY KEY,
			name text,
			admin_level integer,
			tags jsonb,
			geometry geometry(Geometry, 3857)
		)`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) insert(name, start, end string) {
	tags := map[string]string{}
	if start != "" {
		tags["start_date"] = start
	}
	if end != "" {
		tags["end_date"] = end
	}
	_, err := s.store.DB.ExecContext(context.Background(), `
		INSERT INTO osm_admin_areas (name, admin_level, tags, geometry)
		VALUES ($1, 2, $2::jsonb, ST_MakeEnvelope(0, 0, 1, 1, 3857))`,
		name, mustJSON(tags))
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestPrepareMaterializesYears() {
	ctx := context.Background()
	s.insert("Prussia", "1701-01-18", "1947-02-25")
	s.insert("Athens", "500 BCE", "")
	s.insert("Undated", "", "")
	s.insert("Garbage", "present", "1900")
	s.insert("Approximate", "~1850", "")

	results, err := s.store.Prepare(ctx)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(int64(5), results[0].Rows)

	years := map[string][2]sql.NullInt64{}
	rows, err := s.store.DB.QueryContext(ctx, `SELECT name, start_year, end_year FROM osm_admin_areas`)
	s.Require().NoError(err)
	defer rows.Close()
	for rows.Next() {
		var name string
		var start, end sql.NullInt64
		s.Require().NoError(rows.Scan(&name, &start, &end))
		years[name] = [2]sql.NullInt64{start, end}
	}
	s.Require().NoError(rows.Err())

	s.Equal(sql.NullInt64{Int64: 1701, Valid: true}, years["Prussia"][0])
	s.Equal(sql.NullInt64{Int64: 1947, Valid: true}, years["Prussia"][1])
	s.Equal(sql.NullInt64{Int64: -500, Valid: true}, years["Athens"][0])
	s.False(years["Athens"][1].Valid)
	s.False(years["Undated"][0].Valid)
	s.False(years["Garbage"][0].Valid)
	s.Equal(sql.NullInt64{Int64: 1850, Valid: true}, years["Approximate"][0])

	var indexes int
	err = s.store.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM pg_indexes WHERE tablename = 'osm_admin_areas' AND indexname LIKE 'osm_admin_areas_%_idx'`).Scan(&indexes)
	s.Require().NoError(err)
	s.Equal(3, indexes)
}

func (s *PostgresStoreSuite) TestPrepareIsRepeatable() {
	ctx := context.Background()
	s.insert("Prussia", "1701", "1947")

	_, err := s.store.Prepare(ctx)
	s.Require().NoError(err)
	_, err = s.store.Prepare(ctx)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestCountActive() {
	ctx := context.Background()
	s.insert("Prussia", "1701", "1947")
	s.insert("Ongoing", "1900", "")
	s.insert("Undated", "", "1950")

	_, err := s.store.Prepare(ctx)
	s.Require().NoError(err)

	count := func(year int) int64 {
		n, err := s.store.CountActive(ctx, "osm_admin_areas", "admin_level = 2", year)
		s.Require().NoError(err)
		return n
	}

	s.Equal(int64(0), count(1700))
	s.Equal(int64(1), count(1701))
	s.Equal(int64(2), count(1947))
	s.Equal(int64(1), count(1948))
	s.Equal(int64(1), count(9999))
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
