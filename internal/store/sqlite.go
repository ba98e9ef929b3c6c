package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crime-census/internal/model"
	"github.com/sells-group/crime-census/internal/tiger"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. table names the joined table.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create dir")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if table == "" {
		table = "spd_census_joined"
	}
	return &SQLiteStore{db: db, table: strings.ReplaceAll(table, ".", "_")}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	joined_table  TEXT NOT NULL,
	total_records INTEGER NOT NULL,
	final_records INTEGER NOT NULL,
	degraded      INTEGER NOT NULL DEFAULT 0,
	stats         TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tracts (
	geoid       TEXT PRIMARY KEY,
	tract_id    TEXT NOT NULL,
	state_fips  TEXT,
	county_fips TEXT,
	name        TEXT,
	srid        INTEGER,
	geom        BLOB
);

CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
CREATE INDEX IF NOT EXISTS idx_tracts_tract_id ON tracts(tract_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun replaces the joined table, upserts the tract layer and records
// the run, all in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if err := checkRun(run); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.replaceJoined(ctx, tx, run.Table); err != nil {
		return err
	}
	if err := upsertTractsSQLite(ctx, tx, run.Tracts); err != nil {
		return err
	}
	if run.Stats != nil {
		if err := s.insertRun(ctx, tx, run); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	zap.L().Info("store: wrote sqlite",
		zap.String("table", s.table),
		zap.Int("rows", len(run.Table.Records)),
		zap.Int("tracts", len(run.Tracts)),
	)
	return nil
}

func (s *SQLiteStore) replaceJoined(ctx context.Context, tx *sql.Tx, table *model.JoinedTable) error {
	cols := table.Columns()
	kinds := columnKinds(table)
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c) + " " + sqliteType(kinds[i])
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(s.table)); err != nil {
		return eris.Wrapf(err, "sqlite: drop %s", s.table)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(s.table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return eris.Wrapf(err, "sqlite: create %s", s.table)
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.table), strings.Join(quoted, ", "), placeholders(len(cols)))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range table.Records {
		if _, err := stmt.ExecContext(ctx, table.Row(i)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert row %d", i)
		}
	}
	return nil
}

func upsertTractsSQLite(ctx context.Context, tx *sql.Tx, tracts []model.TractPolygon) error {
	if len(tracts) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tracts (geoid, tract_id, state_fips, county_fips, name, srid, geom)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(geoid) DO UPDATE SET
	tract_id = excluded.tract_id,
	state_fips = excluded.state_fips,
	county_fips = excluded.county_fips,
	name = excluded.name,
	srid = excluded.srid,
	geom = excluded.geom`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare tract upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, t := range tracts {
		row, err := tractRow(t)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert tract %s", t.GEOID)
		}
	}
	return nil
}

func (s *SQLiteStore) insertRun(ctx context.Context, tx *sql.Tx, run *Run) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, joined_table, total_records, final_records, degraded, stats, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Stats.RunID, s.table, run.Stats.TotalRecords, run.Stats.FinalRecords, run.Stats.Degraded,
		string(statsJSON), run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert run")
}

// GetRun returns the stored statistics of a run.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Stats, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT stats FROM runs WHERE id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	var st model.Stats
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &st, nil
}

// LatestRun returns the most recently finished run, or nil if none exists.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Stats, time.Time, error) {
	var raw string
	var finished time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT stats, finished_at FROM runs ORDER BY finished_at DESC LIMIT 1`).Scan(&raw, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, eris.Wrap(err, "sqlite: latest run")
	}
	var st model.Stats
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, time.Time{}, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &st, finished, nil
}

// CountRows returns the number of rows in the joined table.
func (s *SQLiteStore) CountRows(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.table)).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count rows")
}

func tractRow(t model.TractPolygon) ([]any, error) {
	wkb, err := tiger.EncodeWKB(t.Geometry)
	if err != nil {
		return nil, eris.Wrapf(err, "store: encode tract %s", t.GEOID)
	}
	return []any{t.GEOID, t.TractID, t.StateFIPS, t.CountyFIPS, t.Name, t.SRID, wkb}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
