package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool       db.Pool
	closeFn    func()
	table      string
	tractTable string
	runTable   string
}

// NewPostgres connects to databaseURL. table names the joined table and may
// be schema-qualified; the tract and run tables live in the same schema.
func NewPostgres(ctx context.Context, databaseURL, table string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	s := newPostgresStore(pool, table)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool, table string) *PostgresStore {
	if table == "" {
		table = "spd_census_joined"
	}
	schema := ""
	if i := strings.Index(table, "."); i >= 0 {
		schema = table[:i+1]
	}
	return &PostgresStore{
		pool:       pool,
		table:      table,
		tractTable: schema + "census_tracts",
		runTable:   schema + "join_runs",
	}
}

func (s *PostgresStore) migrationSQL() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	geoid       TEXT PRIMARY KEY,
	tract_id    TEXT NOT NULL,
	state_fips  TEXT,
	county_fips TEXT,
	name        TEXT,
	srid        INTEGER,
	geom        BYTEA
);

CREATE TABLE IF NOT EXISTS %[2]s (
	id            TEXT PRIMARY KEY,
	joined_table  TEXT NOT NULL,
	total_records INTEGER NOT NULL,
	final_records INTEGER NOT NULL,
	degraded      BOOLEAN NOT NULL DEFAULT false,
	stats         JSONB NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`, pgIdent(s.tractTable), pgIdent(s.runTable))
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, s.migrationSQL())
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun replaces the joined table, upserts the tract layer keyed by GEOID
// and records the run, all in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	if err := checkRun(run); err != nil {
		return err
	}

	kinds := columnKinds(run.Table)
	names := run.Table.Columns()
	cols := make([]db.Column, len(names))
	for i, n := range names {
		cols[i] = db.Column{Name: n, Type: postgresType(kinds[i])}
	}
	rows := make([][]any, len(run.Table.Records))
	for i := range run.Table.Records {
		rows[i] = run.Table.Row(i)
	}

	tractRows := make([][]any, 0, len(run.Tracts))
	for _, t := range run.Tracts {
		row, err := tractRow(t)
		if err != nil {
			return err
		}
		tractRows = append(tractRows, row)
	}

	var statsJSON []byte
	if run.Stats != nil {
		var err error
		if statsJSON, err = json.Marshal(run.Stats); err != nil {
			return eris.Wrap(err, "postgres: marshal stats")
		}
	}

	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if n, err = db.ReplaceTable(ctx, tx, s.table, cols, rows); err != nil {
			return eris.Wrap(err, "postgres: replace joined table")
		}
		if _, err = db.Upsert(ctx, tx, db.UpsertConfig{
			Table:        s.tractTable,
			Columns:      tractColumns,
			ConflictKeys: []string{"geoid"},
		}, tractRows); err != nil {
			return eris.Wrap(err, "postgres: upsert tracts")
		}
		if run.Stats == nil {
			return nil
		}
		_, err = tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, joined_table, total_records, final_records, degraded, stats, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, pgIdent(s.runTable)),
			run.Stats.RunID, s.table, run.Stats.TotalRecords, run.Stats.FinalRecords, run.Stats.Degraded,
			statsJSON, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		)
		return eris.Wrap(err, "postgres: insert run")
	})
	if err != nil {
		return err
	}

	zap.L().Info("store: wrote postgres",
		zap.String("table", s.table),
		zap.Int64("rows", n),
		zap.Int("tracts", len(run.Tracts)),
	)
	return nil
}

func pgIdent(table string) string {
	parts := strings.SplitN(table, ".", 2)
	return pgx.Identifier(parts).Sanitize()
}
