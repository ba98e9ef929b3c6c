// Package store persists joined crime/census tables and the run that
// produced them. CSV and XLSX stores write a single file; SQLite and
// Postgres stores also keep a run log and the tract layer.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crime-census/internal/model"
)

// Drivers accepted by Open.
const (
	DriverCSV      = "csv"
	DriverXLSX     = "xlsx"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Run is one completed join ready to persist.
type Run struct {
	Table      *model.JoinedTable
	Stats      *model.Stats
	Tracts     []model.TractPolygon
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store defines the persistence interface for join runs. A SaveRun either
// leaves the complete table in place or fails without replacing the
// previous one.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	Driver      string
	Path        string // output file for csv, xlsx and sqlite
	DatabaseURL string // postgres
	Table       string // joined table name for sqlite and postgres
}

// Open returns the Store for opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverCSV, "":
		return NewCSV(opts.Path), nil
	case DriverXLSX:
		return NewXLSX(opts.Path), nil
	case DriverSQLite:
		st, err := NewSQLite(opts.Path, opts.Table)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case DriverPostgres:
		st, err := NewPostgres(ctx, opts.DatabaseURL, opts.Table)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}

func checkRun(run *Run) error {
	if run == nil || run.Table == nil {
		return eris.New("store: run has no table")
	}
	return nil
}
