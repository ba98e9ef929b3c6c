package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Column is a column name and its PostgreSQL type.
type Column struct {
	Name string
	Type string
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// CopyFrom bulk-inserts rows with the COPY protocol. Schema-qualified names
// ("crime.spd_census_joined") are accepted.
func CopyFrom(ctx context.Context, q Querier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := q.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// ReplaceTable creates table if needed, empties it and COPYs rows in. Run it
// inside InTx so readers see either the previous contents or the new ones.
func ReplaceTable(ctx context.Context, q Querier, table string, cols []Column, rows [][]any) (int64, error) {
	if len(cols) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}
	if _, err := q.Exec(ctx, CreateTableSQL(table, cols)); err != nil {
		return 0, eris.Wrapf(err, "db: replace: create %s", table)
	}
	if _, err := q.Exec(ctx, "TRUNCATE "+sanitizeTable(table)); err != nil {
		return 0, eris.Wrapf(err, "db: replace: truncate %s", table)
	}
	return CopyFrom(ctx, q, table, ColumnNames(cols), rows)
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for cols.
func CreateTableSQL(table string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sanitizeTable(table), strings.Join(defs, ", "))
}

func identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}

// sanitizeTable quotes plain or schema-qualified table names.
func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
