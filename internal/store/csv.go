package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/model"
)

// CSVStore writes the joined table to one CSV file.
type CSVStore struct {
	path string
}

// NewCSV creates a CSVStore writing to path.
func NewCSV(path string) *CSVStore {
	return &CSVStore{path: path}
}

// SaveRun writes run.Table to the store's path.
func (s *CSVStore) SaveRun(ctx context.Context, run *Run) error {
	if err := checkRun(run); err != nil {
		return err
	}
	return WriteCSV(ctx, s.path, run.Table)
}

// Close is a no-op.
func (s *CSVStore) Close() error { return nil }

// WriteCSV writes table to path with every column, nulls as empty fields.
// The file is assembled under a temporary name and renamed into place, so
// path holds either the previous file or the complete new one.
func WriteCSV(ctx context.Context, path string, table *model.JoinedTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "store: csv: create dir")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "store: csv: create temp file")
	}
	tmpPath := tmp.Name()
	fail := func(err error, msg string) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return eris.Wrap(err, msg)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(table.Columns()); err != nil {
		return fail(err, "store: csv: write header")
	}
	rec := make([]string, len(table.Columns()))
	for i := range table.Records {
		if i%10000 == 0 && ctx.Err() != nil {
			return fail(ctx.Err(), "store: csv: cancelled")
		}
		for j, v := range table.Row(i) {
			rec[j] = FormatCell(v)
		}
		if err := w.Write(rec); err != nil {
			return fail(err, "store: csv: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fail(err, "store: csv: flush")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return eris.Wrap(err, "store: csv: close")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return eris.Wrap(err, "store: csv: rename")
	}

	zap.L().Info("store: wrote csv", zap.String("path", path), zap.Int("rows", len(table.Records)))
	return nil
}

// FormatCell renders a JoinedTable cell as text. Nil is the empty string.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
