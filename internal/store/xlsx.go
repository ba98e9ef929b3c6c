package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/model"
)

// Sheet names used by XLSXStore.
const (
	SheetJoined  = "joined"
	SheetSummary = "summary"
)

// XLSXStore writes the joined table and run statistics to a workbook.
type XLSXStore struct {
	path string
}

// NewXLSX creates an XLSXStore writing to path.
func NewXLSX(path string) *XLSXStore {
	return &XLSXStore{path: path}
}

// SaveRun writes a "joined" sheet and a "summary" sheet. The workbook is
// saved under a temporary name and renamed into place.
func (s *XLSXStore) SaveRun(ctx context.Context, run *Run) error {
	if err := checkRun(run); err != nil {
		return err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetJoined)
	if err != nil {
		return eris.Wrap(err, "store: xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range run.Table.Columns() {
		header.AddCell().SetString(c)
	}
	for i := range run.Table.Records {
		if i%10000 == 0 && ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "store: xlsx: cancelled")
		}
		row := sheet.AddRow()
		for _, v := range run.Table.Row(i) {
			setCell(row.AddCell(), v)
		}
	}

	if run.Stats != nil {
		if err := addSummarySheet(f, run.Stats); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrap(err, "store: xlsx: create dir")
	}
	tmp := s.path + ".tmp"
	if err := f.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "store: xlsx: save")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "store: xlsx: rename")
	}

	zap.L().Info("store: wrote xlsx", zap.String("path", s.path), zap.Int("rows", len(run.Table.Records)))
	return nil
}

// Close is a no-op.
func (s *XLSXStore) Close() error { return nil }

func setCell(c *xlsx.Cell, v any) {
	switch x := v.(type) {
	case nil:
	case int:
		c.SetInt(x)
	case float64:
		c.SetFloat(x)
	default:
		c.SetString(FormatCell(v))
	}
}

func addSummarySheet(f *xlsx.File, st *model.Stats) error {
	sheet, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "store: xlsx: add summary sheet")
	}
	for _, kv := range statPairs(st) {
		row := sheet.AddRow()
		row.AddCell().SetString(kv[0])
		row.AddCell().SetString(kv[1])
	}
	return nil
}

// statPairs lists the run statistics as label/value text.
func statPairs(st *model.Stats) [][2]string {
	pairs := [][2]string{
		{"run_id", st.RunID},
		{"total_records", strconv.Itoa(st.TotalRecords)},
		{"eligible_records", strconv.Itoa(st.EligibleRecords)},
		{"matched_within", strconv.Itoa(st.MatchedWithin)},
		{"matched_buffer", strconv.Itoa(st.MatchedBuffer)},
		{"spatial_match_rate", strconv.FormatFloat(st.SpatialMatchRate, 'f', 2, 64)},
		{"cutoff_year", strconv.Itoa(st.CutoffYear)},
		{"final_records", strconv.Itoa(st.FinalRecords)},
		{"demographic_matched", strconv.Itoa(st.DemographicMatched)},
		{"tracts_with_crimes", strconv.Itoa(st.TractsWithCrimes)},
		{"avg_crimes_per_tract", strconv.FormatFloat(st.AvgCrimesPerTract, 'f', 2, 64)},
		{"degraded", strconv.FormatBool(st.Degraded)},
	}
	if st.DegradedReason != "" {
		pairs = append(pairs, [2]string{"degraded_reason", st.DegradedReason})
	}
	return pairs
}
