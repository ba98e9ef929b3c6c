package census

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/fetcher"
	"github.com/sells-group/crime-census/internal/geoid"
	"github.com/sells-group/crime-census/internal/model"
)

// Load reads a demographic table from a CSV or .xlsx file. The tract is
// taken from the tract column when present, else from GEOID; every
// identifier is normalized to the 6-digit tract code. Columns matching the
// variable catalogue, by API code or by name, become attributes.
func Load(ctx context.Context, path string) (*model.DemographicTable, error) {
	header, rows, err := readTable(ctx, path)
	if err != nil {
		return nil, err
	}
	return FromRows(header, rows)
}

func readTable(ctx context.Context, path string) ([]string, [][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, nil, eris.Wrap(err, "census: read xlsx")
		}
		return header, rows, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "census: open")
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f)
	if err != nil {
		return nil, nil, eris.Wrap(err, "census: read csv")
	}
	return header, rows, nil
}

// FromRows builds a demographic table from a header and its rows.
func FromRows(header []string, rows [][]string) (*model.DemographicTable, error) {
	log := zap.L().With(zap.String("component", "census.load"))
	idx := fetcher.NewHeaderIndex(header)

	tractCol, hasTract := idx.Lookup(ColTract)
	geoidCol, hasGEOID := idx.Lookup(ColGEOID)
	if !hasGEOID {
		geoidCol, hasGEOID = idx.Lookup("GEO_ID")
	}
	if !hasTract && !hasGEOID {
		return nil, eris.New("census: no tract or GEOID column")
	}
	yearCol, ok := idx.Lookup(ColYear)
	if !ok {
		return nil, eris.New("census: no year column")
	}
	nameCol, hasName := idx.Lookup(ColName)
	stateCol, hasState := idx.Lookup(ColState)
	countyCol, hasCounty := idx.Lookup(ColCounty)

	// Attribute columns in catalogue order.
	attrCols := make([]int, len(Variables))
	var attrs []string
	var positions []int
	for i := range attrCols {
		attrCols[i] = -1
	}
	for col, name := range header {
		if vi, ok := lookupVariable(name); ok && attrCols[vi] < 0 {
			attrCols[vi] = col
		}
	}
	for vi, col := range attrCols {
		if col >= 0 {
			attrs = append(attrs, Variables[vi].Name)
			positions = append(positions, col)
		}
	}
	if len(attrs) == 0 {
		return nil, eris.New("census: no demographic attribute columns")
	}

	table := &model.DemographicTable{Attributes: attrs, Records: make([]model.DemographicRecord, 0, len(rows))}
	var skipped, suppressed int
	for _, row := range rows {
		year, err := strconv.Atoi(strings.TrimSpace(row[yearCol]))
		if err != nil {
			skipped++
			continue
		}

		var tract, gid string
		if hasTract {
			tract = geoid.NormalizeTract(row[tractCol])
		}
		if hasGEOID {
			raw := strings.TrimPrefix(strings.TrimSpace(row[geoidCol]), "1400000US")
			if tract == "" {
				tract = geoid.NormalizeTract(raw)
			}
			if len(raw) == 11 {
				gid = raw
			}
		}
		if tract == "" {
			skipped++
			continue
		}
		if hasState && hasCounty {
			if built := geoid.Build(row[stateCol], row[countyCol], tract); built != "" {
				gid = built
			}
		}

		rec := model.DemographicRecord{
			TractID: tract,
			GEOID:   gid,
			Year:    year,
			Values:  make([]*float64, len(positions)),
		}
		if hasName {
			rec.Name = strings.TrimSpace(row[nameCol])
		}
		for i, col := range positions {
			v, ok := ParseEstimate(row[col])
			if ok {
				rec.Values[i] = v
			} else if strings.TrimSpace(row[col]) != "" {
				suppressed++
			}
		}
		table.Records = append(table.Records, rec)
	}

	log.Debug("census rows recovered",
		zap.Int("skipped", skipped),
		zap.Int("null_estimates", suppressed),
	)
	log.Info("loaded census records",
		zap.Int("rows", len(table.Records)),
		zap.Ints("years", table.Years()),
		zap.Int("attributes", len(attrs)),
	)
	return table, nil
}

// ParseEstimate parses an ACS estimate. Blank, non-numeric and annotation
// values return ok=false.
func ParseEstimate(s string) (*float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= SentinelThreshold {
		return nil, false
	}
	return &v, true
}
