// Package crime loads Seattle Police Department incident exports, filters
// them to plausible coordinates, and downloads fresh copies from the Seattle
// open data portal.
package crime

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/fetcher"
	"github.com/sells-group/crime-census/internal/model"
)

// Columns names the header fields the loader needs.
type Columns struct {
	ID   string
	Date string
	Lat  string
	Lon  string
}

// DefaultColumns matches the current SPD "Crime Data: 2008-Present" export.
func DefaultColumns() Columns {
	return Columns{
		ID:   "Offense ID",
		Date: "Offense Date",
		Lat:  "Latitude",
		Lon:  "Longitude",
	}
}

// LoadOptions configures Load.
type LoadOptions struct {
	Columns Columns
	// Sentinel is the placeholder the source writes for unknown coordinates.
	Sentinel float64
}

// dateLayouts are tried in order. The first is the Socrata CSV export format.
var dateLayouts = []string{
	"01/02/2006 03:04:05 PM",
	"2006 Jan 02 03:04:05 PM",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"2006-01-02",
}

// ParseDate parses an incident timestamp. Blank or unrecognised values
// return nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseCoordinate parses a coordinate. Non-numeric, non-finite and sentinel
// values return nil.
func ParseCoordinate(s string, sentinel float64) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v == sentinel {
		return nil
	}
	return &v
}

// Load reads an incident CSV. Malformed dates and coordinates become nil;
// only a missing required column or an unreadable file is an error.
func Load(ctx context.Context, r io.Reader, opts LoadOptions) (*model.CrimeTable, error) {
	log := zap.L().With(zap.String("component", "crime.load"))

	header, rows, err := fetcher.ReadCSV(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "crime: read csv")
	}

	idx := fetcher.NewHeaderIndex(header)
	cols := opts.Columns
	positions := make(map[string]int, 4)
	var missing []string
	for _, name := range []string{cols.ID, cols.Date, cols.Lat, cols.Lon} {
		i, ok := idx.Lookup(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		positions[name] = i
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("crime: missing columns %s", strings.Join(missing, ", "))
	}

	table := &model.CrimeTable{
		Columns: header,
		Records: make([]model.CrimeRecord, 0, len(rows)),
	}

	var badDates, badCoords int
	for _, row := range rows {
		rec := model.CrimeRecord{
			ID:       row[positions[cols.ID]],
			Values:   row,
			Occurred: ParseDate(row[positions[cols.Date]]),
			Lat:      ParseCoordinate(row[positions[cols.Lat]], opts.Sentinel),
			Lon:      ParseCoordinate(row[positions[cols.Lon]], opts.Sentinel),
		}
		if rec.Occurred != nil {
			y := rec.Occurred.Year()
			rec.Year = &y
		} else {
			badDates++
		}
		if !rec.HasCoordinates() {
			badCoords++
		}
		table.Records = append(table.Records, rec)
	}

	log.Debug("null values substituted",
		zap.Int("dates", badDates),
		zap.Int("coordinates", badCoords),
	)
	log.Info("loaded crime records", zap.Int("rows", len(table.Records)), zap.Int("columns", len(header)))

	return table, nil
}
