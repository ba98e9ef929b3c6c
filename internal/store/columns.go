package store

import (
	"github.com/sells-group/crime-census/internal/model"
)

type cellKind int

const (
	kindText cellKind = iota
	kindInt
	kindFloat
)

// columnKinds returns the storage kind of each JoinedTable column, aligned
// with table.Columns(). Original crime fields stay text.
func columnKinds(table *model.JoinedTable) []cellKind {
	kinds := make([]cellKind, 0, len(table.CrimeColumns)+8+len(table.Attributes))
	for range table.CrimeColumns {
		kinds = append(kinds, kindText)
	}
	kinds = append(kinds,
		kindInt,  // crime_year
		kindText, // tract_geoid
		kindText, // tract_id
		kindText, // match_pass
		kindInt,  // survey_year
		kindInt,  // census_year
		kindText, // census_geoid
		kindText, // census_name
	)
	for range table.Attributes {
		kinds = append(kinds, kindFloat)
	}
	return kinds
}

func sqliteType(k cellKind) string {
	switch k {
	case kindInt:
		return "INTEGER"
	case kindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func postgresType(k cellKind) string {
	switch k {
	case kindInt:
		return "INTEGER"
	case kindFloat:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// tractColumns are the columns of the persisted tract layer.
var tractColumns = []string{"geoid", "tract_id", "state_fips", "county_fips", "name", "srid", "geom"}
