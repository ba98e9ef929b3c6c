// Package join aligns crime records with census tracts in space and with
// ACS survey years in time, and assembles the joined output table.
package join

import (
	"slices"

	"github.com/rotisserie/eris"
)

// YearMapper maps crime years onto the available survey years.
type YearMapper struct {
	years       []int
	defaultYear int
}

// NewYearMapper builds a mapper over the given survey years. Duplicates and
// order are ignored. defaultYear is returned for records with no year.
func NewYearMapper(years []int, defaultYear int) (*YearMapper, error) {
	var ys []int
	for _, y := range years {
		if y > 0 {
			ys = append(ys, y)
		}
	}
	if len(ys) == 0 {
		return nil, eris.New("join: no survey years available")
	}
	slices.Sort(ys)
	return &YearMapper{years: slices.Compact(ys), defaultYear: defaultYear}, nil
}

// Years returns the survey years in ascending order.
func (m *YearMapper) Years() []int {
	return slices.Clone(m.years)
}

// Default is the year used for records with no event year.
func (m *YearMapper) Default() int {
	return m.defaultYear
}

// Map returns the survey year for a crime year. Years outside the survey
// range clamp to its ends; otherwise the closest survey year wins, the
// earlier one on a tie. A nil year maps to the default.
func (m *YearMapper) Map(year *int) int {
	if year == nil {
		return m.defaultYear
	}
	y := *year
	first, last := m.years[0], m.years[len(m.years)-1]
	if y <= first {
		return first
	}
	if y >= last {
		return last
	}

	// years[i-1] < y <= years[i]
	i, found := slices.BinarySearch(m.years, y)
	if found {
		return y
	}
	lo, hi := m.years[i-1], m.years[i]
	if y-lo <= hi-y {
		return lo
	}
	return hi
}
