package model

import "slices"

// DemographicTable holds ACS tract estimates for one or more survey years.
// Attributes names the numeric columns; each record's Values is aligned with it.
type DemographicTable struct {
	Attributes []string
	Records    []DemographicRecord
}

// DemographicRecord is one (tract, survey year) row. A nil value is a
// missing or suppressed estimate.
type DemographicRecord struct {
	TractID string
	GEOID   string
	Name    string
	Year    int
	Values  []*float64
}

// Years returns the distinct survey years in ascending order.
func (t *DemographicTable) Years() []int {
	if t == nil {
		return nil
	}
	seen := make(map[int]bool)
	var years []int
	for _, r := range t.Records {
		if r.Year == 0 || seen[r.Year] {
			continue
		}
		seen[r.Year] = true
		years = append(years, r.Year)
	}
	slices.Sort(years)
	return years
}

// Len returns the number of records, tolerating a nil table.
func (t *DemographicTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}
