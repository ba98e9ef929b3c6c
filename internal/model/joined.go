package model

// Derived column names appended after the original crime columns.
const (
	ColCrimeYear   = "crime_year"
	ColTractGEOID  = "tract_geoid"
	ColTractID     = "tract_id"
	ColMatchPass   = "match_pass"
	ColSurveyYear  = "survey_year"
	ColCensusYear  = "census_year"
	ColCensusGEOID = "census_geoid"
	ColCensusName  = "census_name"

	derivedColumns = 8
)

// JoinedTable is the pipeline output: every surviving crime record with its
// tract and year-matched demographics.
type JoinedTable struct {
	CrimeColumns []string
	Attributes   []string
	Records      []JoinedRecord
}

// JoinedRecord pairs a crime with the demographic row chosen for it.
// SurveyYear is the year the crime year mapped to, set even when
// Demographic is nil because no (tract, year) match exists.
type JoinedRecord struct {
	Crime       CrimeRecord
	SurveyYear  int
	Demographic *DemographicRecord
}

// Columns returns the full output header.
func (t *JoinedTable) Columns() []string {
	cols := make([]string, 0, len(t.CrimeColumns)+derivedColumns+len(t.Attributes))
	cols = append(cols, t.CrimeColumns...)
	cols = append(cols, ColCrimeYear, ColTractGEOID, ColTractID, ColMatchPass,
		ColSurveyYear, ColCensusYear, ColCensusGEOID, ColCensusName)
	cols = append(cols, t.Attributes...)
	return cols
}

// Row flattens record i into nullable cells aligned with Columns. A nil cell
// is a null value.
func (t *JoinedTable) Row(i int) []any {
	rec := t.Records[i]
	row := make([]any, 0, len(t.CrimeColumns)+derivedColumns+len(t.Attributes))
	for j := range t.CrimeColumns {
		if j < len(rec.Crime.Values) {
			row = append(row, rec.Crime.Values[j])
		} else {
			row = append(row, nil)
		}
	}

	if rec.Crime.Year != nil {
		row = append(row, *rec.Crime.Year)
	} else {
		row = append(row, nil)
	}
	row = append(row, nullString(rec.Crime.TractGEOID), nullString(rec.Crime.TractID),
		nullString(string(rec.Crime.MatchPass)))
	if rec.SurveyYear != 0 {
		row = append(row, rec.SurveyYear)
	} else {
		row = append(row, nil)
	}

	d := rec.Demographic
	if d == nil {
		row = append(row, nil, nil, nil)
		for range t.Attributes {
			row = append(row, nil)
		}
		return row
	}

	row = append(row, d.Year, nullString(d.GEOID), nullString(d.Name))
	for j := range t.Attributes {
		if j < len(d.Values) && d.Values[j] != nil {
			row = append(row, *d.Values[j])
		} else {
			row = append(row, nil)
		}
	}
	return row
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
