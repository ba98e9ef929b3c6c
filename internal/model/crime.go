package model

import "time"

// MatchPass records which spatial pass assigned a record's tract.
type MatchPass string

const (
	MatchNone   MatchPass = ""
	MatchWithin MatchPass = "within"
	MatchBuffer MatchPass = "buffer"
)

// CrimeTable is the loaded incident table. Columns is the original header;
// every record's Values are aligned with it and written back unchanged.
type CrimeTable struct {
	Columns []string
	Records []CrimeRecord
}

// CrimeRecord is one incident row plus the fields derived from it.
type CrimeRecord struct {
	ID       string
	Values   []string
	Occurred *time.Time
	Lat      *float64
	Lon      *float64

	// Derived during the pipeline.
	Year       *int
	TractID    string // normalized tract code, "" when unmatched
	TractGEOID string
	MatchPass  MatchPass
}

// HasCoordinates reports whether both coordinates parsed.
func (r *CrimeRecord) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// Len returns the number of records, tolerating a nil table.
func (t *CrimeTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}
