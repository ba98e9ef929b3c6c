package model

// Stats are the counts reported after a join run. They describe coverage
// and are never used to decide success.
type Stats struct {
	RunID              string  `yaml:"run_id" json:"run_id"`
	TotalRecords       int     `yaml:"total_records" json:"total_records"`
	EligibleRecords    int     `yaml:"eligible_records" json:"eligible_records"`
	MatchedWithin      int     `yaml:"matched_within" json:"matched_within"`
	MatchedBuffer      int     `yaml:"matched_buffer" json:"matched_buffer"`
	SpatialMatchRate   float64 `yaml:"spatial_match_rate" json:"spatial_match_rate"`
	CutoffYear         int     `yaml:"cutoff_year" json:"cutoff_year"`
	FinalRecords       int     `yaml:"final_records" json:"final_records"`
	DemographicMatched int     `yaml:"demographic_matched" json:"demographic_matched"`
	TractsWithCrimes   int     `yaml:"tracts_with_crimes" json:"tracts_with_crimes"`
	AvgCrimesPerTract  float64 `yaml:"avg_crimes_per_tract" json:"avg_crimes_per_tract"`
	SurveyYears        []int   `yaml:"survey_years" json:"survey_years"`
	Degraded           bool    `yaml:"degraded" json:"degraded"`
	DegradedReason     string  `yaml:"degraded_reason,omitempty" json:"degraded_reason,omitempty"`
}

// SpatialMatched is the number of records assigned a tract by either pass.
func (s Stats) SpatialMatched() int {
	return s.MatchedWithin + s.MatchedBuffer
}
