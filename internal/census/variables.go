// Package census downloads American Community Survey 5-year tract estimates
// for one county and loads them back as a demographic table.
package census

import "strings"

// Variable is an ACS detailed-table estimate and the column name it is
// stored under.
type Variable struct {
	Code string
	Name string
}

// Variables is the estimate catalogue requested for every survey year. The
// order is the column order of the saved files.
var Variables = []Variable{
	{Code: "B01003_001E", Name: "TotalPopulation"},
	{Code: "B19013_001E", Name: "MedianHouseholdIncome"},
	{Code: "B25077_001E", Name: "MedianHomeValue"},
	{Code: "B03002_001E", Name: "TotalRaceEthnicityPop"},
	{Code: "B03002_002E", Name: "NotHispanicLatino"},
	{Code: "B03002_003E", Name: "WhiteAlone"},
	{Code: "B03002_004E", Name: "BlackAfricanAmericanAlone"},
	{Code: "B03002_005E", Name: "AmericanIndianAlaskaNativeAlone"},
	{Code: "B03002_006E", Name: "AsianAlone"},
	{Code: "B03002_007E", Name: "NativeHawaiianPacificIslanderAlone"},
	{Code: "B03002_008E", Name: "SomeOtherRaceAlone"},
	{Code: "B03002_009E", Name: "TwoOrMoreRaces"},
	{Code: "B03002_012E", Name: "HispanicLatino"},
}

// Non-estimate columns of the saved files.
const (
	ColName   = "NAME"
	ColState  = "state"
	ColCounty = "county"
	ColTract  = "tract"
	ColGEOID  = "GEOID"
	ColYear   = "year"
)

// SentinelThreshold is the largest ACS annotation value. The API reports
// suppressed or unavailable estimates as large negative codes such as
// -666666666 and -222222222.
const SentinelThreshold = -222222222

// VariableCodes returns the catalogue's API codes.
func VariableCodes() []string {
	codes := make([]string, len(Variables))
	for i, v := range Variables {
		codes[i] = v.Code
	}
	return codes
}

// AttributeNames returns the catalogue's column names.
func AttributeNames() []string {
	names := make([]string, len(Variables))
	for i, v := range Variables {
		names[i] = v.Name
	}
	return names
}

// FileHeader is the header of per-year and combined CSV files.
func FileHeader() []string {
	h := []string{ColName}
	h = append(h, AttributeNames()...)
	return append(h, ColState, ColCounty, ColTract, ColGEOID, ColYear)
}

// lookupVariable resolves a column by API code or friendly name.
func lookupVariable(col string) (int, bool) {
	for i, v := range Variables {
		if strings.EqualFold(col, v.Code) || strings.EqualFold(col, v.Name) {
			return i, true
		}
	}
	return 0, false
}
