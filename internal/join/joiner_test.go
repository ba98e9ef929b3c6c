package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crime-census/internal/model"
)

func fp(v float64) *float64 { return &v }

func demoTable(rows ...model.DemographicRecord) *model.DemographicTable {
	return &model.DemographicTable{Attributes: []string{"TotalPopulation"}, Records: rows}
}

func demoRow(tract string, year int, pop float64) model.DemographicRecord {
	return model.DemographicRecord{
		TractID: tract,
		GEOID:   "53033" + tract,
		Year:    year,
		Values:  []*float64{fp(pop)},
	}
}

func TestJoiner_LookupByTractAndYear(t *testing.T) {
	j := NewJoiner(demoTable(
		demoRow("010100", 2015, 100),
		demoRow("010100", 2020, 200),
		demoRow("000200", 2020, 300),
	), nil, 2020)

	degraded, _ := j.Degraded()
	assert.False(t, degraded)
	assert.Equal(t, []int{2015, 2020}, j.SurveyYears())

	d, survey := j.Lookup("010100", intp(2019))
	require.NotNil(t, d)
	assert.Equal(t, 2020, survey)
	assert.InDelta(t, 200.0, *d.Values[0], 0.001)

	d, survey = j.Lookup("010100", intp(2016))
	require.NotNil(t, d)
	assert.Equal(t, 2015, survey)

	d, survey = j.Lookup("000200", intp(2015))
	assert.Nil(t, d, "no 2015 row for tract 000200")
	assert.Equal(t, 2015, survey)

	d, _ = j.Lookup("", intp(2020))
	assert.Nil(t, d)
}

func TestJoiner_ConfiguredSurveyYears(t *testing.T) {
	j := NewJoiner(demoTable(
		demoRow("010100", 2015, 100),
		demoRow("010100", 2020, 200),
	), []int{2020}, 2020)

	d, survey := j.Lookup("010100", intp(2015))
	require.NotNil(t, d)
	assert.Equal(t, 2020, survey)
}

func TestJoiner_DegradedOnDuplicateKey(t *testing.T) {
	j := NewJoiner(demoTable(
		demoRow("010100", 2015, 100),
		demoRow("010100", 2020, 200),
		demoRow("010100", 2020, 999),
	), nil, 2020)

	degraded, reason := j.Degraded()
	assert.True(t, degraded)
	assert.Contains(t, reason, "duplicate")
	assert.Equal(t, []int{2020}, j.SurveyYears())

	d, survey := j.Lookup("010100", intp(2015))
	require.NotNil(t, d)
	assert.Equal(t, 2020, survey)
	assert.InDelta(t, 200.0, *d.Values[0], 0.001, "first default-year row wins")
}

func TestJoiner_DegradedWithoutYears(t *testing.T) {
	j := NewJoiner(demoTable(), nil, 2020)

	degraded, reason := j.Degraded()
	assert.True(t, degraded)
	assert.Contains(t, reason, "no survey years")

	d, survey := j.Lookup("010100", nil)
	assert.Nil(t, d)
	assert.Equal(t, 2020, survey)
}

func TestJoiner_NilTable(t *testing.T) {
	j := NewJoiner(nil, []int{2020}, 2020)
	out := j.Join([]string{"id"}, []model.CrimeRecord{{ID: "1", TractID: "010100"}})
	require.Len(t, out.Records, 1)
	assert.Nil(t, out.Records[0].Demographic)
}

func TestJoiner_JoinKeepsEveryRecord(t *testing.T) {
	j := NewJoiner(demoTable(demoRow("010100", 2020, 200)), nil, 2020)

	records := []model.CrimeRecord{
		{ID: "1", TractID: "010100", Year: intp(2021)},
		{ID: "2", TractID: "", Year: intp(2021)},
		{ID: "3", TractID: "999900", Year: intp(2021)},
		{ID: "4", TractID: "010100"},
	}
	out := j.Join([]string{"id"}, records)

	require.Len(t, out.Records, 4)
	assert.Equal(t, []string{"TotalPopulation"}, out.Attributes)
	for i, r := range out.Records {
		assert.Equal(t, records[i].ID, r.Crime.ID)
	}
	assert.NotNil(t, out.Records[0].Demographic)
	assert.Nil(t, out.Records[1].Demographic)
	assert.Nil(t, out.Records[2].Demographic)
	assert.NotNil(t, out.Records[3].Demographic, "nil year maps to the default year")
	assert.Equal(t, 2020, out.Records[3].SurveyYear)
}
