package census

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_GEOIDOnly(t *testing.T) {
	path := writeFile(t, "census.csv", `GEOID,year,B01003_001E,B19013_001E
1400000US53033010101,2020,4520,-222222222
53033000100,2015,3100,81000
,2015,1,1
53033000200,n/a,1,1
`)

	table, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"TotalPopulation", "MedianHouseholdIncome"}, table.Attributes)
	require.Len(t, table.Records, 2)

	assert.Equal(t, "010101", table.Records[0].TractID)
	assert.Equal(t, "53033010101", table.Records[0].GEOID)
	assert.Equal(t, 2020, table.Records[0].Year)
	assert.Nil(t, table.Records[0].Values[1])

	assert.Equal(t, "000100", table.Records[1].TractID)
	require.NotNil(t, table.Records[1].Values[1])
	assert.InDelta(t, 81000.0, *table.Records[1].Values[1], 0.001)
}

func TestLoad_TractColumnPreferred(t *testing.T) {
	// GEOID here is the reversed tract+county+state string some exports
	// carry; the tract column wins.
	path := writeFile(t, "census.csv", `NAME,TotalPopulation,state,county,tract,GEOID,year
"Census Tract 1.01",2500,53,033,000101,00010103353,2019
`)

	table, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "000101", table.Records[0].TractID)
	assert.Equal(t, "53033000101", table.Records[0].GEOID)
	assert.Equal(t, "Census Tract 1.01", table.Records[0].Name)
}

func TestLoad_MissingColumns(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no tract", "year,TotalPopulation\n2020,1\n", "no tract or GEOID column"},
		{"no year", "tract,TotalPopulation\n000100,1\n", "no year column"},
		{"no attributes", "tract,year,other\n000100,2020,1\n", "no demographic attribute columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeFile(t, "c.csv", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("ACS")
	require.NoError(t, err)
	for _, cells := range [][]string{
		{"tract", "year", "MedianHomeValue"},
		{"101.01", "2023", "725000"},
	} {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "census.xlsx")
	require.NoError(t, f.Save(path))

	table, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "010101", table.Records[0].TractID)
	assert.Equal(t, []string{"MedianHomeValue"}, table.Attributes)
	assert.InDelta(t, 725000.0, *table.Records[0].Values[0], 0.001)
}

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"123", 123, true},
		{" 45.5 ", 45.5, true},
		{"0", 0, true},
		{"-1", -1, true},
		{"-222222222", 0, false},
		{"-666666666", 0, false},
		{"", 0, false},
		{"N", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		v, ok := ParseEstimate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			require.NotNil(t, v)
			assert.InDelta(t, tt.want, *v, 1e-9, tt.in)
		}
	}
}
