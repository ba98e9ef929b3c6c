package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crime-census/internal/census"
	"github.com/sells-group/crime-census/internal/config"
	"github.com/sells-group/crime-census/internal/join"
	"github.com/sells-group/crime-census/internal/store"
)

const testPRJ = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

const testCrimeCSV = `Offense ID,Offense Date,Offense,Latitude,Longitude
1,03/14/2018 09:30:00 PM,THEFT,47.61,-122.34
2,01/02/2023 11:00:00 AM,BURGLARY,47.615,-122.345
3,06/01/2012 01:00:00 PM,ASSAULT,47.61,-122.34
4,07/04/2020 10:00:00 PM,FRAUD,-1,-1
`

func testConfig(dir string) *config.Config {
	return &config.Config{
		Paths: config.PathsConfig{
			CrimeCSV:  filepath.Join(dir, "crime.csv"),
			CrimeDir:  filepath.Join(dir, "downloads"),
			CensusCSV: filepath.Join(dir, "census.csv"),
			CensusDir: filepath.Join(dir, "downloads"),
			TractDir:  filepath.Join(dir, "tracts"),
			Output:    filepath.Join(dir, "out", "joined.csv"),
			Report:    filepath.Join(dir, "out", "report.yaml"),
		},
		Crime: config.CrimeConfig{
			IDColumn:   "Offense ID",
			DateColumn: "Offense Date",
			LatColumn:  "Latitude",
			LonColumn:  "Longitude",
		},
		Tiger: config.TigerConfig{CountyFIPS: "033"},
		Join: config.JoinConfig{
			CutoffYear:    2015,
			DefaultYear:   2020,
			BufferDegrees: 0.0001,
			Sentinel:      -1,
			BBox:          config.BBoxConfig{MinLat: 47, MaxLat: 48, MinLon: -123, MaxLon: -121},
		},
		Store: config.StoreConfig{Driver: "csv", Table: "spd_census_joined"},
	}
}

func writeCensusCSV(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(census.FileHeader()))
	for _, year := range []string{"2019", "2022"} {
		row := []string{"Census Tract 101, King County, Washington"}
		for range census.Variables {
			row = append(row, "100")
		}
		row = append(row, "53", "033", "010100", "53033010100", year)
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
}

func writeTractFixture(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "tl_2020_53_tract.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("STATEFP", 2),
		shp.StringField("COUNTYFP", 3),
		shp.StringField("TRACTCE", 6),
		shp.StringField("GEOID", 11),
		shp.StringField("NAME", 7),
	}))
	ring := []shp.Point{
		{X: -122.35, Y: 47.60},
		{X: -122.35, Y: 47.62},
		{X: -122.33, Y: 47.62},
		{X: -122.33, Y: 47.60},
		{X: -122.35, Y: 47.60},
	}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
	row := int(w.Write(&poly))
	for i, v := range []string{"53", "033", "010100", "53033010100", "101"} {
		require.NoError(t, w.WriteAttribute(row, i, v))
	}
	w.Close()
	// go-shp names the attribute table "<base>dbf".
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tl_2020_53_tract.prj"), []byte(testPRJ), 0o644))
}

func writeFixtures(t *testing.T, c *config.Config) {
	t.Helper()
	require.NoError(t, os.WriteFile(c.Paths.CrimeCSV, []byte(testCrimeCSV), 0o644))
	writeCensusCSV(t, c.Paths.CensusCSV)
	writeTractFixture(t, filepath.Join(c.Paths.TractDir, "tl_2020_53_tract"))
}

func TestRunJoin_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(dir)
	writeFixtures(t, c)

	var out bytes.Buffer
	stats, err := runJoin(context.Background(), c, resolveInputs(c), &out)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalRecords)
	assert.Equal(t, 3, stats.EligibleRecords)
	assert.Equal(t, 3, stats.MatchedWithin)
	assert.Equal(t, 0, stats.MatchedBuffer)
	assert.InDelta(t, 75.0, stats.SpatialMatchRate, 1e-9)
	assert.Equal(t, 3, stats.FinalRecords)
	assert.Equal(t, 2, stats.DemographicMatched)
	assert.Equal(t, 1, stats.TractsWithCrimes)
	assert.Equal(t, []int{2019, 2022}, stats.SurveyYears)
	assert.False(t, stats.Degraded)
	assert.Contains(t, out.String(), "Total records:")

	f, err := os.Open(c.Paths.Output)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Offense ID", rows[0][0])

	report, err := store.ReadReport(c.Paths.Report)
	require.NoError(t, err)
	assert.Equal(t, stats.RunID, report.Stats.RunID)
	assert.Equal(t, "csv", report.Driver)
	assert.Equal(t, c.Paths.Output, report.Output)
	require.NotNil(t, report.Analysis)
	assert.Equal(t, stats.DemographicMatched, report.Analysis.Matched)
	assert.Contains(t, out.String(), "Crimes by year:")
}

func TestRunJoin_SQLiteDriver(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(dir)
	c.Store.Driver = "sqlite"
	c.Paths.Output = filepath.Join(dir, "out", "joined.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(c.Paths.Output), 0o755))
	writeFixtures(t, c)

	stats, err := runJoin(context.Background(), c, resolveInputs(c), &bytes.Buffer{})
	require.NoError(t, err)

	st, err := store.NewSQLite(c.Paths.Output, c.Store.Table)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	n, err := st.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.FinalRecords, n)
}

func TestRunJoin_MissingInputs(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(dir)
	require.NoError(t, os.WriteFile(c.Paths.CrimeCSV, []byte(testCrimeCSV), 0o644))

	_, err := runJoin(context.Background(), c, resolveInputs(c), &bytes.Buffer{})
	require.Error(t, err)

	var missing *join.MissingInputsError
	require.True(t, errors.As(err, &missing))
	assert.Len(t, missing.Missing, 2)
	assert.Contains(t, err.Error(), "census data")
	assert.Contains(t, err.Error(), "tract shapefile")

	_, statErr := os.Stat(c.Paths.Output)
	assert.True(t, os.IsNotExist(statErr), "no output on failure")
}

func TestResolveInputs_LatestDownload(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(dir)
	c.Paths.CrimeCSV = ""
	require.NoError(t, os.MkdirAll(c.Paths.CrimeDir, 0o755))
	older := filepath.Join(c.Paths.CrimeDir, "SPD_Crime_Data__2008-Present_20240101.csv")
	newer := filepath.Join(c.Paths.CrimeDir, "SPD_Crime_Data__2008-Present_20250727.csv")
	require.NoError(t, os.WriteFile(older, []byte(testCrimeCSV), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte(testCrimeCSV), 0o644))

	in := resolveInputs(c)
	assert.Equal(t, newer, in.CrimeCSV)
	assert.Empty(t, in.CensusCSV)
	assert.Empty(t, in.Shapefile)
}

func TestResolveInputs_EmptyFileIsMissing(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(dir)
	require.NoError(t, os.WriteFile(c.Paths.CrimeCSV, nil, 0o644))

	assert.Empty(t, resolveInputs(c).CrimeCSV)
}

func TestPipelineOptions(t *testing.T) {
	c := testConfig(t.TempDir())
	c.Join.SurveyYears = []int{2018, 2022}

	opts := pipelineOptions(c)
	assert.Equal(t, 47.0, opts.Bounds.MinLat)
	assert.Equal(t, -121.0, opts.Bounds.MaxLon)
	assert.Equal(t, -1.0, opts.Bounds.Sentinel)
	assert.Equal(t, 0.0001, opts.BufferDegrees)
	assert.Equal(t, 2015, opts.CutoffYear)
	assert.Equal(t, 2020, opts.DefaultYear)
	assert.Equal(t, []int{2018, 2022}, opts.SurveyYears)
}

func TestApplyJoinFlags(t *testing.T) {
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		addJoinFlags(cmd)
		return cmd
	}

	t.Run("defaults leave config alone", func(t *testing.T) {
		c := testConfig(t.TempDir())
		want := *c
		require.NoError(t, applyJoinFlags(newCmd(), c))
		assert.Equal(t, want, *c)
	})

	t.Run("overrides", func(t *testing.T) {
		c := testConfig(t.TempDir())
		cmd := newCmd()
		require.NoError(t, cmd.Flags().Parse([]string{
			"--crime-csv", "x.csv", "--output", "y.xlsx", "--driver", "xlsx", "--cutoff-year", "0",
		}))
		require.NoError(t, applyJoinFlags(cmd, c))
		assert.Equal(t, "x.csv", c.Paths.CrimeCSV)
		assert.Equal(t, "y.xlsx", c.Paths.Output)
		assert.Equal(t, "xlsx", c.Store.Driver)
		assert.Equal(t, 0, c.Join.CutoffYear)
	})

	t.Run("negative cutoff", func(t *testing.T) {
		cmd := newCmd()
		require.NoError(t, cmd.Flags().Parse([]string{"--cutoff-year", "-5"}))
		err := applyJoinFlags(cmd, testConfig(t.TempDir()))
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "cutoff-year"))
	})
}
