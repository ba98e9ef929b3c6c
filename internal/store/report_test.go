package store

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "report.yaml")
	r := &Report{
		GeneratedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Inputs:      map[string]string{"crime": "crime.csv"},
		Output:      "out.csv",
		Driver:      DriverCSV,
		Stats:       *sampleStats(),
	}
	require.NoError(t, WriteReport(path, r))

	got, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, r.Stats, got.Stats)
	assert.Equal(t, "crime.csv", got.Inputs["crime"])
	assert.True(t, r.GeneratedAt.Equal(got.GeneratedAt))
}

func TestReadReport_Missing(t *testing.T) {
	_, err := ReadReport(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
}

func TestSummary(t *testing.T) {
	st := sampleStats()
	st.TotalRecords = 1234567
	st.Degraded = true
	st.DegradedReason = "duplicate demographic row"

	var buf bytes.Buffer
	Summary(&buf, st)
	out := buf.String()

	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, "After 2015 cutoff")
	assert.Contains(t, out, "[2015 2020]")
	assert.Contains(t, out, "DEGRADED JOIN:         duplicate demographic row")
}
