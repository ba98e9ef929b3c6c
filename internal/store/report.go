package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crime-census/internal/model"
)

// Report is the run report written next to the joined output.
type Report struct {
	GeneratedAt time.Time         `yaml:"generated_at"`
	Inputs      map[string]string `yaml:"inputs,omitempty"`
	Output      string            `yaml:"output"`
	Driver      string            `yaml:"driver"`
	Stats       model.Stats       `yaml:"stats"`
	Analysis    *Analysis         `yaml:"analysis,omitempty"`
}

// WriteReport writes r to path as YAML.
func WriteReport(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "store: marshal report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "store: create report dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "store: write report")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "store: rename report")
	}
	return nil
}

// ReadReport reads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "store: read report")
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "store: parse report")
	}
	return &r, nil
}

// Summary prints the headline statistics with thousands separators.
func Summary(w io.Writer, st *model.Stats) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "Total records:         %d\n", st.TotalRecords)
	p.Fprintf(w, "Passed coord filter:   %d\n", st.EligibleRecords)
	p.Fprintf(w, "Spatially matched:     %d (%.2f%%; %d within, %d buffer)\n",
		st.SpatialMatched(), st.SpatialMatchRate, st.MatchedWithin, st.MatchedBuffer)
	if st.CutoffYear > 0 {
		p.Fprintf(w, "After %s cutoff:     %d\n", strconv.Itoa(st.CutoffYear), st.FinalRecords)
	} else {
		p.Fprintf(w, "Final records:         %d\n", st.FinalRecords)
	}
	p.Fprintf(w, "Demographic matches:   %d\n", st.DemographicMatched)
	p.Fprintf(w, "Tracts with crimes:    %d (avg %.1f per tract)\n", st.TractsWithCrimes, st.AvgCrimesPerTract)
	p.Fprintf(w, "Survey years:          %s\n", fmt.Sprint(st.SurveyYears))
	if st.Degraded {
		p.Fprintf(w, "DEGRADED JOIN:         %s\n", st.DegradedReason)
	}
}
