package join

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/crime"
	"github.com/sells-group/crime-census/internal/model"
	"github.com/sells-group/crime-census/internal/spatial"
)

// Default policy values.
const (
	DefaultCutoffYear = 2015
	DefaultSurveyYear = 2020
)

// ErrNoTracts is returned when the tract layer loaded but holds no tracts,
// for example after a county filter that matched nothing.
var ErrNoTracts = eris.New("join: tract layer has no tracts")

// MissingInputsError reports required inputs that are absent. No work is
// done when it is returned.
type MissingInputsError struct {
	Missing []string
}

func (e *MissingInputsError) Error() string {
	return "join: missing inputs: " + strings.Join(e.Missing, ", ")
}

// Inputs are the loaded tables the pipeline joins.
type Inputs struct {
	Crimes       *model.CrimeTable
	Tracts       []model.TractPolygon
	Demographics *model.DemographicTable
}

// Options configures a Pipeline.
type Options struct {
	Bounds        crime.Bounds
	BufferDegrees float64
	// CutoffYear drops records whose crime year is before it, including
	// records with no year. Zero keeps everything.
	CutoffYear  int
	DefaultYear int
	// SurveyYears restricts the years crime years map onto. Empty means
	// the years present in the demographic table.
	SurveyYears []int
}

// DefaultOptions returns the Seattle/King County settings.
func DefaultOptions() Options {
	return Options{
		Bounds:        crime.SeattleBounds(),
		BufferDegrees: spatial.DefaultBufferDegrees,
		CutoffYear:    DefaultCutoffYear,
		DefaultYear:   DefaultSurveyYear,
	}
}

// Pipeline runs filter, spatial match, cutoff and demographic join in order.
type Pipeline struct {
	opts  Options
	newID func() string
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.DefaultYear == 0 {
		opts.DefaultYear = DefaultSurveyYear
	}
	return &Pipeline{opts: opts, newID: uuid.NewString}
}

// Run joins in. Records are enriched in place with tract fields. Row-level
// problems never fail the run; a missing input or an unusable tract layer
// does.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*model.JoinedTable, *model.Stats, error) {
	log := zap.L().With(zap.String("component", "join.pipeline"))

	if err := checkInputs(in); err != nil {
		return nil, nil, err
	}

	stats := &model.Stats{
		RunID:        p.newID(),
		TotalRecords: in.Crimes.Len(),
		CutoffYear:   p.opts.CutoffYear,
	}
	records := in.Crimes.Records

	eligible := crime.Filter(records, p.opts.Bounds)
	stats.EligibleRecords = len(eligible)
	log.Info("coordinate filter applied",
		zap.Int("total", stats.TotalRecords),
		zap.Int("eligible", stats.EligibleRecords),
	)
	if err := ctx.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "join: cancelled")
	}

	matcher, err := spatial.NewMatcher(in.Tracts, spatial.Options{BufferDegrees: p.opts.BufferDegrees})
	if err != nil {
		return nil, nil, eris.Wrap(err, "join: build matcher")
	}
	ms := matcher.MatchRecords(records, eligible)
	stats.MatchedWithin = ms.Within
	stats.MatchedBuffer = ms.Buffer
	if stats.TotalRecords > 0 {
		stats.SpatialMatchRate = 100 * float64(ms.Total()) / float64(stats.TotalRecords)
	}
	log.Info("spatial match complete",
		zap.Int("tracts", matcher.Len()),
		zap.Int("within", ms.Within),
		zap.Int("buffer", ms.Buffer),
		zap.Float64("match_rate_pct", stats.SpatialMatchRate),
	)
	if err := ctx.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "join: cancelled")
	}

	kept := ApplyCutoff(records, p.opts.CutoffYear)
	if dropped := len(records) - len(kept); dropped > 0 {
		log.Info("year cutoff applied",
			zap.Int("cutoff_year", p.opts.CutoffYear),
			zap.Int("dropped", dropped),
		)
	}

	joiner := NewJoiner(in.Demographics, p.opts.SurveyYears, p.opts.DefaultYear)
	stats.Degraded, stats.DegradedReason = joiner.Degraded()
	stats.SurveyYears = joiner.SurveyYears()

	out := joiner.Join(in.Crimes.Columns, kept)
	stats.FinalRecords = len(out.Records)

	tracts := make(map[string]int)
	for _, r := range out.Records {
		if r.Demographic != nil {
			stats.DemographicMatched++
		}
		if r.Crime.TractID != "" {
			tracts[r.Crime.TractID]++
		}
	}
	stats.TractsWithCrimes = len(tracts)
	if len(tracts) > 0 {
		var n int
		for _, c := range tracts {
			n += c
		}
		stats.AvgCrimesPerTract = float64(n) / float64(len(tracts))
	}

	log.Info("demographic join complete",
		zap.String("run_id", stats.RunID),
		zap.Int("final", stats.FinalRecords),
		zap.Int("demographic_matched", stats.DemographicMatched),
		zap.Bool("degraded", stats.Degraded),
	)
	return out, stats, nil
}

// ApplyCutoff returns the records whose year is at least cutoff. A cutoff of
// zero or less returns records unchanged.
func ApplyCutoff(records []model.CrimeRecord, cutoff int) []model.CrimeRecord {
	if cutoff <= 0 {
		return records
	}
	kept := make([]model.CrimeRecord, 0, len(records))
	for _, r := range records {
		if r.Year != nil && *r.Year >= cutoff {
			kept = append(kept, r)
		}
	}
	return kept
}

func checkInputs(in Inputs) error {
	var missing []string
	if in.Crimes == nil {
		missing = append(missing, "crime table")
	}
	if in.Tracts == nil {
		missing = append(missing, "tract boundaries")
	}
	if in.Demographics == nil {
		missing = append(missing, "demographic table")
	}
	if len(missing) > 0 {
		return &MissingInputsError{Missing: missing}
	}
	if len(in.Tracts) == 0 {
		return ErrNoTracts
	}
	return nil
}

// Resource is an input file the join needs.
type Resource struct {
	Name string
	Path string
}

// Preflight checks that every resource exists and is non-empty. It returns
// a *MissingInputsError naming all that are not.
func Preflight(resources ...Resource) error {
	var missing []string
	for _, r := range resources {
		if r.Path == "" {
			missing = append(missing, r.Name)
			continue
		}
		info, err := os.Stat(r.Path)
		if err != nil || (!info.IsDir() && info.Size() == 0) {
			missing = append(missing, fmt.Sprintf("%s (%s)", r.Name, r.Path))
		}
	}
	if len(missing) > 0 {
		return &MissingInputsError{Missing: missing}
	}
	return nil
}
