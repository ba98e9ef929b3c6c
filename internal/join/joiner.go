package join

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/model"
)

type demoKey struct {
	tract string
	year  int
}

// Joiner attaches demographic rows to spatially matched crime records.
type Joiner struct {
	demo        *model.DemographicTable
	mapper      *YearMapper
	defaultYear int

	byKey   map[demoKey]*model.DemographicRecord
	byTract map[string]*model.DemographicRecord

	degraded bool
	reason   string
}

// NewJoiner indexes demo by (tract, survey year). When that index cannot be
// built, because no survey years are known or a (tract, year) pair repeats,
// the joiner falls back to matching on tract alone against the
// defaultYear rows and reports itself as degraded.
func NewJoiner(demo *model.DemographicTable, surveyYears []int, defaultYear int) *Joiner {
	if demo == nil {
		demo = &model.DemographicTable{}
	}
	j := &Joiner{demo: demo, defaultYear: defaultYear}
	if len(surveyYears) == 0 {
		surveyYears = demo.Years()
	}

	mapper, err := NewYearMapper(surveyYears, defaultYear)
	if err != nil {
		j.degrade(err.Error())
		return j
	}
	j.mapper = mapper

	j.byKey = make(map[demoKey]*model.DemographicRecord, demo.Len())
	for i := range demo.Records {
		rec := &demo.Records[i]
		k := demoKey{tract: rec.TractID, year: rec.Year}
		if _, dup := j.byKey[k]; dup {
			j.byKey = nil
			j.degrade(fmt.Sprintf("duplicate demographic row for tract %s year %d", k.tract, k.year))
			return j
		}
		j.byKey[k] = rec
	}
	return j
}

func (j *Joiner) degrade(reason string) {
	j.degraded = true
	j.reason = reason
	j.mapper = nil

	j.byTract = make(map[string]*model.DemographicRecord)
	for i := range j.demo.Records {
		rec := &j.demo.Records[i]
		if rec.Year != j.defaultYear {
			continue
		}
		if _, ok := j.byTract[rec.TractID]; !ok {
			j.byTract[rec.TractID] = rec
		}
	}
	zap.L().Warn("join: degraded to single-year demographics",
		zap.String("reason", reason),
		zap.Int("default_year", j.defaultYear),
		zap.Int("tracts", len(j.byTract)),
	)
}

// Degraded reports whether the tract-only fallback is in use, and why.
func (j *Joiner) Degraded() (bool, string) {
	return j.degraded, j.reason
}

// SurveyYears returns the years crime years are mapped onto. In degraded
// mode this is the default year alone.
func (j *Joiner) SurveyYears() []int {
	if j.mapper == nil {
		return []int{j.defaultYear}
	}
	return j.mapper.Years()
}

// SurveyYear is the survey year a crime year resolves to.
func (j *Joiner) SurveyYear(year *int) int {
	if j.mapper == nil {
		return j.defaultYear
	}
	return j.mapper.Map(year)
}

// Lookup returns the demographic row for a tract and crime year, or nil.
func (j *Joiner) Lookup(tractID string, year *int) (*model.DemographicRecord, int) {
	survey := j.SurveyYear(year)
	if tractID == "" {
		return nil, survey
	}
	if j.byKey != nil {
		return j.byKey[demoKey{tract: tractID, year: survey}], survey
	}
	return j.byTract[tractID], survey
}

// Join pairs every record with its demographic row. The output holds
// exactly one row per input record, in input order.
func (j *Joiner) Join(columns []string, records []model.CrimeRecord) *model.JoinedTable {
	out := &model.JoinedTable{
		CrimeColumns: columns,
		Records:      make([]model.JoinedRecord, len(records)),
	}
	if j.demo != nil {
		out.Attributes = j.demo.Attributes
	}

	for i := range records {
		demo, survey := j.Lookup(records[i].TractID, records[i].Year)
		out.Records[i] = model.JoinedRecord{
			Crime:       records[i],
			SurveyYear:  survey,
			Demographic: demo,
		}
	}
	return out
}
