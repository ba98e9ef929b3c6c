package store

import (
	"cmp"
	"io"
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/crime-census/internal/fetcher"
	"github.com/sells-group/crime-census/internal/model"
)

// AnalysisOptions names the columns the breakdowns read.
type AnalysisOptions struct {
	CategoryColumn      string
	NeighborhoodColumn  string
	IncomeAttribute     string
	PopulationAttribute string

	// CategoryAttributes are averaged per offense category.
	CategoryAttributes []string
	TopNeighborhoods   int
}

// DefaultAnalysisOptions returns the SPD and ACS column names.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		CategoryColumn:      "Offense Category",
		NeighborhoodColumn:  "Neighborhood",
		IncomeAttribute:     "MedianHouseholdIncome",
		PopulationAttribute: "TotalPopulation",
		CategoryAttributes: []string{
			"TotalPopulation", "MedianHouseholdIncome",
			"WhiteAlone", "AsianAlone", "BlackAfricanAmericanAlone",
		},
		TopNeighborhoods: 5,
	}
}

// Income bands are upper-inclusive. Rows with no or non-positive income
// fall in no band.
var incomeBands = []struct {
	label string
	upper float64
}{
	{"Low (<$50k)", 50000},
	{"Medium ($50-75k)", 75000},
	{"High ($75-100k)", 100000},
	{"Very High (>$100k)", math.Inf(1)},
}

// Count is a labelled record count.
type Count struct {
	Label string `yaml:"label" json:"label"`
	Count int    `yaml:"count" json:"count"`
}

// YearSummary aggregates demographically matched crimes by crime year.
type YearSummary struct {
	Year          int      `yaml:"year" json:"year"`
	Crimes        int      `yaml:"crimes" json:"crimes"`
	AvgIncome     *float64 `yaml:"avg_income,omitempty" json:"avg_income,omitempty"`
	AvgPopulation *float64 `yaml:"avg_population,omitempty" json:"avg_population,omitempty"`
}

// CategorySummary holds attribute means for one offense category.
type CategorySummary struct {
	Category string             `yaml:"category" json:"category"`
	Crimes   int                `yaml:"crimes" json:"crimes"`
	Averages map[string]float64 `yaml:"averages,omitempty" json:"averages,omitempty"`
}

// Analysis breaks down the demographically matched records.
type Analysis struct {
	Matched          int               `yaml:"matched" json:"matched"`
	IncomeBands      []Count           `yaml:"income_bands,omitempty" json:"income_bands,omitempty"`
	ByYear           []YearSummary     `yaml:"by_year,omitempty" json:"by_year,omitempty"`
	ByCategory       []CategorySummary `yaml:"by_category,omitempty" json:"by_category,omitempty"`
	TopNeighborhoods []Count           `yaml:"top_neighborhoods,omitempty" json:"top_neighborhoods,omitempty"`
}

// mean accumulates a running average over non-null values.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v != nil {
		m.sum += *v
		m.n++
	}
}

func (m mean) value() (float64, bool) {
	if m.n == 0 {
		return 0, false
	}
	return m.sum / float64(m.n), true
}

func (m mean) ptr() *float64 {
	if v, ok := m.value(); ok {
		return &v
	}
	return nil
}

// Analyze computes the breakdowns over records that carry a demographic row.
// Columns or attributes absent from table are skipped.
func Analyze(table *model.JoinedTable, opts AnalysisOptions) *Analysis {
	a := &Analysis{}
	if table == nil {
		return a
	}

	attrIdx := fetcher.NewHeaderIndex(table.Attributes)
	crimeIdx := fetcher.NewHeaderIndex(table.CrimeColumns)
	income, hasIncome := attrIdx.Lookup(opts.IncomeAttribute)
	pop, hasPop := attrIdx.Lookup(opts.PopulationAttribute)
	category, hasCategory := crimeIdx.Lookup(opts.CategoryColumn)
	hood, hasHood := crimeIdx.Lookup(opts.NeighborhoodColumn)

	type catAttr struct {
		name string
		idx  int
	}
	var catAttrs []catAttr
	for _, name := range opts.CategoryAttributes {
		if i, ok := attrIdx.Lookup(name); ok {
			catAttrs = append(catAttrs, catAttr{name: name, idx: i})
		}
	}

	bands := make([]int, len(incomeBands))
	type yearAcc struct {
		crimes      int
		income, pop mean
	}
	years := make(map[int]*yearAcc)
	type catAcc struct {
		crimes int
		means  []mean
	}
	cats := make(map[string]*catAcc)
	hoods := make(map[string]int)

	for _, r := range table.Records {
		d := r.Demographic
		if d == nil {
			continue
		}
		a.Matched++

		incomeVal := attrValue(d, income, hasIncome)
		if incomeVal != nil && *incomeVal > 0 {
			for i, b := range incomeBands {
				if *incomeVal <= b.upper {
					bands[i]++
					break
				}
			}
		}

		if r.Crime.Year != nil {
			y := years[*r.Crime.Year]
			if y == nil {
				y = &yearAcc{}
				years[*r.Crime.Year] = y
			}
			y.crimes++
			y.income.add(incomeVal)
			y.pop.add(attrValue(d, pop, hasPop))
		}

		if name := crimeValue(r.Crime, category, hasCategory); name != "" {
			c := cats[name]
			if c == nil {
				c = &catAcc{means: make([]mean, len(catAttrs))}
				cats[name] = c
			}
			c.crimes++
			for i, ca := range catAttrs {
				c.means[i].add(attrValue(d, ca.idx, true))
			}
		}

		if name := crimeValue(r.Crime, hood, hasHood); name != "" {
			hoods[name]++
		}
	}

	if hasIncome {
		for i, b := range incomeBands {
			a.IncomeBands = append(a.IncomeBands, Count{Label: b.label, Count: bands[i]})
		}
	}

	for year, y := range years {
		a.ByYear = append(a.ByYear, YearSummary{
			Year:          year,
			Crimes:        y.crimes,
			AvgIncome:     y.income.ptr(),
			AvgPopulation: y.pop.ptr(),
		})
	}
	slices.SortFunc(a.ByYear, func(x, y YearSummary) int { return cmp.Compare(x.Year, y.Year) })

	for name, c := range cats {
		cs := CategorySummary{Category: name, Crimes: c.crimes}
		for i, ca := range catAttrs {
			if v, ok := c.means[i].value(); ok {
				if cs.Averages == nil {
					cs.Averages = make(map[string]float64, len(catAttrs))
				}
				cs.Averages[ca.name] = v
			}
		}
		a.ByCategory = append(a.ByCategory, cs)
	}
	slices.SortFunc(a.ByCategory, func(x, y CategorySummary) int {
		return cmp.Or(cmp.Compare(y.Crimes, x.Crimes), cmp.Compare(x.Category, y.Category))
	})

	a.TopNeighborhoods = topCounts(hoods, opts.TopNeighborhoods)
	return a
}

func attrValue(d *model.DemographicRecord, i int, ok bool) *float64 {
	if !ok || i >= len(d.Values) {
		return nil
	}
	return d.Values[i]
}

func crimeValue(c model.CrimeRecord, i int, ok bool) string {
	if !ok || i >= len(c.Values) {
		return ""
	}
	return c.Values[i]
}

// topCounts returns the n largest counts, ties broken by label. n <= 0
// returns all of them.
func topCounts(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for label, c := range counts {
		out = append(out, Count{Label: label, Count: c})
	}
	slices.SortFunc(out, func(x, y Count) int {
		return cmp.Or(cmp.Compare(y.Count, x.Count), cmp.Compare(x.Label, y.Label))
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// PrintAnalysis writes a to w as indented sections.
func PrintAnalysis(w io.Writer, a *Analysis) {
	p := message.NewPrinter(language.English)
	if a == nil || a.Matched == 0 {
		p.Fprintf(w, "No demographically matched records to analyse\n")
		return
	}

	if len(a.IncomeBands) > 0 {
		p.Fprintf(w, "\nCrime by income level:\n")
		for _, b := range a.IncomeBands {
			p.Fprintf(w, "   %s: %d crimes\n", b.Label, b.Count)
		}
	}

	if len(a.ByYear) > 0 {
		p.Fprintf(w, "\nCrimes by year:\n")
		for _, y := range a.ByYear {
			p.Fprintf(w, "   %s: %d crimes", strconv.Itoa(y.Year), y.Crimes)
			if y.AvgIncome != nil {
				p.Fprintf(w, ", avg income %.0f", *y.AvgIncome)
			}
			if y.AvgPopulation != nil {
				p.Fprintf(w, ", avg population %.0f", *y.AvgPopulation)
			}
			p.Fprintf(w, "\n")
		}
	}

	if len(a.ByCategory) > 0 {
		p.Fprintf(w, "\nAverage demographics by offense category:\n")
		for _, c := range a.ByCategory {
			p.Fprintf(w, "   %s (%d crimes)", c.Category, c.Crimes)
			names := make([]string, 0, len(c.Averages))
			for name := range c.Averages {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				p.Fprintf(w, " %s=%.0f", name, c.Averages[name])
			}
			p.Fprintf(w, "\n")
		}
	}

	if len(a.TopNeighborhoods) > 0 {
		p.Fprintf(w, "\nTop neighborhoods by crime count:\n")
		for _, n := range a.TopNeighborhoods {
			p.Fprintf(w, "   %s: %d crimes\n", n.Label, n.Count)
		}
	}
}
