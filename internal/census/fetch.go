package census

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crime-census/internal/fetcher"
	"github.com/sells-group/crime-census/internal/geoid"
	"github.com/sells-group/crime-census/internal/resilience"
)

// CombinedFileName is the default name of the all-years file.
const CombinedFileName = "king_county_census_combined.csv"

// ErrMissingAPIKey is returned by Fetch when no API key is configured.
var ErrMissingAPIKey = eris.New("census: api key is required")

// Options configures Fetch. Nothing is read from the environment.
type Options struct {
	APIKey     string
	BaseURL    string // e.g. https://api.census.gov/data
	Dataset    string // e.g. acs/acs5
	Years      []int
	StateFIPS  string
	CountyFIPS string

	// OutDir receives one king_county_census_<year>.csv per fetched year.
	OutDir string
	// CombinedPath receives every fetched year in one file. Defaults to
	// OutDir/king_county_census_combined.csv.
	CombinedPath string

	Concurrency int
	Retry       resilience.RetryConfig
}

// Result describes a Fetch run.
type Result struct {
	Years        []int         // years written, ascending
	Failed       map[int]error // years skipped after retries
	YearFiles    []string
	CombinedPath string
	Rows         int
}

// YearFileName is the per-year file name for year.
func YearFileName(year int) string {
	return fmt.Sprintf("king_county_census_%d.csv", year)
}

// RequestURL builds the ACS tract query for one year.
func RequestURL(opts Options, year int) string {
	q := url.Values{}
	q.Set("get", strings.Join(append([]string{ColName}, VariableCodes()...), ","))
	q.Set("for", "tract:*")
	q.Set("in", fmt.Sprintf("state:%s county:%s", geoid.NormalizeState(opts.StateFIPS), geoid.NormalizeCounty(opts.CountyFIPS)))
	q.Set("key", opts.APIKey)
	return fmt.Sprintf("%s/%d/%s?%s", strings.TrimRight(opts.BaseURL, "/"), year, strings.Trim(opts.Dataset, "/"), q.Encode())
}

// Fetch downloads every requested year concurrently and writes per-year and
// combined CSV files. A year that still fails after retries is logged and
// left out; Fetch errors only when the key is missing or no year succeeds.
func Fetch(ctx context.Context, f fetcher.Fetcher, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "census.fetch"))

	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if len(opts.Years) == 0 {
		return nil, eris.New("census: no survey years requested")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.CombinedPath == "" {
		opts.CombinedPath = filepath.Join(opts.OutDir, CombinedFileName)
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("census.fetch", "acs request")
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "census: create output dir")
	}

	var (
		mu      sync.Mutex
		byYear  = make(map[int][][]string)
		failed  = make(map[int]error)
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(opts.Concurrency)

	for _, year := range opts.Years {
		g.Go(func() error {
			rows, err := resilience.DoVal(gctx, opts.Retry, func(ctx context.Context) ([][]string, error) {
				return fetchYear(ctx, f, opts, year)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed[year] = err
				log.Warn("census year failed, skipping", zap.Int("year", year), zap.Error(err))
				return nil
			}
			byYear[year] = rows
			log.Info("fetched census year", zap.Int("year", year), zap.Int("tracts", len(rows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "census: fetch")
	}

	if len(byYear) == 0 {
		return nil, eris.Errorf("census: no survey year could be fetched (%d failed)", len(failed))
	}

	res := &Result{Failed: failed, CombinedPath: opts.CombinedPath}
	for year := range byYear {
		res.Years = append(res.Years, year)
	}
	slices.Sort(res.Years)

	var combined [][]string
	for _, year := range res.Years {
		rows := byYear[year]
		path := filepath.Join(opts.OutDir, YearFileName(year))
		if err := writeCSV(path, FileHeader(), rows); err != nil {
			return nil, err
		}
		res.YearFiles = append(res.YearFiles, path)
		combined = append(combined, rows...)
	}
	if err := os.MkdirAll(filepath.Dir(opts.CombinedPath), 0o755); err != nil {
		return nil, eris.Wrap(err, "census: create combined dir")
	}
	if err := writeCSV(opts.CombinedPath, FileHeader(), combined); err != nil {
		return nil, err
	}
	res.Rows = len(combined)

	log.Info("census fetch complete",
		zap.Ints("years", res.Years),
		zap.Int("failed", len(failed)),
		zap.Int("rows", res.Rows),
		zap.String("combined", opts.CombinedPath),
	)
	return res, nil
}

// fetchYear requests one year and returns rows in FileHeader order.
func fetchYear(ctx context.Context, f fetcher.Fetcher, opts Options, year int) ([][]string, error) {
	body, err := f.Download(ctx, RequestURL(opts, year))
	if err != nil {
		return nil, eris.Wrapf(err, "census: download %d", year)
	}
	defer body.Close() //nolint:errcheck

	rowCh, errCh := fetcher.DecodeJSONArray[[]string](ctx, body)

	var header fetcher.HeaderIndex
	var out [][]string
	for row := range rowCh {
		if header == nil {
			header = fetcher.NewHeaderIndex(row)
			continue
		}
		rec, ok := toFileRow(header, row, year)
		if ok {
			out = append(out, rec)
		}
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrapf(err, "census: decode %d", year)
		}
	}
	if header == nil {
		return nil, eris.Errorf("census: empty response for %d", year)
	}
	if _, ok := header.Lookup(ColTract); !ok {
		return nil, eris.Errorf("census: response for %d has no tract column", year)
	}
	return out, nil
}

func toFileRow(header fetcher.HeaderIndex, row []string, year int) ([]string, bool) {
	get := func(col string) string {
		if i, ok := header.Lookup(col); ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	state, county, tract := get(ColState), get(ColCounty), get(ColTract)
	if tract == "" {
		return nil, false
	}

	rec := make([]string, 0, len(Variables)+6)
	rec = append(rec, get(ColName))
	for _, v := range Variables {
		rec = append(rec, get(v.Code))
	}
	rec = append(rec, state, county, tract, geoid.Build(state, county, tract), strconv.Itoa(year))
	return rec, true
}

// writeCSV writes rows to path through a temporary file so readers never see
// a partial file.
func writeCSV(path string, header []string, rows [][]string) error {
	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "census: create %s", tmp)
	}

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return eris.Wrap(err, "census: write header")
	}
	if err := w.WriteAll(rows); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return eris.Wrap(err, "census: write rows")
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "census: close file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "census: rename file")
	}
	return nil
}
