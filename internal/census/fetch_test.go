package census

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crime-census/internal/fetcher"
	"github.com/sells-group/crime-census/internal/resilience"
)

func acsResponse(year int) string {
	codes := strings.Join(VariableCodes(), `","`)
	var b strings.Builder
	fmt.Fprintf(&b, `[["NAME","%s","state","county","tract"]`, codes)
	for _, tract := range []string{"000100", "010101"} {
		vals := make([]string, len(Variables))
		for i := range vals {
			vals[i] = fmt.Sprintf("%d", year+i)
		}
		vals[1] = "-666666666"
		fmt.Fprintf(&b, `,["Census Tract %s; King County; Washington","%s","53","033","%s"]`,
			tract, strings.Join(vals, `","`), tract)
	}
	b.WriteString("]")
	return b.String()
}

func testOptions(baseURL, dir string) Options {
	return Options{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Dataset:     "acs/acs5",
		Years:       []int{2015, 2020},
		StateFIPS:   "53",
		CountyFIPS:  "33",
		OutDir:      dir,
		Concurrency: 2,
		Retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
	}
}

func newTestFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1})
}

func TestRequestURL(t *testing.T) {
	u := RequestURL(testOptions("https://api.census.gov/data/", ""), 2019)

	assert.True(t, strings.HasPrefix(u, "https://api.census.gov/data/2019/acs/acs5?"))
	assert.Contains(t, u, "for=tract%3A%2A")
	assert.Contains(t, u, "in=state%3A53+county%3A033")
	assert.Contains(t, u, "key=test-key")
	assert.Contains(t, u, "B03002_012E")
}

func TestFetch_WritesYearAndCombinedFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		var year int
		_, err := fmt.Sscanf(r.URL.Path, "/%d/acs/acs5", &year)
		assert.NoError(t, err)
		_, _ = w.Write([]byte(acsResponse(year)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	res, err := Fetch(context.Background(), newTestFetcher(), testOptions(srv.URL, dir))
	require.NoError(t, err)

	assert.Equal(t, []int{2015, 2020}, res.Years)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, filepath.Join(dir, CombinedFileName), res.CombinedPath)
	require.Len(t, res.YearFiles, 2)
	assert.FileExists(t, filepath.Join(dir, "king_county_census_2015.csv"))
	assert.FileExists(t, filepath.Join(dir, "king_county_census_2020.csv"))

	table, err := Load(context.Background(), res.CombinedPath)
	require.NoError(t, err)
	require.Len(t, table.Records, 4)
	assert.Equal(t, []int{2015, 2020}, table.Years())
	assert.Equal(t, AttributeNames(), table.Attributes)

	rec := table.Records[0]
	assert.Equal(t, "000100", rec.TractID)
	assert.Equal(t, "53033000100", rec.GEOID)
	assert.Equal(t, 2015, rec.Year)
	assert.Equal(t, "Census Tract 000100; King County; Washington", rec.Name)
	require.NotNil(t, rec.Values[0])
	assert.InDelta(t, 2015.0, *rec.Values[0], 0.001)
	assert.Nil(t, rec.Values[1], "annotation value should load as null")
}

func TestFetch_SkipsFailingYear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/2015/") {
			http.Error(w, "unknown variable", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(acsResponse(2020)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	res, err := Fetch(context.Background(), newTestFetcher(), testOptions(srv.URL, dir))
	require.NoError(t, err)

	assert.Equal(t, []int{2020}, res.Years)
	require.Contains(t, res.Failed, 2015)
	assert.Equal(t, 2, res.Rows)
	assert.NoFileExists(t, filepath.Join(dir, "king_county_census_2015.csv"))
}

func TestFetch_AllYearsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid key", http.StatusBadRequest)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := Fetch(context.Background(), newTestFetcher(), testOptions(srv.URL, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no survey year could be fetched")
	assert.NoFileExists(t, filepath.Join(dir, CombinedFileName))
}

func TestFetch_MissingKey(t *testing.T) {
	opts := testOptions("http://unused", t.TempDir())
	opts.APIKey = ""

	_, err := Fetch(context.Background(), newTestFetcher(), opts)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

// flakyFetcher fails the first call with a transient error.
type flakyFetcher struct {
	calls atomic.Int32
	body  string
}

func (f *flakyFetcher) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	if f.calls.Add(1) == 1 {
		return nil, errors.New("read tcp: connection reset by peer")
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *flakyFetcher) DownloadToFile(_ context.Context, _ string, _ string) (int64, error) {
	return 0, errors.New("not implemented")
}

func TestFetch_RetriesTransientError(t *testing.T) {
	f := &flakyFetcher{body: acsResponse(2020)}
	opts := testOptions("http://example.test", t.TempDir())
	opts.Years = []int{2020}

	res, err := Fetch(context.Background(), f, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{2020}, res.Years)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestFetch_CombinedPathOverride(t *testing.T) {
	f := &flakyFetcher{body: acsResponse(2020)}
	f.calls.Store(1)
	dir := t.TempDir()
	opts := testOptions("http://example.test", filepath.Join(dir, "raw"))
	opts.Years = []int{2020}
	opts.CombinedPath = filepath.Join(dir, "joined", "combined.csv")

	res, err := Fetch(context.Background(), f, opts)
	require.NoError(t, err)
	assert.FileExists(t, opts.CombinedPath)

	data, err := os.ReadFile(res.CombinedPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "NAME,TotalPopulation,"))
}
