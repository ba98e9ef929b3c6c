package crime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/fetcher"
)

// FilePrefix is the name the portal gives CSV exports of the dataset.
const FilePrefix = "SPD_Crime_Data__2008-Present_"

// DownloadOptions configures a Downloader.
type DownloadOptions struct {
	BaseURL    string
	ResourceID string
	Dir        string
	DateColumn string
}

// Downloader fetches the SPD crime export from a Socrata portal.
type Downloader struct {
	f    fetcher.Fetcher
	opts DownloadOptions
	now  func() time.Time
}

// NewDownloader returns a Downloader writing into opts.Dir.
func NewDownloader(f fetcher.Fetcher, opts DownloadOptions) *Downloader {
	return &Downloader{f: f, opts: opts, now: time.Now}
}

// MetadataURL is the Socrata view description for the dataset.
func (d *Downloader) MetadataURL() string {
	return fmt.Sprintf("%s/api/views/%s.json", d.opts.BaseURL, d.opts.ResourceID)
}

// CSVURL is the full-export CSV endpoint for the dataset.
func (d *Downloader) CSVURL() string {
	return fmt.Sprintf("%s/api/views/%s/rows.csv?accessType=DOWNLOAD", d.opts.BaseURL, d.opts.ResourceID)
}

// DatasetInfo summarises the portal's view metadata.
type DatasetInfo struct {
	Name          string    `yaml:"name" json:"name"`
	Description   string    `yaml:"description" json:"description"`
	RowsUpdatedAt time.Time `yaml:"rows_updated_at" json:"rows_updated_at"`
	CreatedAt     time.Time `yaml:"created_at" json:"created_at"`
	RowCount      int64     `yaml:"row_count" json:"row_count"`
	Columns       int       `yaml:"columns" json:"columns"`
	Tags          []string  `yaml:"tags" json:"tags"`
}

type socrataView struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	RowsUpdatedAt int64    `json:"rowsUpdatedAt"`
	CreatedAt     int64    `json:"createdAt"`
	TotalCount    int64    `json:"totalCount"`
	Columns       []any    `json:"columns"`
	Tags          []string `json:"tags"`
}

// Info fetches dataset metadata.
func (d *Downloader) Info(ctx context.Context) (*DatasetInfo, error) {
	body, err := d.f.Download(ctx, d.MetadataURL())
	if err != nil {
		return nil, eris.Wrap(err, "crime: fetch metadata")
	}
	defer body.Close() //nolint:errcheck

	view, err := fetcher.DecodeJSONObject[socrataView](body)
	if err != nil {
		return nil, eris.Wrap(err, "crime: decode metadata")
	}

	info := &DatasetInfo{
		Name:        view.Name,
		Description: view.Description,
		RowCount:    view.TotalCount,
		Columns:     len(view.Columns),
		Tags:        view.Tags,
	}
	if view.RowsUpdatedAt > 0 {
		info.RowsUpdatedAt = time.Unix(view.RowsUpdatedAt, 0).UTC()
	}
	if view.CreatedAt > 0 {
		info.CreatedAt = time.Unix(view.CreatedAt, 0).UTC()
	}
	return info, nil
}

// FileName returns the dated export name for t.
func FileName(t time.Time) string {
	return FilePrefix + t.Format("20060102") + ".csv"
}

// Download writes the CSV export to a dated file in the download directory
// and returns its path. The file appears only once the transfer completes.
func (d *Downloader) Download(ctx context.Context) (string, error) {
	log := zap.L().With(zap.String("component", "crime.download"))

	if err := os.MkdirAll(d.opts.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "crime: create download dir")
	}

	path := filepath.Join(d.opts.Dir, FileName(d.now()))
	tmp := path + ".part"

	log.Info("downloading crime data", zap.String("url", d.CSVURL()), zap.String("path", path))

	n, err := d.f.DownloadToFile(ctx, d.CSVURL(), tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrap(err, "crime: download csv")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrap(err, "crime: finalize download")
	}

	log.Info("crime data downloaded", zap.String("path", path), zap.Int64("bytes", n))
	return path, nil
}

// Validation describes a sample read of a downloaded export.
type Validation struct {
	Path       string     `yaml:"path" json:"path"`
	SizeBytes  int64      `yaml:"size_bytes" json:"size_bytes"`
	SampleRows int        `yaml:"sample_rows" json:"sample_rows"`
	Columns    []string   `yaml:"columns" json:"columns"`
	Earliest   *time.Time `yaml:"earliest,omitempty" json:"earliest,omitempty"`
	Latest     *time.Time `yaml:"latest,omitempty" json:"latest,omitempty"`
}

// Validate reads the header and up to sampleRows rows of path. The date
// range of the sample is reported when the date column is present.
func (d *Downloader) Validate(ctx context.Context, path string, sampleRows int) (*Validation, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrap(err, "crime: stat download")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "crime: open download")
	}
	defer file.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cr, err := fetcher.NewCSVReader(file, fetcher.CSVOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "crime: validate %s", path)
	}
	v := &Validation{Path: path, SizeBytes: fi.Size(), Columns: cr.Header()}

	dateIdx, hasDate := fetcher.NewHeaderIndex(v.Columns).Lookup(d.opts.DateColumn)
	rowCh, errCh := cr.Stream(ctx)
	for row := range rowCh {
		v.SampleRows++
		if hasDate {
			v.observe(ParseDate(row[dateIdx]))
		}
		if v.SampleRows >= sampleRows {
			cancel()
			break
		}
	}
	for range rowCh {
	}
	if err := <-errCh; err != nil && ctx.Err() == nil {
		return nil, eris.Wrap(err, "crime: validate")
	}

	if v.SampleRows == 0 {
		return v, eris.Errorf("crime: %s has no data rows", path)
	}

	zap.L().Info("crime download validated",
		zap.String("path", path),
		zap.Int64("bytes", v.SizeBytes),
		zap.Int("columns", len(v.Columns)),
		zap.Int("sample_rows", v.SampleRows),
	)
	return v, nil
}

func (v *Validation) observe(t *time.Time) {
	if t == nil {
		return
	}
	if v.Earliest == nil || t.Before(*v.Earliest) {
		v.Earliest = t
	}
	if v.Latest == nil || t.After(*v.Latest) {
		v.Latest = t
	}
}

// LatestDownload returns the most recent dated export in dir.
func LatestDownload(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, FilePrefix+"*.csv"))
	if err != nil {
		return "", eris.Wrap(err, "crime: glob downloads")
	}
	if len(matches) == 0 {
		return "", eris.Wrapf(os.ErrNotExist, "crime: no %s*.csv in %s", FilePrefix, dir)
	}
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}
