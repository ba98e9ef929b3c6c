package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/census"
	"github.com/sells-group/crime-census/internal/config"
	"github.com/sells-group/crime-census/internal/crime"
	"github.com/sells-group/crime-census/internal/fetcher"
	"github.com/sells-group/crime-census/internal/resilience"
	"github.com/sells-group/crime-census/internal/tiger"
)

const validateSampleRows = 1000

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download pipeline inputs",
	Long:  "Downloads the SPD crime export, ACS 5-year tract demographics and the TIGER/Line tract shapefile.",
}

var fetchCrimeCmd = &cobra.Command{
	Use:   "crime",
	Short: "Download the SPD crime export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		path, err := fetchCrime(ctx, cfg, newFetcher())
		if err != nil {
			return err
		}
		fmt.Printf("crime data: %s\n", path)
		return nil
	},
}

var fetchCensusCmd = &cobra.Command{
	Use:   "census",
	Short: "Download ACS 5-year tract demographics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if years, _ := cmd.Flags().GetIntSlice("years"); len(years) > 0 {
			cfg.Census.Years = years
		}
		if err := cfg.Validate("census"); err != nil {
			return err
		}
		res, err := fetchCensus(ctx, cfg, newFetcher())
		if err != nil {
			return err
		}
		fmt.Printf("census data: %s (%d rows, years %v)\n", res.CombinedPath, res.Rows, res.Years)
		return nil
	},
}

var fetchTractsCmd = &cobra.Command{
	Use:   "tracts",
	Short: "Download the TIGER/Line tract shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if year, _ := cmd.Flags().GetInt("year"); year > 0 {
			cfg.Tiger.Year = year
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		path, err := fetchTracts(ctx, cfg, newFetcher())
		if err != nil {
			return err
		}
		fmt.Printf("tract shapefile: %s\n", path)
		return nil
	},
}

var fetchAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Download every input",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		if failed := fetchAll(ctx, cfg, newFetcher(), false); len(failed) > 0 {
			return eris.Errorf("fetch: %d step(s) failed: %v", len(failed), failed)
		}
		return nil
	},
}

func init() {
	fetchCensusCmd.Flags().IntSlice("years", nil, "ACS 5-year vintages to request (default: from config)")
	fetchTractsCmd.Flags().Int("year", 0, "TIGER/Line vintage (default: from config)")
	fetchCmd.AddCommand(fetchCrimeCmd, fetchCensusCmd, fetchTractsCmd, fetchAllCmd)
	rootCmd.AddCommand(fetchCmd)
}

// newFetcher returns the shared HTTP/FTP fetcher used by every download.
func newFetcher() fetcher.Fetcher {
	return fetcher.NewRouter(
		fetcher.HTTPOptions{
			UserAgent:    "crime-census/1.0",
			Timeout:      10 * time.Minute,
			MaxRetries:   3,
			RateLimiters: fetcher.DefaultRateLimiters(),
		},
		fetcher.FTPOptions{Timeout: time.Minute},
	)
}

// fetchCrime downloads the crime export and checks a sample of it.
func fetchCrime(ctx context.Context, c *config.Config, f fetcher.Fetcher) (string, error) {
	log := zap.L().With(zap.String("command", "fetch.crime"))

	d := crime.NewDownloader(f, crime.DownloadOptions{
		BaseURL:    c.Crime.BaseURL,
		ResourceID: c.Crime.ResourceID,
		Dir:        c.Paths.CrimeDir,
		DateColumn: c.Crime.DateColumn,
	})

	if info, err := d.Info(ctx); err != nil {
		log.Warn("dataset metadata unavailable", zap.Error(err))
	} else {
		log.Info("crime dataset",
			zap.String("name", info.Name),
			zap.Time("rows_updated_at", info.RowsUpdatedAt),
			zap.Int64("rows", info.RowCount),
		)
	}

	path, err := d.Download(ctx)
	if err != nil {
		return "", eris.Wrap(err, "fetch crime")
	}
	if _, err := d.Validate(ctx, path, validateSampleRows); err != nil {
		return "", eris.Wrap(err, "fetch crime: validate")
	}
	return path, nil
}

// fetchCensus downloads every configured ACS vintage into the census
// directory and writes the combined table to paths.census_csv.
func fetchCensus(ctx context.Context, c *config.Config, f fetcher.Fetcher) (*census.Result, error) {
	res, err := census.Fetch(ctx, f, census.Options{
		APIKey:       c.Census.APIKey,
		BaseURL:      c.Census.BaseURL,
		Dataset:      c.Census.Dataset,
		Years:        c.Census.Years,
		StateFIPS:    c.Census.StateFIPS,
		CountyFIPS:   c.Census.CountyFIPS,
		OutDir:       c.Paths.CensusDir,
		CombinedPath: c.Paths.CensusCSV,
		Concurrency:  c.Census.Concurrency,
		Retry:        resilience.DefaultRetryConfig(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetch census")
	}
	return res, nil
}

// fetchTracts downloads and extracts the statewide tract shapefile.
func fetchTracts(ctx context.Context, c *config.Config, f fetcher.Fetcher) (string, error) {
	url := tiger.DownloadURL(c.Tiger.BaseURL, c.Tiger.Year, c.Tiger.StateFIPS)
	path, err := tiger.Download(ctx, f, url, c.Paths.TractDir)
	if err != nil {
		return "", eris.Wrap(err, "fetch tracts")
	}
	return path, nil
}

// fetchAll runs every download step. A failing step is logged and the rest
// still run; the names of the failed steps are returned. With onlyMissing,
// steps whose input already exists on disk are skipped.
func fetchAll(ctx context.Context, c *config.Config, f fetcher.Fetcher, onlyMissing bool) []string {
	log := zap.L().With(zap.String("command", "fetch.all"))
	in := resolveInputs(c)

	steps := []struct {
		name    string
		present bool
		run     func() error
	}{
		{"crime", in.CrimeCSV != "", func() error {
			_, err := fetchCrime(ctx, c, f)
			return err
		}},
		{"census", in.CensusCSV != "", func() error {
			_, err := fetchCensus(ctx, c, f)
			return err
		}},
		{"tracts", in.Shapefile != "", func() error {
			_, err := fetchTracts(ctx, c, f)
			return err
		}},
	}

	var failed []string
	for _, s := range steps {
		if ctx.Err() != nil {
			failed = append(failed, s.name)
			continue
		}
		if onlyMissing && s.present {
			log.Info("input present, skipping download", zap.String("step", s.name))
			continue
		}
		if err := s.run(); err != nil {
			log.Error("download step failed", zap.String("step", s.name), zap.Error(err))
			failed = append(failed, s.name)
			continue
		}
		log.Info("download step complete", zap.String("step", s.name))
	}
	return failed
}
