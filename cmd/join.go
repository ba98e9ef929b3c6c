package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/census"
	"github.com/sells-group/crime-census/internal/config"
	"github.com/sells-group/crime-census/internal/crime"
	"github.com/sells-group/crime-census/internal/join"
	"github.com/sells-group/crime-census/internal/model"
	"github.com/sells-group/crime-census/internal/store"
	"github.com/sells-group/crime-census/internal/tiger"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join crime incidents to census tracts and demographics",
	Long: `Assigns every SPD incident inside the Seattle bounding box a King County
census tract (point in polygon, then a small boundary buffer), drops incidents
before the cutoff year and attaches the demographics of the closest ACS survey
year. The joined table and a run report are written to the configured paths.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyJoinFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("join"); err != nil {
			return err
		}
		_, err := runJoin(ctx, cfg, resolveInputs(cfg), os.Stdout)
		return err
	},
}

func init() {
	addJoinFlags(joinCmd)
	rootCmd.AddCommand(joinCmd)
}

func addJoinFlags(cmd *cobra.Command) {
	cmd.Flags().String("crime-csv", "", "crime CSV (default: paths.crime_csv or the latest download)")
	cmd.Flags().String("output", "", "joined output path (default: paths.output)")
	cmd.Flags().String("driver", "", "output driver: csv, xlsx, sqlite or postgres (default: store.driver)")
	cmd.Flags().Int("cutoff-year", -1, "drop incidents before this year, 0 keeps all (default: join.cutoff_year)")
}

// applyJoinFlags overrides config values with any flags the user set.
func applyJoinFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if v, _ := flags.GetString("crime-csv"); v != "" {
		c.Paths.CrimeCSV = v
	}
	if v, _ := flags.GetString("output"); v != "" {
		c.Paths.Output = v
	}
	if v, _ := flags.GetString("driver"); v != "" {
		c.Store.Driver = v
	}
	if v, _ := flags.GetInt("cutoff-year"); v >= 0 {
		c.Join.CutoffYear = v
	} else if v != -1 {
		return eris.Errorf("join: --cutoff-year must be >= 0, got %d", v)
	}
	return nil
}

// joinInputs are the resolved input files for a join. An empty path means
// the input could not be found.
type joinInputs struct {
	CrimeCSV  string
	CensusCSV string
	Shapefile string
}

// resolveInputs locates the join inputs from configuration. The crime CSV
// falls back to the newest dated download; the shapefile is searched for
// under the tract directory.
func resolveInputs(c *config.Config) joinInputs {
	var in joinInputs

	in.CrimeCSV = c.Paths.CrimeCSV
	if in.CrimeCSV == "" {
		if p, err := crime.LatestDownload(c.Paths.CrimeDir); err == nil {
			in.CrimeCSV = p
		}
	}
	if !nonEmptyFile(in.CrimeCSV) {
		in.CrimeCSV = ""
	}

	if nonEmptyFile(c.Paths.CensusCSV) {
		in.CensusCSV = c.Paths.CensusCSV
	}

	if p, err := tiger.FindShapefile(c.Paths.TractDir); err == nil && nonEmptyFile(p) {
		in.Shapefile = p
	}
	return in
}

func nonEmptyFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// pipelineOptions maps the join configuration onto pipeline options.
func pipelineOptions(c *config.Config) join.Options {
	b := c.Join.BBox
	return join.Options{
		Bounds: crime.Bounds{
			MinLat:   b.MinLat,
			MaxLat:   b.MaxLat,
			MinLon:   b.MinLon,
			MaxLon:   b.MaxLon,
			Sentinel: c.Join.Sentinel,
		},
		BufferDegrees: c.Join.BufferDegrees,
		CutoffYear:    c.Join.CutoffYear,
		DefaultYear:   c.Join.DefaultYear,
		SurveyYears:   c.Join.SurveyYears,
	}
}

// runJoin loads the inputs, runs the pipeline, persists the joined table
// through the configured store and writes the run report. The summary is
// printed to out.
func runJoin(ctx context.Context, c *config.Config, in joinInputs, out io.Writer) (*model.Stats, error) {
	log := zap.L().With(zap.String("command", "join"))
	started := time.Now().UTC()

	if err := join.Preflight(
		join.Resource{Name: "crime data", Path: in.CrimeCSV},
		join.Resource{Name: "census data", Path: in.CensusCSV},
		join.Resource{Name: "tract shapefile", Path: in.Shapefile},
	); err != nil {
		return nil, err
	}

	crimes, err := loadCrimes(ctx, c, in.CrimeCSV)
	if err != nil {
		return nil, err
	}
	demo, err := census.Load(ctx, in.CensusCSV)
	if err != nil {
		return nil, eris.Wrap(err, "join: load census data")
	}
	tracts, err := tiger.ParseTracts(in.Shapefile, c.Tiger.CountyFIPS)
	if err != nil {
		return nil, eris.Wrap(err, "join: load tracts")
	}
	log.Info("inputs loaded",
		zap.Int("crimes", len(crimes.Records)),
		zap.Int("demographic_rows", demo.Len()),
		zap.Int("tracts", len(tracts)),
	)

	table, stats, err := join.NewPipeline(pipelineOptions(c)).Run(ctx, join.Inputs{
		Crimes:       crimes,
		Tracts:       tracts,
		Demographics: demo,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{
		Driver:      c.Store.Driver,
		Path:        c.Paths.Output,
		DatabaseURL: c.Store.DatabaseURL,
		Table:       c.Store.Table,
	})
	if err != nil {
		return nil, eris.Wrap(err, "join: open store")
	}
	defer st.Close() //nolint:errcheck

	run := &store.Run{
		Table:      table,
		Stats:      stats,
		Tracts:     tracts,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "join: save output")
	}

	output := c.Paths.Output
	if c.Store.Driver == store.DriverPostgres {
		output = c.Store.Table
	}
	analysis := store.Analyze(table, store.DefaultAnalysisOptions())
	if c.Paths.Report != "" {
		report := &store.Report{
			GeneratedAt: run.FinishedAt,
			Inputs: map[string]string{
				"crime":  filepath.Clean(in.CrimeCSV),
				"census": filepath.Clean(in.CensusCSV),
				"tracts": filepath.Clean(in.Shapefile),
			},
			Output:   output,
			Driver:   c.Store.Driver,
			Stats:    *stats,
			Analysis: analysis,
		}
		if err := store.WriteReport(c.Paths.Report, report); err != nil {
			log.Warn("run report not written", zap.Error(err))
		}
	}

	store.Summary(out, stats)
	store.PrintAnalysis(out, analysis)
	log.Info("join complete",
		zap.String("run_id", stats.RunID),
		zap.String("output", output),
		zap.Int("rows", stats.FinalRecords),
		zap.Duration("elapsed", run.FinishedAt.Sub(started)),
	)
	return stats, nil
}

func loadCrimes(ctx context.Context, c *config.Config, path string) (*model.CrimeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "join: open crime data")
	}
	defer f.Close() //nolint:errcheck

	table, err := crime.Load(ctx, f, crime.LoadOptions{
		Columns: crime.Columns{
			ID:   c.Crime.IDColumn,
			Date: c.Crime.DateColumn,
			Lat:  c.Crime.LatColumn,
			Lon:  c.Crime.LonColumn,
		},
		Sentinel: c.Join.Sentinel,
	})
	if err != nil {
		return nil, eris.Wrap(err, "join: load crime data")
	}
	return table, nil
}
