package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/config"
	"github.com/sells-group/crime-census/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which inputs and outputs are present",
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries := inputStatus(cfg)
		formatStatus(os.Stdout, entries)

		if cfg.Paths.Report == "" {
			return nil
		}
		report, err := store.ReadReport(cfg.Paths.Report)
		if err != nil {
			zap.L().Debug("no run report", zap.Error(err))
			return nil
		}
		_, _ = fmt.Fprintf(os.Stdout, "\nLast run %s (%s)\n", report.Stats.RunID, report.GeneratedAt.Format("2006-01-02 15:04"))
		store.Summary(os.Stdout, &report.Stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusEntry struct {
	Name string
	Path string
	Size int64
	OK   bool
}

// inputStatus reports the join inputs and outputs configured in c.
func inputStatus(c *config.Config) []statusEntry {
	in := resolveInputs(c)

	crimePath := in.CrimeCSV
	if crimePath == "" {
		crimePath = c.Paths.CrimeCSV
	}
	if crimePath == "" {
		crimePath = c.Paths.CrimeDir
	}
	shpPath := in.Shapefile
	if shpPath == "" {
		shpPath = c.Paths.TractDir
	}

	entries := []statusEntry{
		{Name: "crime data", Path: crimePath},
		{Name: "census data", Path: c.Paths.CensusCSV},
		{Name: "tract shapefile", Path: shpPath},
		{Name: "joined output", Path: c.Paths.Output},
		{Name: "run report", Path: c.Paths.Report},
	}
	for i := range entries {
		e := &entries[i]
		if e.Path == "" {
			continue
		}
		if info, err := os.Stat(e.Path); err == nil && !info.IsDir() {
			e.Size = info.Size()
			e.OK = e.Size > 0
		}
	}
	return entries
}

// formatStatus writes entries as a table to out.
func formatStatus(out io.Writer, entries []statusEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tSTATUS\tSIZE\tPATH")
	_, _ = fmt.Fprintln(w, "-----\t------\t----\t----")

	for _, e := range entries {
		status := "missing"
		size := "-"
		if e.OK {
			status = "ok"
			size = formatBytes(e.Size)
		}
		path := e.Path
		if path == "" {
			path = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, status, size, path)
	}
	_ = w.Flush()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
