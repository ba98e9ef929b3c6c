package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download inputs and run the join",
	Long: `Runs the full pipeline: downloads the crime export, census demographics and
tract shapefile, then joins them. With --skip-downloads, inputs already on disk
are reused and only missing ones are fetched. A failed download does not stop
the run; the join then reports which inputs are missing.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "run"))

		if err := applyJoinFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("join"); err != nil {
			return err
		}

		skip, _ := cmd.Flags().GetBool("skip-downloads")
		if failed := fetchAll(ctx, cfg, newFetcher(), skip); len(failed) > 0 {
			log.Warn("continuing after failed downloads", zap.Strings("steps", failed))
		}

		_, err := runJoin(ctx, cfg, resolveInputs(cfg), os.Stdout)
		return err
	},
}

func init() {
	runCmd.Flags().Bool("skip-downloads", false, "reuse inputs already on disk")
	addJoinFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
