package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crime-census",
	Short: "Join SPD crime incidents to King County census tracts",
	Long:  "Downloads Seattle Police Department crime data, ACS 5-year demographics and TIGER/Line tract boundaries, then assigns each incident a tract and the demographics of the closest survey year.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
