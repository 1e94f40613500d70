package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/txn2/trip-planner/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:           "trip-planner",
	Short:         "Trip planning backend",
	Long:          `Serves the trip planner API: accounts, credential rotation and resumable planning sessions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (default: TRIP_PLANNER_* environment)")
}

// loadConfig reads the --config file, or the environment when none is
// given, and installs the configured logger as the default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}
