package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txn2/trip-planner/internal/server"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired sessions and revocations once and exit",
	Long:  `Runs a single sweep pass. Use it from an external scheduler with sweeper.disabled set on the servers.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		srv, err := server.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}
		defer func() { _ = srv.Close() }()

		reports, err := srv.Sweeper.RunOnce(cmd.Context())
		for _, r := range reports {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s removed=%d %s\n", r.Target, r.Removed, status)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
