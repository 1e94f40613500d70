package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txn2/trip-planner/internal/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of trip-planner",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "trip-planner version %s\n", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
