// Package main provides placementctl, an offline companion to the placement
// server: it validates and generates dataset files, scores pairs, runs
// allocations in process, and load tests a running server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/placement/pkg/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "placementctl",
	Short:         "Quota-aware candidate placement tool",
	Long:          "placementctl validates datasets, explains pair scores, runs greedy or optimal allocations and drives a placement server under load.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initLogging(cmd.ErrOrStderr(), logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

func initLogging(w io.Writer, level string) error {
	if err := logger.Init(logger.WithOutput(w)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return logger.SetLevelString(level)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
