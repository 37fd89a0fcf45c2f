package main

import (
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/placement/internal/loadtest"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load test a running placement server",
	Long:  "Uploads a synthetic dataset, submits a burst of async runs with repeated idempotency keys, waits for them to settle and verifies every result.",
	RunE:  runLoad,
}

var loadConfig = loadtest.Config{}

func init() {
	f := loadCmd.Flags()
	f.StringVar(&loadConfig.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&loadConfig.Candidates, "candidates", 500, "Number of candidates to generate")
	f.IntVar(&loadConfig.Opportunities, "opportunities", 50, "Number of opportunities to generate")
	f.IntVar(&loadConfig.Runs, "runs", 100, "Number of runs to submit")
	f.IntVar(&loadConfig.Workers, "workers", runtime.NumCPU()*2, "Number of concurrent submitters")
	f.StringVar(&loadConfig.Strategy, "strategy", "greedy", "Strategy requested by every run")
	f.Uint64Var(&loadConfig.Seed, "seed", 1, "Dataset seed")
	f.DurationVar(&loadConfig.Timeout, "timeout", 30*time.Second, "HTTP request timeout")
	f.DurationVar(&loadConfig.PollInterval, "poll", 200*time.Millisecond, "Run status poll interval")
	f.StringVarP(&loadConfig.OutputFile, "out", "o", "", "Write the generated dataset to this file")
	f.BoolVarP(&loadConfig.Verbose, "verbose", "v", false, "Log every run as it settles")

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig
	stats, err := loadtest.Run(cmd.Context(), &cfg)
	if stats == nil {
		return err
	}

	w := cmd.OutOrStdout()
	heading(w, "Load test")
	table := newTable(w, "Submitted", "Accepted", "Duplicate", "Rejected", "Violations", "Duration")
	table.Append([]string{
		strconv.Itoa(stats.RunsSubmitted),
		strconv.Itoa(stats.RunsAccepted),
		strconv.Itoa(stats.RunsDuplicate),
		strconv.Itoa(stats.RunsRejected),
		strconv.Itoa(stats.Violations),
		stats.Duration.Round(time.Millisecond).String(),
	})
	table.Render()
	if len(stats.RunsSettled) > 0 {
		renderCounts(w, "Settled runs", "Status", stats.RunsSettled)
	}
	return err
}
