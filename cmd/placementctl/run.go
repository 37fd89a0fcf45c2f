package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	app "github.com/okian/placement/internal/app"
	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/types"
	"github.com/okian/placement/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Allocate a dataset file in process",
	Long:  "Loads a dataset file, runs the greedy or optimal strategy against it and prints placements, quota fulfillment and any shortfalls.",
	RunE:  runAllocate,
}

var (
	runDataset  string
	runStrategy string
	runTimeout  time.Duration
	runMaxNodes int
	runFallback bool
	runJSON     bool
)

func init() {
	runCmd.Flags().StringVarP(&runDataset, "dataset", "d", "", "Path to dataset JSON file (required)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", allocation.StrategyOptimal.String(), "Strategy: greedy or optimal")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", allocation.DefaultTimeout, "Optimal solver time budget")
	runCmd.Flags().IntVar(&runMaxNodes, "max-nodes", allocation.DefaultMaxNodes, "Optimal solver node budget")
	runCmd.Flags().BoolVar(&runFallback, "fallback", false, "Return the greedy result when the optimal solver times out")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run as JSON")

	if err := runCmd.MarkFlagRequired("dataset"); err != nil {
		panic(fmt.Sprintf("failed to mark dataset flag as required: %v", err))
	}

	rootCmd.AddCommand(runCmd)
}

// loadService reads a dataset file into a fresh in-process service.
func loadService(cmd *cobra.Command, path string, opts ...app.Option) (*app.Service, error) {
	ds, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	opts = append([]app.Option{app.WithWorkerCount(1), app.WithLogger(logger.Get())}, opts...)
	svc := app.New(opts...)
	if _, err := svc.LoadDataset(cmd.Context(), ds); err != nil {
		_ = svc.Shutdown(cmd.Context())
		return nil, err
	}
	return svc, nil
}

func runAllocate(cmd *cobra.Command, _ []string) error {
	svc, err := loadService(cmd, runDataset)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Shutdown(cmd.Context()) }()

	fallback := runFallback
	req := types.AllocateRequest{
		Strategy:         runStrategy,
		FallbackToGreedy: &fallback,
		TimeoutMs:        int(runTimeout / time.Millisecond),
		MaxNodes:         runMaxNodes,
	}
	run, runErr := svc.Allocate(cmd.Context(), req)
	if run.ID == "" {
		return runErr
	}

	w := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
		return runErr
	}

	heading(w, "Run "+run.ID)
	table := newTable(w, "Strategy", "Status", "Assigned", "Total score", "Fallback")
	assigned, score := 0, 0.0
	if run.Result != nil {
		assigned, score = run.Result.TotalAssigned, run.Result.TotalScore
	}
	table.Append([]string{run.Strategy, string(run.Status), strconv.Itoa(assigned), formatFloat(score), strconv.FormatBool(run.Fallback)})
	table.Render()

	if run.Result != nil {
		renderWarnings(w, run.Result.Warnings)
		if len(run.Result.Placements) > 0 {
			renderPlacements(w, run.Result.Placements)
		}
		renderQuotaReport(w, run.Result.QuotaFulfillment)
	}

	var infeasible *allocation.InfeasibleQuotaError
	switch {
	case errors.As(runErr, &infeasible):
		renderShortfalls(w, infeasible.Shortfalls)
	case runErr == nil:
		_, _ = okColor.Fprintln(w, "allocation finished")
	default:
		_, _ = errorColor.Fprintln(w, runErr.Error())
	}
	return runErr
}
