package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/allocation"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a dataset file",
	Long:  "Checks a dataset file against the dataset schema and the allocation input rules, then summarizes it.",
	RunE:  runValidate,
}

var validateDataset string

func init() {
	validateCmd.Flags().StringVarP(&validateDataset, "dataset", "d", "", "Path to dataset JSON file (required)")
	if err := validateCmd.MarkFlagRequired("dataset"); err != nil {
		panic(fmt.Sprintf("failed to mark dataset flag as required: %v", err))
	}

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	svc, err := loadService(cmd, validateDataset)
	if err != nil {
		var ve *dataset.ValidationError
		var invalid *allocation.InvalidInputError
		switch {
		case errors.As(err, &ve):
			heading(w, "Dataset errors")
			table := newTable(w, "Field", "Problem")
			for _, fe := range ve.Errors {
				table.Append([]string{fe.Field, fe.Message})
			}
			table.Render()
		case errors.As(err, &invalid):
			heading(w, "Input errors")
			for _, p := range invalid.Problems {
				_, _ = errorColor.Fprintln(w, p)
			}
		}
		return err
	}
	defer func() { _ = svc.Shutdown(cmd.Context()) }()

	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return err
	}
	heading(w, "Dataset")
	table := newTable(w, "Candidates", "Opportunities", "Seats", "Underrepresented region", "Prior experience")
	table.Append([]string{
		strconv.Itoa(stats.Candidates),
		strconv.Itoa(stats.Opportunities),
		strconv.Itoa(stats.TotalCapacity),
		strconv.Itoa(stats.UnderrepresentedArea),
		strconv.Itoa(stats.PriorExperience),
	})
	table.Render()
	renderCounts(w, "Groups", "Group", stats.GroupDistribution)
	renderCounts(w, "Sectors", "Sector", stats.SectorDistribution)

	_, _ = okColor.Fprintf(w, "%s is valid\n", validateDataset)
	return nil
}
