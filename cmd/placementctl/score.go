package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Explain the score of one candidate and opportunity",
	RunE:  runScore,
}

var (
	scoreDataset     string
	scoreCandidate   string
	scoreOpportunity string
)

func init() {
	scoreCmd.Flags().StringVarP(&scoreDataset, "dataset", "d", "", "Path to dataset JSON file (required)")
	scoreCmd.Flags().StringVarP(&scoreCandidate, "candidate", "c", "", "Candidate id (required)")
	scoreCmd.Flags().StringVarP(&scoreOpportunity, "opportunity", "o", "", "Opportunity id (required)")

	for _, name := range []string{"dataset", "candidate", "opportunity"} {
		if err := scoreCmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	svc, err := loadService(cmd, scoreDataset)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Shutdown(cmd.Context()) }()

	b, err := svc.ScorePair(cmd.Context(), scoreCandidate, scoreOpportunity)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	heading(w, scoreCandidate+" -> "+scoreOpportunity)
	features := b.Features.Map()
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	table := newTable(w, "Feature", "Value")
	for _, name := range names {
		table.Append([]string{name, formatFloat(features[name])})
	}
	table.SetFooter([]string{"score", formatFloat(b.Value)})
	table.Render()
	return nil
}
