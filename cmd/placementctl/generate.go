package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/placement/internal/loadtest"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a synthetic dataset",
	RunE:  runGenerate,
}

var (
	generateCandidates    int
	generateOpportunities int
	generateSeed          uint64
	generateOut           string
)

func init() {
	generateCmd.Flags().IntVar(&generateCandidates, "candidates", 1000, "Number of candidates")
	generateCmd.Flags().IntVar(&generateOpportunities, "opportunities", 100, "Number of opportunities")
	generateCmd.Flags().Uint64Var(&generateSeed, "seed", 1, "Random seed")
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	if generateCandidates < 0 || generateOpportunities < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	doc := loadtest.Generate(generateSeed, generateCandidates, generateOpportunities)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	data = append(data, '\n')

	if generateOut == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(generateOut, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", generateOut, err)
	}
	_, _ = okColor.Fprintf(cmd.ErrOrStderr(), "wrote %d candidates and %d opportunities to %s\n",
		generateCandidates, generateOpportunities, generateOut)
	return nil
}
