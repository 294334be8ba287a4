package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/mapping"
)

var (
	suggestThreshold float64
	suggestScorer    string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Propose unified column names across sources",
	Long: `Group columns by normalized name, then pair the remaining columns by
name similarity within each category. The proposals are written as a
mapping-shaped YAML file for review; the mapping file itself is not changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		if cmd.Flags().Changed("threshold") {
			e.Config.Matcher.Threshold = suggestThreshold
		}
		if suggestScorer != "" {
			e.Config.Matcher.Scorer = suggestScorer
		}

		groups, err := e.Suggest(context.Background())
		if err != nil {
			return err
		}
		printSuggestionSummary(groups)
		fmt.Printf("\nSuggestions: %s\n", e.Config.OutputPath(e.Config.Output.Suggestions))
		fmt.Println("Run 'brcamerge review' to accept them into the mapping file.")
		return nil
	},
}

func printSuggestionSummary(groups []mapping.Group) {
	exact, fuzzy := 0, 0
	for _, g := range groups {
		if g.Phase == mapping.PhaseExact {
			exact++
		} else {
			fuzzy++
		}
	}
	fmt.Printf("%d groups (%d exact, %d fuzzy)\n", len(groups), exact, fuzzy)
	counts := mapping.CountByCategory(groups)
	for _, c := range mapping.Precedence {
		if n := counts[c]; n > 0 {
			fmt.Printf("  %-14s %d\n", c, n)
		}
	}
}

func init() {
	suggestCmd.Flags().Float64Var(&suggestThreshold, "threshold", 0, "similarity threshold in [0,1] (default from config)")
	suggestCmd.Flags().StringVar(&suggestScorer, "scorer", "", "similarity scorer: levenshtein or sequence")
	rootCmd.AddCommand(suggestCmd)
}
