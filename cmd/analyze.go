package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report columns shared across sources by normalized name",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		summary, err := e.Analyze(context.Background())
		if err != nil {
			return err
		}
		fmt.Print(report.FormatOverlap(summary))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
