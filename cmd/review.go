package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/wizard"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactively accept suggestions into the mapping file",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		groups, err := e.Suggest(context.Background())
		if err != nil {
			return err
		}
		pending, err := e.PendingSuggestions(groups)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("Every suggestion is already in the mapping file.")
			return nil
		}

		var existing []string
		if mt, err := e.LoadMapping(); err == nil {
			for _, en := range mt.Entries() {
				existing = append(existing, en.Unified)
			}
		}

		accepted, err := wizard.Review(pending, e.Config.SourceKeys(), existing)
		if err != nil {
			return err
		}
		if len(accepted) == 0 {
			fmt.Println("No suggestions accepted.")
			return nil
		}
		if err := e.Accept(accepted); err != nil {
			return err
		}
		fmt.Printf("Added %d entries to %s\n", len(accepted), e.Config.Mapping)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
