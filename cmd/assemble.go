package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble [tag...]",
	Short: "Build cohort tables from their part files",
	Long: `Join each cohort's part files (clinical, sample, expression, ...) on the
patient key and write the result to the source path. Without arguments every
source that declares parts is assembled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		results, err := e.Assemble(context.Background(), args)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%-10s %d parts → %d rows × %d columns (%d warnings)  %s\n",
				r.Tag, r.Parts, r.Rows, r.Columns, len(r.Warnings), r.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assembleCmd)
}
