package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/report"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report [unified.csv]",
	Short: "Compute the completeness report of a unified table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		rep, err := e.Report(path)
		if err != nil {
			return err
		}
		if reportJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		fmt.Print(report.FormatText(rep))
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}
