package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/engine"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a default project config and an empty mapping file",
	Long: `Write brcamerge.yaml for the three reference cohorts (data under data/,
results under output/) and an empty mapeo_columnas.yaml. Existing files are
not overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		path, err := engine.InitProject(dir)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration saved to %s\n", path)
		fmt.Println("Next: place the cohort tables under data/ and run 'brcamerge columns'.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
