package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Dump each source's columns and write the column inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		inv, err := e.Columns(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(inv.Summary())
		fmt.Printf("Inventory: %s\n", e.Config.OutputPath(e.Config.Output.Inventory))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(columnsCmd)
}
