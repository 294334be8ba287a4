package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last consolidation run",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		m, err := e.Status()
		if err != nil {
			return fmt.Errorf("loading manifest: %w", err)
		}
		if m == nil {
			fmt.Println("No consolidation has run yet.")
			return nil
		}

		fmt.Printf("Run:      %s\n", m.RunID)
		fmt.Printf("Status:   %s\n", m.Status)
		fmt.Printf("Started:  %s\n", m.StartedAt.Format(time.RFC3339))
		if !m.FinishedAt.IsZero() {
			fmt.Printf("Finished: %s (%s)\n", m.FinishedAt.Format(time.RFC3339), m.FinishedAt.Sub(m.StartedAt).Round(time.Millisecond))
		}
		if m.Error != "" {
			fmt.Printf("Error:    %s\n", m.Error)
		}
		fmt.Println()

		for _, step := range state.Steps {
			mark := "  "
			ss, ok := m.Steps[step]
			switch {
			case ok && ss.Status == state.StatusComplete:
				mark = "OK"
			case ok:
				mark = "--"
			}
			line := fmt.Sprintf("  [%s] %s", mark, step)
			if ok && ss.Duration > 0 {
				line += fmt.Sprintf(" (%s)", ss.Duration.Round(time.Millisecond))
			}
			fmt.Println(line)
		}
		fmt.Println()

		for _, in := range m.Inputs {
			fmt.Printf("Input %-10s %s  %d rows, %d projected\n", in.Tag, in.Fingerprint, in.Rows, in.Projected)
		}
		if m.Output != nil {
			fmt.Printf("Output           %s  %d rows × %d columns\n", m.Output.Fingerprint, m.Output.Rows, m.Output.Columns)
		}
		fmt.Printf("Warnings: %d\n", m.Warnings)
		if m.Validation != nil {
			fmt.Printf("Validation: %s\n", m.Validation.Status)
		}

		if m.Status == state.StatusComplete {
			same, err := m.Unchanged()
			if err == nil && !same {
				fmt.Println("\nInputs changed since this run; run 'brcamerge consolidate' again.")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
