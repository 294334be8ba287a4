package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/engine"
	"github.com/brcamerge/brcamerge/internal/state"
)

var (
	consolidateForce     bool
	consolidateSkipSinks bool
	consolidateSamples   int
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Build the unified table from every source",
	Long: `Project each source onto the mapping file's unified names, stack the rows
with a dataset_source column, normalize survival units and categorical codes,
then write the unified CSV, the completeness report and the run manifest.
Configured sinks (SQLite, PostgreSQL, MongoDB) are loaded afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closer, err := newEngine()
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		run, err := e.Consolidate(ctx, engine.ConsolidateOptions{
			Force:      consolidateForce,
			SkipSinks:  consolidateSkipSinks,
			SampleSize: consolidateSamples,
		})
		if run != nil && run.UpToDate {
			fmt.Printf("Up to date: inputs unchanged since run %s (use --force to rebuild).\n", run.Manifest.RunID)
			return nil
		}
		if run != nil && run.Manifest != nil {
			printRun(run)
		}
		if errors.Is(err, engine.ErrValidationFailed) {
			fmt.Println("\nValidation failures:")
			for _, f := range run.Manifest.Validation.Failures() {
				fmt.Printf("  - %s\n", f)
			}
		}
		return err
	},
}

func printRun(run *engine.Run) {
	m := run.Manifest
	fmt.Printf("\nRun %s\n", m.RunID)
	for _, in := range m.Inputs {
		fmt.Printf("  %-10s %6d rows → %6d projected (%d warnings)\n", in.Tag, in.Rows, in.Projected, in.Warnings)
	}
	if m.Output != nil {
		fmt.Printf("  Unified: %s (%d rows × %d columns)\n", m.Output.Path, m.Output.Rows, m.Output.Columns)
	}
	if run.Result != nil {
		fmt.Printf("  Normalized cells: %d\n", run.Result.Summary.Changed())
	}
	for _, s := range run.Sinks {
		status := "OK"
		if !s.OK() {
			status = "FAILED: " + s.Error
		}
		fmt.Printf("  Sink %-8s %d rows  %s\n", s.Sink, s.Written, status)
	}
	if m.Validation != nil {
		fmt.Printf("  Validation: %s\n", m.Validation.Status)
	}
	fmt.Printf("  Manifest: %s\n", state.FileName)
}

func init() {
	consolidateCmd.Flags().BoolVar(&consolidateForce, "force", false, "rebuild even when inputs are unchanged")
	consolidateCmd.Flags().BoolVar(&consolidateSkipSinks, "skip-sinks", false, "write local files only")
	consolidateCmd.Flags().IntVar(&consolidateSamples, "sample-size", 0, "rows per source compared value by value during validation")
	rootCmd.AddCommand(consolidateCmd)
}
