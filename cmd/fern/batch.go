package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the batch comparator once",
	Long: `Compare blocked participant pairs and reconcile the duplicate index.

Runs are incremental when the previous run used the same blocking keys and
scoring configuration. Use --full to rescore every candidate pair.

Examples:
  fern batch
  fern batch --full`,
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		run, err := a.comparator.Run(ctx, batch.RunOptions{Full: full})
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		bold.Printf("Batch run %s (%s)\n", run.ID, run.Mode)
		fmt.Printf("  participants:   %d\n", run.Participants)
		fmt.Printf("  pairs scored:   %d\n", run.PairsScored)
		fmt.Printf("  pairs upserted: %s\n", color.GreenString("%d", run.PairsUpserted))
		fmt.Printf("  pairs removed:  %s\n", color.YellowString("%d", run.PairsRemoved))
		if run.PairsSkipped > 0 {
			fmt.Printf("  pairs skipped:  %s\n", color.RedString("%d", run.PairsSkipped))
		}
		fmt.Printf("  took:           %v\n", run.FinishedAt.Sub(run.StartedAt))
		return nil
	},
}

func init() {
	batchCmd.Flags().Bool("full", false, "Rescore every candidate pair")
	rootCmd.AddCommand(batchCmd)
}
