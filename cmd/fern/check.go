package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/models"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Score a participant snapshot against stored participants",
	Long: `Read a participant snapshot from a JSON file and list the stored
participants it likely duplicates. Nothing is written.

Examples:
  fern check --file snapshot.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var partial models.ParticipantSnapshot
		if err := json.Unmarshal(data, &partial); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		candidates, err := a.checker.Check(cmd.Context(), partial)
		if err != nil {
			return err
		}

		if len(candidates) == 0 {
			color.Green("No likely duplicates")
			return nil
		}
		color.New(color.Bold).Printf("%d likely duplicates\n", len(candidates))
		for _, c := range candidates {
			fmt.Printf("  %-40s %s\n", c.ParticipantID, color.YellowString("%.3f", c.WeightedScore))
			for _, fs := range c.Breakdown {
				fmt.Printf("      %-24s %.2f x %.2f\n", fs.Field, fs.Similarity, fs.Weight)
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().String("file", "", "Path to a participant snapshot JSON file")
	_ = checkCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(checkCmd)
}
