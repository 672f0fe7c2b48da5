package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var gapfillLimit int

var gapfillCmd = &cobra.Command{
	Use:   "gapfill",
	Short: "Re-run failed combinations parked in the dead letter queue",
	Long: "Dequeues eligible dead-letter entries from degraded windows and re-runs " +
		"each combination. Recovered answers are persisted under a fresh identity; " +
		"entries that fail again are requeued with a longer backoff.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Pipeline.GapFill(ctx, gapfillLimit)
		if err != nil {
			return err
		}

		zap.L().Info("gap-fill complete",
			zap.Int("attempted", report.Attempted),
			zap.Int("recovered", report.Recovered),
			zap.Int("requeued", report.Requeued),
			zap.Int("dropped", report.Dropped),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	gapfillCmd.Flags().IntVar(&gapfillLimit, "limit", 50, "max dead-letter entries to attempt")
	rootCmd.AddCommand(gapfillCmd)
}
