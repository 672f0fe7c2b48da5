package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/pipeline"
)

// errWindowInvalid maps the coverage gate onto exit code 2 in main.
var errWindowInvalid = eris.New("run: window closed invalid, aggregation skipped")

var (
	runDomains []string
	runPrompts []string
	runModels  []string
	runResume  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one query window across domains, prompts, and models",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		var report *pipeline.WindowReport
		if runResume != "" {
			report, err = env.Pipeline.Resume(ctx, runResume)
		} else {
			if len(runDomains) == 0 || len(runPrompts) == 0 {
				return eris.New("run: --domains and --prompts are required unless --resume is set")
			}
			models := runModels
			if len(models) == 0 {
				models = env.ModelNames()
			}
			report, err = env.Pipeline.RunWindow(ctx, runDomains, runPrompts, models)
		}
		if err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.String("run_id", report.RunID),
			zap.Float64("coverage", report.Coverage),
			zap.String("tier", report.Tier),
			zap.Int("raw_saved", report.RawSaved),
			zap.Int("drift_alerts", report.DriftAlerts),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}

		if report.SkipAggregation {
			return errWindowInvalid
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runDomains, "domains", nil, "domains to query (required unless --resume)")
	runCmd.Flags().StringSliceVar(&runPrompts, "prompts", nil, "prompt ids from the catalog (required unless --resume)")
	runCmd.Flags().StringSliceVar(&runModels, "models", nil, "model names to fan out across (default: all configured)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "run id to resume from its checkpoint")
	rootCmd.AddCommand(runCmd)
}
