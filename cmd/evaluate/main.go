package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/evaluation"
	"github.com/farmora/backend/internal/intent"
	"github.com/farmora/backend/internal/moderator"
	"github.com/farmora/backend/internal/tools/geo"
	"github.com/farmora/backend/pkg/config"
	appLogger "github.com/farmora/backend/pkg/logger"
)

func main() {
	var (
		datasetPath string
		threshold   float64
		asJSON      bool
		minAccuracy float64
	)

	rootCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the intent classifier and relevance check against a labelled question set",
		Long: `Runs every question of a labelled dataset through the intent classifier and,
for items that carry an answer and a relevance label, through the moderator's
relevance strategy. Without --dataset the built-in question set is used.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := appLogger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer appLogger.Sync()

			var raw []byte
			if datasetPath != "" {
				raw, err = os.ReadFile(datasetPath)
				if err != nil {
					return fmt.Errorf("failed to read dataset: %w", err)
				}
			}
			dataset, err := evaluation.LoadDataset(raw)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Pipeline.RelevanceThreshold
			}

			pc := cfg.Pipeline
			classifier := intent.NewClassifier(intent.Config{
				ConfidenceThreshold: pc.ClassifierConfidenceThreshold,
				SecondaryThreshold:  pc.SecondaryIntentThreshold,
				MaxLength:           pc.MaxQuestionLength,
				MultiIntent:         intent.MultiIntentMode(pc.MultiIntent),
			}, geo.Default())

			report := evaluation.NewEvaluator(classifier, moderator.KeywordOverlap{}, threshold).Run(dataset)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("failed to encode report: %w", err)
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), report.String())
			}

			if minAccuracy > 0 && report.IntentAccuracy < minAccuracy {
				appLogger.Warn("Intent accuracy below minimum",
					zap.Float64("accuracy", report.IntentAccuracy),
					zap.Float64("minimum", minAccuracy),
				)
				return fmt.Errorf("intent accuracy %.1f%% below %.1f%%", report.IntentAccuracy, minAccuracy)
			}
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Path to a JSON dataset")
	rootCmd.Flags().Float64Var(&threshold, "threshold", 0.2, "Relevance threshold (defaults to pipeline.relevanceThreshold)")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	rootCmd.Flags().Float64Var(&minAccuracy, "min-accuracy", 0, "Exit non-zero when intent accuracy falls below this percentage")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
