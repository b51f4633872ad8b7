package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fractal-lba/scorelens/internal/dataset"
	"github.com/fractal-lba/scorelens/internal/metrics"
	"github.com/fractal-lba/scorelens/internal/registry"
	"github.com/fractal-lba/scorelens/internal/training"
)

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model from a CSV export and register it",
		Long: `Train a gradient-boosted model against the synthetic credit score target,
build its attribution engine and register the bundle with a model card.

Columns outside the feature catalog are skipped. Pass --activate to serve
the new version immediately.`,
		RunE: runTrain,
	}

	cmd.Flags().String("data", "", "path to the training CSV (required)")
	cmd.Flags().Bool("activate", false, "activate the new version after registering it")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")
	cmd.Flags().String("metrics-file", "", "write training metrics in Prometheus text format to this file")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runTrain(cmd *cobra.Command, _ []string) error {
	dataPath, _ := cmd.Flags().GetString("data")
	activate, _ := cmd.Flags().GetBool("activate")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	ds, err := dataset.LoadFile(dataPath)
	if err != nil {
		return err
	}
	features, skipped := ds.ModelingFeatures()
	if len(skipped) > 0 {
		slog.Warn("Skipping columns outside the feature catalog", "columns", skipped)
	}
	slog.Info("Loaded training data", "path", dataPath, "rows", len(ds.Rows), "features", len(features))

	promReg := prometheus.NewRegistry()
	tracker := metrics.NewTrainingTracker(promReg)
	defer func() {
		if metricsFile == "" {
			return
		}
		if err := prometheus.WriteToTextfile(metricsFile, promReg); err != nil {
			slog.Warn("Failed to write training metrics", "path", metricsFile, "error", err)
		}
	}()

	pcfg := cfg.TrainingPipeline()
	var progress func(round, total int, mse float64)
	if !noProgress {
		bar := newTrainingBar(pcfg.Model.Ensemble.NEstimators)
		progress = func(_, _ int, _ float64) {
			if err := bar.Add(1); err != nil {
				slog.Debug("Failed to update progress bar", "error", err)
			}
		}
	}

	start := time.Now()
	res, err := training.New(pcfg, slog.Default()).Run(cmd.Context(), ds.Rows, features, progress)
	if err != nil {
		tracker.RecordFailure()
		return fmt.Errorf("training failed: %w", err)
	}

	return withRegistry(func(reg *registry.Registry) error {
		card, err := reg.Register(cmd.Context(), res)
		if err != nil {
			tracker.RecordFailure()
			return fmt.Errorf("register bundle: %w", err)
		}
		tracker.RecordRun(card.Version, res.Metrics, time.Since(start))

		if activate {
			if err := reg.Activate(cmd.Context(), card.Version); err != nil {
				return err
			}
			slog.Info("Activated model", "version", card.Version)
		}
		return writeOutput(cmd.OutOrStdout(), card)
	})
}

func newTrainingBar(rounds int) *progressbar.ProgressBar {
	return progressbar.NewOptions(rounds,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Boosting rounds[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a CSV export before training",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataPath, _ := cmd.Flags().GetString("data")
			ds, err := dataset.LoadFile(dataPath)
			if err != nil {
				return err
			}
			features, skipped := ds.ModelingFeatures()
			return writeOutput(cmd.OutOrStdout(), struct {
				dataset.Summary `yaml:",inline"`
				Features        []string `json:"modeling_features" yaml:"modeling_features"`
				Skipped         []string `json:"skipped_columns,omitempty" yaml:"skipped_columns,omitempty"`
			}{ds.Summarize(), features, skipped})
		},
	}
	cmd.Flags().String("data", "", "path to the CSV (required)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
