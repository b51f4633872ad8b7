package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fractal-lba/scorelens/internal/config"
	"github.com/fractal-lba/scorelens/internal/logging"
	"github.com/fractal-lba/scorelens/internal/registry"
)

var (
	cfgFile string
	output  string
	version = "dev"

	v   = viper.New()
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "scorectl",
		Short: "Train, register and query explainable credit score models",
		Long: `scorectl trains gradient-boosted credit score models from CSV exports,
stores them in the model registry and explains individual predictions.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./scorelens.yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "format", "o", "json", "output format (json, yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(versionsCmd())
	rootCmd.AddCommand(cardCmd())
	rootCmd.AddCommand(activateCmd())
	rootCmd.AddCommand(rollbackCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if _, err := logging.Setup(loaded.Logging.Level, loaded.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	cfg = loaded
	return nil
}

// withRegistry opens the configured registry for the duration of fn.
func withRegistry(fn func(*registry.Registry) error) error {
	reg, err := cfg.OpenRegistry(slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			slog.Warn("Failed to close registry", "error", err)
		}
	}()
	return fn(reg)
}

func writeOutput(w io.Writer, value any) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(value)
	default:
		return fmt.Errorf("invalid output format: %s", output)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading so version works without a valid setup.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "scorectl", version)
		},
	}
}
