package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fractal-lba/scorelens/internal/registry"
)

type versionList struct {
	Active   string   `json:"active,omitempty" yaml:"active,omitempty"`
	Versions []string `json:"versions" yaml:"versions"`
}

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List registered model versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(func(reg *registry.Registry) error {
				versions, err := reg.Versions(cmd.Context())
				if err != nil {
					return err
				}
				active, err := reg.ActiveVersion(cmd.Context())
				if err != nil && !errors.Is(err, registry.ErrNoActive) {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), versionList{Active: active, Versions: versions})
			})
		},
	}
}

func cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card [version]",
		Short: "Show the model card of a version (default: active)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(reg *registry.Registry) error {
				ver := ""
				if len(args) == 1 {
					ver = args[0]
				} else {
					active, err := reg.ActiveVersion(cmd.Context())
					if err != nil {
						return err
					}
					ver = active
				}
				card, err := reg.Card(cmd.Context(), ver)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), card)
			})
		},
	}
	return cmd
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <version>",
		Short: "Serve a registered version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(reg *registry.Registry) error {
				if err := reg.Activate(cmd.Context(), args[0]); err != nil {
					return err
				}
				slog.Info("Activated model", "version", args[0])
				return nil
			})
		},
	}
}

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Reactivate the previously active version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(func(reg *registry.Registry) error {
				v, err := reg.Rollback(cmd.Context())
				if err != nil {
					return err
				}
				slog.Info("Rolled back model", "version", v)
				return nil
			})
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [version...]",
		Short: "Check stored bundles against their recorded SHA-256",
		Long: `Recompute the digest of each stored bundle and compare it with the digest
recorded at registration. With no arguments every version is checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(reg *registry.Registry) error {
				versions := args
				if len(versions) == 0 {
					all, err := reg.Versions(cmd.Context())
					if err != nil {
						return err
					}
					versions = all
				}
				var failed int
				for _, ver := range versions {
					if err := reg.VerifyIntegrity(cmd.Context(), ver); err != nil {
						slog.Error("Integrity check failed", "version", ver, "error", err)
						failed++
						continue
					}
					slog.Info("Integrity check passed", "version", ver)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d versions failed verification", failed, len(versions))
				}
				return nil
			})
		},
	}
}
