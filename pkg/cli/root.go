// Package cli implements the rolesweep command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rolesweep/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var profile string

	rootCmd := &cobra.Command{
		Use:           "rolesweep",
		Short:         "Detect and remove redundant Azure role assignments",
		Long:          "rolesweep finds direct user role assignments already covered by a group assignment\nfor the same role at the same scope, writes them to a reviewable CSV ledger,\nand removes reviewed assignments under an explicit dry-run/live switch.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Named profile from ~/.rolesweep/config.yaml")

	rootCmd.AddCommand(newGenerateCmd(&profile))
	rootCmd.AddCommand(newRemoveCmd(&profile))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newLogger builds the process logger from environment configuration and
// emits any warnings collected while loading it.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return logger
}
