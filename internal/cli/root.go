// Package cli is the maestro command line: local analyses with live
// progress, plus catalog listings.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/maestro-analyzer/internal/bootstrap"
	"github.com/bryanwahyu/maestro-analyzer/internal/config"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
)

const localTenant = "local"

var version = "dev"

// app holds the swappable dependencies of the commands, supaya gampang ditest.
type app struct {
	configPath string
	verbose    bool

	stdin   io.Reader
	newAI   func(cfg *config.Config, logger *slog.Logger) (ai.Client, error)
	signals func() (<-chan os.Signal, func())
}

func defaultApp() *app {
	return &app{
		stdin: os.Stdin,
		newAI: func(cfg *config.Config, logger *slog.Logger) (ai.Client, error) {
			return bootstrap.NewAI(cfg, nil, logger)
		},
		signals: func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 2)
			signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		},
	}
}

// Execute builds the root command tree and runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd(defaultApp()).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "maestro",
		Short:         "MAESTRO seven-layer threat analysis for agentic AI systems",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv()
		},
	}
	rootCmd.SetVersionTemplate("maestro version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("CONFIG_PATH"), "Path to config.yaml (optional)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log service internals to stderr")

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newLayersCmd(),
		newPresetsCmd(),
	)
	return rootCmd
}

// loadConfig reads the config and a stderr logger for the command.
func (a *app) loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.Log.Format = "text"
	if !a.verbose {
		cfg.Log.Level = "warn"
	}
	return cfg, bootstrap.NewLogger(cfg, stderr), nil
}
