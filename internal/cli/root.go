// Package cli is the possync command line: the till daemon plus a few
// maintenance commands that work on the same local database.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"biliticket/possync/internal/app"
	"biliticket/possync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "possync",
		Short: "Offline-first point-of-sale data and sync core",
		Long: `possync keeps a till selling while the retail server is unreachable.
Orders and payments taken offline are queued locally and replayed in order
once connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml (defaults and env vars when empty)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func (o *RootOptions) loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "init logger", err)
	}
	return cfg, logger, nil
}

// openApp builds the till for a one-shot command. Callers must Close it.
func (o *RootOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open local store", err)
	}
	return a, nil
}
