package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"biliticket/possync/internal/app"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the till daemon and its local API",
		Long: `Serve the local HTTP API used by the checkout UI, hold the heartbeat to the
retail server and sync queued actions whenever the till comes back online.
SIGINT or SIGTERM shuts it down gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "start", err)
			}
			defer a.Close()

			logger.Info("possync starting",
				zap.String("terminal", cfg.POS.TerminalID),
				zap.String("remote", cfg.Remote.BaseURL),
				zap.String("durable", cfg.Storage.Durable.Driver),
				zap.String("fast_tier", cfg.Storage.FastTier.Backend),
			)
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info("possync stopped")
			return nil
		},
	}
}
