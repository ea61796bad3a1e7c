package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"biliticket/possync/internal/service"
)

type SyncOptions struct {
	*RootOptions
	Force bool
}

type SyncResult struct {
	service.SyncReport
	Error string `json:"error,omitempty"`
}

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay pending queued actions against the retail server once",
		Long: `Replay every pending queue item in enqueue order and exit.

Exit codes:
  0 - every processed item completed
  1 - the run stopped early or some items failed
  2 - command error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "sync even when offline mode is switched on")
	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	ctx := cmd.Context()
	a, err := opts.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Network.State().OfflineMode && !opts.Force {
		return NewExitError(ExitCommandError, "offline mode is on; pass --force to sync anyway")
	}

	report, syncErr := a.Engine.SyncWithServer(ctx)
	result := SyncResult{SyncReport: report}
	if syncErr != nil {
		result.Error = syncErr.Error()
	}
	if err := printResult(cmd.OutOrStdout(), opts.Format, result, func(w io.Writer) {
		fmt.Fprintf(w, "processed %d: %d completed, %d failed, %d deferred\n",
			report.Processed, report.Completed, report.Failed, report.Deferred)
		if syncErr != nil {
			fmt.Fprintf(w, "stopped: %v\n", syncErr)
		}
	}); err != nil {
		return err
	}

	switch {
	case syncErr != nil:
		return WrapExitError(ExitFailure, "sync", syncErr)
	case report.Failed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d queued actions failed", report.Failed))
	}
	return nil
}
