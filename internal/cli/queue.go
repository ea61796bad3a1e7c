package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"biliticket/possync/internal/model"
)

func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and retry offline queue items",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueRetryCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items in enqueue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := model.QueueStatus(status)
			if filter != "" && !filter.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", status))
			}
			ctx := cmd.Context()
			a, err := rootOpts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.Queue.Drain(ctx, filter)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, items, func(w io.Writer) {
				if len(items) == 0 {
					fmt.Fprintln(w, "queue is empty")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tENQUEUED\tERROR")
				for _, it := range items {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						it.ID, it.Type, it.Status, it.EnqueuedAt.Local().Format(time.DateTime), it.LastError)
				}
				_ = tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only items in this status (pending|processing|completed|failed)")
	return cmd
}

func newQueueRetryCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "retry [id]",
		Short: "Put failed items back in the pending state",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return NewExitError(ExitCommandError, "pass an id or --all, not both")
			}
			if !all && len(args) != 1 {
				return NewExitError(ExitCommandError, "an item id or --all is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var id uint64
			if !all {
				var err error
				if id, err = strconv.ParseUint(args[0], 10, 64); err != nil {
					return WrapExitError(ExitCommandError, "invalid id", err)
				}
			}

			a, err := rootOpts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var retried int64 = 1
			if all {
				retried, err = a.Engine.RetryFailed(ctx)
			} else {
				err = a.Engine.Retry(ctx, uint(id))
			}
			if err != nil {
				return WrapExitError(ExitFailure, "retry", err)
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, map[string]int64{"retried": retried}, func(w io.Writer) {
				fmt.Fprintf(w, "%d item(s) back to pending\n", retried)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "retry every failed item")
	return cmd
}
