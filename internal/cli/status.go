package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"biliticket/possync/internal/model"
)

type StatusResult struct {
	OfflineMode  bool                        `json:"offlineMode"`
	Queue        map[model.QueueStatus]int64 `json:"queue"`
	LastSyncTime *time.Time                  `json:"lastSyncTime,omitempty"`
	User         string                      `json:"user,omitempty"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts, the offline switch and the last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rootOpts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result := StatusResult{
				OfflineMode: a.Network.State().OfflineMode,
				Queue:       make(map[model.QueueStatus]int64),
			}
			for _, s := range []model.QueueStatus{
				model.QueueStatusPending, model.QueueStatusProcessing,
				model.QueueStatusFailed, model.QueueStatusCompleted,
			} {
				n, err := a.Queue.Count(ctx, s)
				if err != nil {
					return err
				}
				result.Queue[s] = n
			}
			last, err := a.Engine.LastSyncTime(ctx)
			if err != nil {
				return err
			}
			if !last.IsZero() {
				result.LastSyncTime = &last
			}
			if user, err := a.Client.StoredUser(ctx); err == nil && user != nil {
				result.User = user.Username
			}

			return printResult(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) {
				fmt.Fprintf(w, "offline mode:  %t\n", result.OfflineMode)
				fmt.Fprintf(w, "pending:       %d\n", result.Queue[model.QueueStatusPending])
				fmt.Fprintf(w, "failed:        %d\n", result.Queue[model.QueueStatusFailed])
				fmt.Fprintf(w, "completed:     %d\n", result.Queue[model.QueueStatusCompleted])
				if result.LastSyncTime != nil {
					fmt.Fprintf(w, "last sync:     %s\n", result.LastSyncTime.Local().Format(time.DateTime))
				} else {
					fmt.Fprintln(w, "last sync:     never")
				}
				if result.User != "" {
					fmt.Fprintf(w, "user:          %s\n", result.User)
				}
			})
		},
	}
}
