package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/ws"
)

var watchStatuses []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream marketplace events from the node feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var statuses []job.Status
		for _, s := range watchStatuses {
			st, err := job.ParseStatus(s)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		url := newClient().FeedURL()
		w := ws.NewWatcher(url, statuses, func(e feed.Event) {
			pterm.Println(eventLine(e))
		})
		pterm.Info.Printfln("Watching %s", url)

		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchStatuses, "status", nil, "only deliver job events entering these statuses")
}
