package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackmichael/postboard/cmd/postctl/output"
	"github.com/blackmichael/postboard/internal/client"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print post changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			watcher, err := opts.client().NewWatcher(func(ev client.Event) {
				if opts.jsonOutput {
					writeJSON(w, ev)
					return
				}
				output.Info(w, "%s %s %s %s",
					ev.OccurredAt.Local().Format("15:04:05"), ev.Type, output.ID(ev.Post.ID), ev.Post.Title)
			}, opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			output.Muted(w, "Watching %s for post changes (Ctrl+C to stop)", opts.server)
			if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
