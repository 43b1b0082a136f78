package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-client/pkg/support"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	var (
		duration time.Duration
		ticketID string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for replies and print notifications",
		Long:  "Polls the backend on $SUPPORT_POLL_SCHEDULE and prints live notifications and unread count changes until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return g.withClient(cmd, func(c *support.Client) error {
				if c.State() == support.SessionLoggedOut {
					return fmt.Errorf("not logged in")
				}
				if ticketID != "" {
					c.SetAppState(support.AppState{ChatOpen: true, OpenTicketID: ticketID})
				}

				notes := c.Notifications()
				defer notes.Close()
				unread := c.WatchUnreadCount()
				defer unread.Close()

				if err := c.Poll(ctx); err != nil {
					return err
				}
				if err := c.StartPolling(ctx); err != nil {
					return err
				}
				defer c.StopPolling()

				return watchLoop(ctx, cmd, notes, unread)
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&ticketID, "ticket", "", "treat this ticket as open in the chat UI")
	return cmd
}

func watchLoop(ctx context.Context, cmd *cobra.Command, notes *support.Subscription[support.Notification], unread *support.Subscription[int]) error {
	out := cmd.OutOrStdout()
	last := -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notes.C():
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "[%s] %s on %s: %s\n", time.Now().Format("15:04:05"), orDash(n.SenderName), n.TicketID, n.Preview)
		case count, ok := <-unread.C():
			if !ok {
				return nil
			}
			if count != last {
				fmt.Fprintf(out, "unread: %d\n", count)
				last = count
			}
		}
	}
}
