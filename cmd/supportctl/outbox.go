package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-client/pkg/support"
)

func newOutboxCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay queued messages",
	}
	cmd.AddCommand(newOutboxListCmd(g))
	cmd.AddCommand(newOutboxFlushCmd(g))
	return cmd
}

func newOutboxListCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				entries, err := c.PendingOutbox(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Outbox is empty.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTICKET\tATTEMPTS\tNEXT ATTEMPT\tTEXT")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						e.ID, e.TicketID, e.Attempts, e.NextAttemptAt.Local().Format("15:04:05"), truncate(e.Text, 40))
				}
				return w.Flush()
			})
		},
	}
}

func newOutboxFlushCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Replay queued messages now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				res, err := c.Reconnected(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "delivered %d, retrying %d, dropped %d\n", res.Delivered, res.Retried, res.Dropped)
				return nil
			})
		},
	}
}
