package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/spec-kit/support-client/pkg/support"
)

func newCreateCmd(g *globalOptions) *cobra.Command {
	var (
		channel string
		attach  []string
	)

	cmd := &cobra.Command{
		Use:   "create <message>",
		Short: "Open a new ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := loadAttachments(attach)
			if err != nil {
				return err
			}
			return g.withClient(cmd, func(c *support.Client) error {
				t, err := c.CreateTicket(cmd.Context(), args[0], channel, files...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created ticket %s (%s, assigned to %s)\n", t.ID, t.State, t.Assignee)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "source channel (default $SUPPORT_CHANNEL)")
	cmd.Flags().StringArrayVar(&attach, "attach", nil, "file to attach (repeatable)")
	return cmd
}

func newSendCmd(g *globalOptions) *cobra.Command {
	var (
		attach []string
		queue  bool
	)

	cmd := &cobra.Command{
		Use:   "send <ticket> <text>",
		Short: "Send a message on a ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := loadAttachments(attach)
			if err != nil {
				return err
			}
			return g.withClient(cmd, func(c *support.Client) error {
				out := cmd.OutOrStdout()
				if !queue {
					msg, err := c.SendMessage(cmd.Context(), args[0], args[1], files...)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Sent message %s\n", msg.ID)
					return nil
				}
				msg, queued, err := c.SendMessageOrQueue(cmd.Context(), args[0], args[1], files...)
				if err != nil {
					return err
				}
				if queued {
					fmt.Fprintln(out, "Offline: message queued for delivery")
					return nil
				}
				fmt.Fprintf(out, "Sent message %s\n", msg.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&attach, "attach", nil, "file to attach (repeatable)")
	cmd.Flags().BoolVar(&queue, "queue", false, "queue the message when the backend is unreachable")
	return cmd
}

func newTicketsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "tickets",
		Aliases: []string{"ls"},
		Short:   "List tickets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				list, err := c.RefreshTickets(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No tickets.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATE\tUNREAD\tUPDATED\tLAST MESSAGE")
				for _, t := range list {
					last := "-"
					if t.LastMessage != nil {
						last = truncate(t.LastMessage.Text, 40)
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						t.ID, t.State, t.UnreadCount, t.UpdatedAt.Local().Format("2006-01-02 15:04"), last)
				}
				return w.Flush()
			})
		},
	}
}

func newShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ticket>",
		Short: "Show a ticket conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				sub, err := c.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer sub.Close()
				snap, ok := c.Ticket(args[0])
				if !ok {
					return fmt.Errorf("ticket %s not found", args[0])
				}
				printSnapshot(cmd.OutOrStdout(), snap)
				return nil
			})
		},
	}
}

func newReadCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <ticket>",
		Short: "Mark a ticket's agent messages read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				sub, err := c.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sub.Close()
				n := c.MarkRead(cmd.Context(), args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d message(s) read\n", n)
				return nil
			})
		},
	}
}

func newUnreadCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Print the unread message count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				n, err := c.RefreshUnreadCount(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func printSnapshot(out io.Writer, snap support.TicketSnapshot) {
	t := snap.Ticket
	fmt.Fprintf(out, "Ticket %s  %s  assigned to %s\n\n", t.ID, t.State, t.Assignee)
	for _, m := range t.Messages {
		who := m.Sender.Name
		if who == "" {
			who = string(m.Sender.Type)
		}
		marker := " "
		if m.Sender.IsAgent() && !m.Read {
			marker = "*"
		}
		fmt.Fprintf(out, "%s [%s] %s: %s\n", marker, m.CreatedAt.Local().Format("15:04:05"), who, m.Text)
		for _, a := range m.Attachments {
			fmt.Fprintf(out, "    attachment %s (%s) %s\n", a.Name, a.MimeType, a.ID)
		}
	}
	if snap.TypingIndicatorVisible {
		fmt.Fprintln(out, "\n  agent is typing...")
	}
}

// loadAttachments reads files from disk and sniffs their MIME type.
func loadAttachments(paths []string) ([]support.Attachment, error) {
	out := make([]support.Attachment, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		out = append(out, support.Attachment{
			Name:     filepath.Base(p),
			MimeType: mimetype.Detect(data).String(),
			Data:     data,
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
