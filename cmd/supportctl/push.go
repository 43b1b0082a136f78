package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-client/pkg/support"
)

func newPushCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Inspect push payloads",
	}
	cmd.AddCommand(newPushClassifyCmd(g))
	cmd.AddCommand(newPushTapCmd(g))
	return cmd
}

func newPushClassifyCmd(g *globalOptions) *cobra.Command {
	var chatOpen bool

	cmd := &cobra.Command{
		Use:   "classify <payload.json|->",
		Short: "Report whether a payload is owned and how it would be presented",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return g.withClient(cmd, func(c *support.Client) error {
				c.SetAppState(support.AppState{ChatOpen: chatOpen})
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "owned: %t\n", c.IsOwnedPush(payload))
				fmt.Fprintf(out, "presentation: %s\n", c.PresentationPolicy(payload))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&chatOpen, "chat-open", false, "treat the chat UI as visible")
	return cmd
}

func newPushTapCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tap <payload.json|->",
		Short: "Resolve a tapped payload to its ticket and show it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return g.withClient(cmd, func(c *support.Client) error {
				note, err := c.HandleTap(cmd.Context(), payload)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Opening ticket %s\n", note.TicketID)
				sub, err := c.Open(cmd.Context(), note.TicketID)
				if err != nil {
					return err
				}
				defer sub.Close()
				if snap, ok := c.Ticket(note.TicketID); ok {
					printSnapshot(out, snap)
				}
				return nil
			})
		},
	}
}

// readPayload decodes a JSON object from a file, or stdin when path is "-".
func readPayload(stdin io.Reader, path string) (map[string]any, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
