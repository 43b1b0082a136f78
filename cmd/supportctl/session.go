package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-client/pkg/support"
)

func newLoginCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Start an anonymous session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				c.Login(cmd.Context())
				// The backend session opens lazily; force it so the customer ID is known.
				if _, err := c.RefreshTickets(cmd.Context()); err != nil {
					return fmt.Errorf("open session: %w", err)
				}
				rec := c.Session()
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", rec.Customer.ID, rec.State)
				return nil
			})
		},
	}
}

func newLogoutCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				c.Logout(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				rec := c.Session()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "State:\t%s\n", rec.State)
				if rec.State == support.SessionLoggedOut {
					return w.Flush()
				}
				fmt.Fprintf(w, "Customer:\t%s\n", orDash(rec.Customer.ID))
				fmt.Fprintf(w, "Email:\t%s\n", orDash(deref(rec.Customer.Email)))
				fmt.Fprintf(w, "Original ID:\t%s\n", orDash(deref(rec.Customer.OriginalID)))
				if rec.Device != nil {
					fmt.Fprintf(w, "Device:\t%s\n", rec.Device.Token)
				}
				if !rec.TokenExpiresAt.IsZero() {
					fmt.Fprintf(w, "Token expires:\t%s\n", rec.TokenExpiresAt.Local().Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
}

func newIdentifyCmd(g *globalOptions) *cobra.Command {
	var (
		email      string
		originalID string
	)

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Attach an email or host user ID to the customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" && originalID == "" {
				return fmt.Errorf("at least one of --email or --original-id is required")
			}
			return g.withClient(cmd, func(c *support.Client) error {
				if err := c.UpdateCustomer(cmd.Context(), optional(email), optional(originalID)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Customer %s is now %s\n", c.Session().Customer.ID, c.State())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "customer email")
	cmd.Flags().StringVar(&originalID, "original-id", "", "host application user ID")
	return cmd
}

func newDeviceCmd(g *globalOptions) *cobra.Command {
	var originalID string

	cmd := &cobra.Command{
		Use:   "device <hex-token>",
		Short: "Register a push token for this session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := hex.DecodeString(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("token must be hex: %w", err)
			}
			return g.withClient(cmd, func(c *support.Client) error {
				if err := c.RegisterDevice(cmd.Context(), token, optional(originalID)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Device registered")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&originalID, "original-id", "", "host application device ID")
	return cmd
}

func newBrandingCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "branding",
		Short: "Show the chat branding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(c *support.Client) error {
				b, err := c.Branding(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "Title:\t%s\n", b.Title)
				fmt.Fprintf(w, "Accent:\t%s\n", orDash(b.AccentColor))
				fmt.Fprintf(w, "Logo:\t%s\n", orDash(b.LogoURL))
				fmt.Fprintf(w, "Welcome:\t%s\n", orDash(b.WelcomeMessage))
				return w.Flush()
			})
		},
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
