package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/observability"
	"github.com/spec-kit/support-client/pkg/support"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalOptions are flags shared by every command.
type globalOptions struct {
	baseURL  string
	apiKey   string
	dbPath   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "supportctl",
		Short:         "Support chat client from the command line",
		Long:          "supportctl talks to a support backend as a customer: open tickets, send messages, follow replies.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&g.baseURL, "base-url", "", "backend base URL (default $SUPPORT_API_BASE_URL)")
	cmd.PersistentFlags().StringVar(&g.apiKey, "api-key", "", "backend API key (default $SUPPORT_API_KEY)")
	cmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "sqlite session file (default $SUPPORT_SQLITE_PATH)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (default $LOG_LEVEL)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLoginCmd(g))
	cmd.AddCommand(newLogoutCmd(g))
	cmd.AddCommand(newWhoamiCmd(g))
	cmd.AddCommand(newIdentifyCmd(g))
	cmd.AddCommand(newDeviceCmd(g))
	cmd.AddCommand(newBrandingCmd(g))
	cmd.AddCommand(newCreateCmd(g))
	cmd.AddCommand(newSendCmd(g))
	cmd.AddCommand(newTicketsCmd(g))
	cmd.AddCommand(newShowCmd(g))
	cmd.AddCommand(newReadCmd(g))
	cmd.AddCommand(newUnreadCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newPushCmd(g))
	cmd.AddCommand(newOutboxCmd(g))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "supportctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// open builds a client from the environment and flags. The session always
// lives in sqlite so it survives between invocations.
func (g *globalOptions) open(cmd *cobra.Command) (*support.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.baseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(g.baseURL, "/")
	}
	if g.apiKey != "" {
		cfg.API.APIKey = g.apiKey
	}
	if g.dbPath != "" {
		cfg.Session.SQLitePath = g.dbPath
	}
	if g.logLevel != "" {
		cfg.Logger.Level = g.logLevel
	}
	cfg.Session.Store = config.SessionStoreSQLite
	if cfg.App.SDKVersion == "dev" {
		cfg.App.SDKVersion = Version
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return support.New(cmd.Context(), *cfg, support.WithLogger(logger), support.WithDevice(support.DeviceInfo{
		Platform:   "cli",
		AppVersion: Version,
		Locale:     os.Getenv("LANG"),
	}))
}

// withClient opens a client, runs fn and closes the client, which waits
// for background receipts.
func (g *globalOptions) withClient(cmd *cobra.Command, fn func(c *support.Client) error) error {
	c, err := g.open(cmd)
	if err != nil {
		return err
	}
	runErr := fn(c)
	if err := c.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
