package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	httptransport "github.com/spec-kit/support-client/internal/api/http"
	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "supportctl dev")
	assert.Contains(t, buf.String(), "commit: none")
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "supportctl 1.0.0 (commit: abc123, built: 2026-01-01)")
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	for _, sub := range []string{"login", "logout", "whoami", "identify", "create", "send", "tickets", "show", "read", "unread", "watch", "push", "outbox", "branding", "device"} {
		assert.Contains(t, out, sub)
	}
	for _, flag := range []string{"--base-url", "--api-key", "--db", "--log-level"} {
		assert.Contains(t, out, flag)
	}
}

func TestExecuteReturnsNonZeroOnError(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"show"})
	assert.Equal(t, 1, execute(cmd))
}

func TestDeviceRejectsNonHexToken(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"device", "not-hex"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hex")
}

const sandboxKey = "cli-key"

type cli struct {
	t       *testing.T
	baseURL string
	db      string
}

func newCLI(t *testing.T) (*cli, *httptransport.SandboxServer) {
	t.Helper()
	srv, err := httptransport.NewSandboxServer(config.Config{
		App: config.AppConfig{Name: "support-client", SDKVersion: "test"},
		Sandbox: config.SandboxConfig{
			APIKey:          sandboxKey,
			JWTSecret:       "cli-secret",
			TokenTTLMinutes: 60,
			BcryptCost:      bcrypt.MinCost,
			DefaultAssignee: string(domain.AssigneeHumanAgent),
		},
	}, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &cli{
		t:       t,
		baseURL: "http://" + ln.Addr().String(),
		db:      filepath.Join(t.TempDir(), "session.db"),
	}, srv
}

func (c *cli) run(args ...string) string {
	c.t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--base-url", c.baseURL, "--api-key", sandboxKey, "--db", c.db, "--log-level", "error"}, args...))
	require.NoError(c.t, cmd.ExecuteContext(context.Background()), buf.String())
	return buf.String()
}

func TestConversationAcrossInvocations(t *testing.T) {
	c, srv := newCLI(t)

	out := c.run("whoami")
	assert.Contains(t, out, "logged_out")

	out = c.run("login")
	assert.Contains(t, out, "Logged in as")
	assert.Contains(t, out, "anonymous")

	out = c.run("create", "Need help with my order")
	m := regexp.MustCompile(`Created ticket (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	ticketID := m[1]

	out = c.run("tickets")
	assert.Contains(t, out, ticketID)
	assert.Contains(t, out, "Need help with my order")

	out = c.run("send", ticketID, "Order 1234")
	assert.Contains(t, out, "Sent message")

	_, err := srv.Backend.AgentReply(context.Background(), ticketID,
		domain.Sender{Type: domain.SenderHumanAgent, Name: "Ann"}, "Looking into it", "")
	require.NoError(t, err)

	assert.Equal(t, "1", strings.TrimSpace(c.run("unread")))

	out = c.run("show", ticketID)
	assert.Contains(t, out, "Ann: Looking into it")
	assert.Contains(t, out, "Order 1234")

	out = c.run("read", ticketID)
	assert.Contains(t, out, "Marked 1 message(s) read")
	assert.Equal(t, "0", strings.TrimSpace(c.run("unread")))

	out = c.run("identify", "--email", "jane@example.com")
	assert.Contains(t, out, "identified")
	assert.Contains(t, c.run("whoami"), "jane@example.com")

	out = c.run("outbox", "list")
	assert.Contains(t, out, "Outbox is empty.")

	c.run("logout")
	assert.Contains(t, c.run("whoami"), "logged_out")
}
