package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/taskdesk/authz"
	"github.com/jmcleod/taskdesk/credstore"
	"github.com/jmcleod/taskdesk/internal/apitest"
	"github.com/jmcleod/taskdesk/internal/app"
	"github.com/jmcleod/taskdesk/internal/config"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type cli struct {
	srv      *apitest.Server
	cfg      config.Config
	baseArgs []string
}

func setupCLI(t *testing.T) *cli {
	t.Helper()
	srv := apitest.NewServer(t)
	srv.AddUser("alice", "alice@example.com", "secret")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("rate_limit: 0\nlog_level: error\n"), 0o600))

	cfg := config.Defaults()
	cfg.APIURL = srv.BaseURL()
	cfg.DataDir = t.TempDir()
	cfg.RateLimit = 0
	cfg.LogLevel = "error"

	return &cli{
		srv: srv,
		cfg: cfg,
		baseArgs: []string{
			"--config", cfgPath,
			"--api-url", cfg.APIURL,
			"--data-dir", cfg.DataDir,
		},
	}
}

// run executes one command line with input on stdin and returns stdout.
func (c *cli) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	resetCommands(t.Context(), rootCmd)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args, c.baseArgs...))
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, "", args...)
	require.NoError(t, err, "taskdesk %s", strings.Join(args, " "))
	return out
}

// script feeds one line per Read and runs a hook before handing out the
// line with the same index.
type script struct {
	lines  []string
	before map[int]func()
	next   int
}

func (s *script) Read(p []byte) (int, error) {
	if s.next >= len(s.lines) {
		return 0, io.EOF
	}
	if fn := s.before[s.next]; fn != nil {
		fn()
	}
	n := copy(p, s.lines[s.next]+"\n")
	s.next++
	return n, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRememberedLoginAcrossCommands(t *testing.T) {
	c := setupCLI(t)

	out := c.mustRun(t, "login", "-u", "alice", "-p", "secret", "--remember")
	assert.Contains(t, out, "Logged in as alice (remembered)")

	out = c.mustRun(t, "whoami")
	assert.Contains(t, out, "alice <alice@example.com>")

	out = c.mustRun(t, "logout")
	assert.Contains(t, out, "Logged out")

	_, err := c.run(t, "", "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestSessionOnlyLoginDoesNotOutliveCommand(t *testing.T) {
	c := setupCLI(t)

	out := c.mustRun(t, "login", "-u", "alice", "-p", "secret")
	assert.Contains(t, out, "this command only")

	_, err := c.run(t, "", "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginPromptsForMissingValues(t *testing.T) {
	c := setupCLI(t)

	out, err := c.run(t, "alice\nsecret\n", "login", "--remember")
	require.NoError(t, err)
	assert.Contains(t, out, "Username: ")
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Logged in as alice")
}

func TestLoginBadPassword(t *testing.T) {
	c := setupCLI(t)

	_, err := c.run(t, "", "login", "-u", "alice", "-p", "wrong")
	require.EqualError(t, err, "Invalid username or password")
}

func TestRegister(t *testing.T) {
	c := setupCLI(t)

	out := c.mustRun(t, "register", "-u", "bob", "-e", "bob@example.com", "-p", "pw")
	assert.Contains(t, out, "Registered and logged in as bob")

	_, err := c.run(t, "", "register", "-u", "bob", "-e", "bob2@example.com", "-p", "pw")
	require.EqualError(t, err, "Username already exists")
}

func TestProtectedCommandsRequireLogin(t *testing.T) {
	c := setupCLI(t)

	_, err := c.run(t, "", "projects", "list")
	require.ErrorIs(t, err, errNotLoggedIn)
	assert.Empty(t, c.srv.RequestsTo("/projects"))
}

func TestProjectAndTaskCommands(t *testing.T) {
	c := setupCLI(t)
	c.mustRun(t, "login", "-u", "alice", "-p", "secret", "-r")

	out := c.mustRun(t, "projects", "create", "-t", "Launch", "-d", "ship it", "--due", "2030-01-15")
	var projectID int64
	_, err := fmt.Sscanf(out, "Created project #%d", &projectID)
	require.NoError(t, err)

	out = c.mustRun(t, "projects", "list")
	assert.Contains(t, out, "Launch")
	assert.Contains(t, out, "2030-01-15")

	out = c.mustRun(t, "tasks", "create", fmt.Sprint(projectID), "-t", "Write docs", "-p", "high")
	var taskID int64
	_, err = fmt.Sscanf(out, "Created task #%d", &taskID)
	require.NoError(t, err)

	out = c.mustRun(t, "tasks", "list", fmt.Sprint(projectID))
	assert.Contains(t, out, "Write docs")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "high")

	c.mustRun(t, "tasks", "update", fmt.Sprint(taskID), "-s", "completed")
	out = c.mustRun(t, "tasks", "get", fmt.Sprint(taskID))
	assert.Contains(t, out, "[completed, high priority]")

	out = c.mustRun(t, "tasks", "list", fmt.Sprint(projectID), "--status", "pending")
	assert.Contains(t, out, "No tasks.")

	out = c.mustRun(t, "dashboard")
	assert.Contains(t, out, "Completion rate: 100%")
	assert.Contains(t, out, "Launch")

	c.mustRun(t, "projects", "update", fmt.Sprint(projectID), "--clear-due", "-t", "Launch v2")
	out = c.mustRun(t, "projects", "get", fmt.Sprint(projectID))
	assert.Contains(t, out, "Launch v2")
	assert.Contains(t, out, "ship it")
	assert.Contains(t, out, "due: -")
	assert.Contains(t, out, "Write docs")

	c.mustRun(t, "tasks", "delete", fmt.Sprint(taskID))
	c.mustRun(t, "projects", "delete", fmt.Sprint(projectID))
	out = c.mustRun(t, "projects", "list")
	assert.Contains(t, out, "No projects.")
}

func TestProjectCreateValidation(t *testing.T) {
	c := setupCLI(t)
	c.mustRun(t, "login", "-u", "alice", "-p", "secret", "-r")

	_, err := c.run(t, "", "projects", "create", "--due", "tomorrow", "-t", "x")
	require.ErrorContains(t, err, "invalid due date")

	_, err = c.run(t, "", "projects", "get", "abc")
	require.ErrorContains(t, err, "invalid id")
}

func TestShellKeepsSessionOnlyLoginAndReauthenticates(t *testing.T) {
	c := setupCLI(t)
	a, err := app.New(c.cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	in := &script{
		lines: []string{
			"login -u alice -p secret",
			"projects list",
			"alice",
			"secret",
			"whoami",
		},
		before: map[int]func(){
			1: func() {
				cred, err := a.Credentials.Read()
				require.NoError(t, err)
				c.srv.Revoke(cred.Token)
			},
		},
	}
	var out, errOut bytes.Buffer
	require.NoError(t, runShell(t.Context(), a, in, &out, &errOut))

	text := out.String()
	assert.Contains(t, text, "Logged in as alice (until the shell exits)")
	assert.Contains(t, text, "Your session has expired. Please log in again.")
	assert.Contains(t, text, "alice <alice@example.com>")
	assert.Contains(t, errOut.String(), "Token has been revoked")

	cred, err := a.Credentials.Read()
	require.NoError(t, err)
	assert.Equal(t, credstore.Ephemeral, cred.Lifetime)
	assert.Nil(t, shared)
}

func TestShellRejectsNestedShell(t *testing.T) {
	c := setupCLI(t)
	a, err := app.New(c.cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	in := &script{lines: []string{"shell", `projects "unterminated`, "exit", "whoami"}}
	var out, errOut bytes.Buffer
	require.NoError(t, runShell(t.Context(), a, in, &out, &errOut))

	assert.Contains(t, errOut.String(), "already in a shell")
	assert.Contains(t, errOut.String(), "unterminated")
	// exit stops before whoami is read.
	assert.Equal(t, 3, in.next)
}

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"projects list", []string{"projects", "list"}},
		{`projects create -t "Big launch"`, []string{"projects", "create", "-t", "Big launch"}},
		{`tasks create 1 -t 'it''s'`, []string{"tasks", "create", "1", "-t", "its"}},
		{`a\ b c`, []string{"a b", "c"}},
		{`-d ""`, []string{"-d", ""}},
		{"\tx\t y ", []string{"x", "y"}},
	}
	for _, tc := range cases {
		got, err := splitArgs(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := splitArgs(`say "hi`)
	require.Error(t, err)
	_, err = splitArgs(`trailing\`)
	require.Error(t, err)
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	authz.NewCollector(reg).RecordInvalidation()

	var errOut bytes.Buffer
	stop, err := serveMetrics("127.0.0.1:0", reg, &errOut)
	require.NoError(t, err)
	defer stop()

	url := strings.TrimSpace(strings.TrimPrefix(errOut.String(), "Serving metrics on "))
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "taskdesk_client_invalidations_total 1")
}

func TestVersion(t *testing.T) {
	c := setupCLI(t)
	out := c.mustRun(t, "version")
	assert.Equal(t, "taskdesk "+Version+"\n", out)
}
