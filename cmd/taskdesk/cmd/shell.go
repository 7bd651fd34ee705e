package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmcleod/taskdesk/api"
	"github.com/jmcleod/taskdesk/internal/app"
)

var metricsAddr string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive session",
	Long: `Run taskdesk commands interactively against one session.

A login without --remember lasts until the shell exits. When the service
rejects the credential mid-session you are asked to log in again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if shared != nil {
			return errors.New("already in a shell")
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if metricsAddr != "" {
			stop, err := serveMetrics(metricsAddr, a.Registry, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stop()
		}
		return runShell(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
}

func runShell(ctx context.Context, a *app.App, in io.Reader, out, errOut io.Writer) error {
	p := newPrompter(in, out)
	shared, sharedPrompter = a, p
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	defer func() {
		shared, sharedPrompter = nil, nil
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	var loginRequired atomic.Bool
	a.OnNavigateToLogin(func() { loginRequired.Store(true) })

	printBanner(out)
	if s := a.Session.Restore(ctx); s.Authenticated() {
		fmt.Fprintf(out, "Logged in as %s.\n", s.Identity.Username)
	} else {
		fmt.Fprintln(out, `Not logged in. Type "login" to start, "help" for commands, "exit" to quit.`)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, shellPrompt(a))
		line, err := p.readLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		words, err := splitArgs(line)
		if err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
			continue
		}
		if len(words) == 0 {
			continue
		}
		switch words[0] {
		case "exit", "quit":
			return nil
		case "shell":
			fmt.Fprintln(errOut, "Error: already in a shell")
			continue
		}

		resetCommands(ctx, rootCmd)
		rootCmd.SetArgs(words)
		// Errors are printed by cobra.
		_ = rootCmd.ExecuteContext(ctx)

		if loginRequired.Swap(false) {
			fmt.Fprintln(out, "Your session has expired. Please log in again.")
			if err := promptLogin(ctx, a, p, out); err != nil {
				fmt.Fprintf(errOut, "Error: %v\n", err)
			}
		}
	}
}

func shellPrompt(a *app.App) string {
	if s := a.Session.State(); s.Authenticated() {
		return fmt.Sprintf("taskdesk(%s)> ", s.Identity.Username)
	}
	return "taskdesk> "
}

// promptLogin asks for credentials and logs in for the rest of the shell.
func promptLogin(ctx context.Context, a *app.App, p *prompter, out io.Writer) error {
	var req api.LoginRequest
	if err := p.askIfEmpty(&req.Username, "Username"); err != nil {
		return err
	}
	if err := p.askIfEmpty(&req.Password, "Password"); err != nil {
		return err
	}
	return login(ctx, a, out, req, false)
}

// resetCommands restores every flag below c to its default and points each
// command at ctx, so nothing leaks from one shell command into the next.
// cobra only hands the root context to subcommands that have none yet.
func resetCommands(ctx context.Context, c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	c.SetContext(ctx)
	for _, sub := range c.Commands() {
		resetCommands(ctx, sub)
	}
}

// splitArgs splits a command line into words. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, errOut io.Writer) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(errOut, "metrics server failed: %v\n", err)
		}
	}()
	fmt.Fprintf(errOut, "Serving metrics on http://%s/metrics\n", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
