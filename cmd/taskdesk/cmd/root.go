package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmcleod/taskdesk/internal/app"
	"github.com/jmcleod/taskdesk/internal/config"
	"github.com/jmcleod/taskdesk/internal/logging"
)

var (
	cfgFile   string
	apiURL    string
	profile   string
	dataDir   string
	logLevel  string
	logFormat string
	noSeal    bool
)

var errNotLoggedIn = errors.New("not logged in: run `taskdesk login` first")

var rootCmd = &cobra.Command{
	Use:   "taskdesk",
	Short: "taskdesk is a command-line client for the task service",
	Long: `A command-line client to manage projects and tasks on a task service.
Credentials are kept per profile in the data directory; see "taskdesk login --help".`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default "+config.DefaultPath()+")")
	flags.StringVar(&apiURL, "api-url", "", "API root URL")
	flags.StringVar(&profile, "profile", "", "Credential profile")
	flags.StringVar(&dataDir, "data-dir", "", "Directory for credentials")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&noSeal, "no-seal", false, "Store the remembered token without encryption")
}

// loadConfig resolves the configuration, applying flags set on cmd last.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = apiURL
	}
	if flags.Changed("profile") {
		cfg.Profile = profile
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("no-seal") && noSeal {
		cfg.SealTokens = false
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}
	return app.New(cfg, logger)
}

// shared is the App used by commands run inside the shell. Outside the
// shell every command opens its own.
var shared *app.App

// withApp runs fn with a restored session.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	if shared != nil {
		shared.Session.Restore(cmd.Context())
		return fn(shared)
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Session.Restore(cmd.Context())
	return fn(a)
}

// withSession is withApp for commands that need an authenticated session.
func withSession(cmd *cobra.Command, fn func(a *app.App) error) error {
	return withApp(cmd, func(a *app.App) error {
		if !a.Session.State().Authenticated() {
			return errNotLoggedIn
		}
		return fn(a)
	})
}
