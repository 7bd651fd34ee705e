// Package app assembles the client stack from a Config: credential storage,
// the authorizing transport, the API client and the session manager.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/taskdesk/api"
	"github.com/jmcleod/taskdesk/authz"
	"github.com/jmcleod/taskdesk/credstore"
	"github.com/jmcleod/taskdesk/internal/config"
	"github.com/jmcleod/taskdesk/internal/util"
	"github.com/jmcleod/taskdesk/session"
	"github.com/jmcleod/taskdesk/storage"
	bboltstorage "github.com/jmcleod/taskdesk/storage/bbolt"
	"github.com/jmcleod/taskdesk/storage/memory"
)

// lockTimeout bounds how long opening the database waits for another
// taskdesk process to release it.
const lockTimeout = 2 * time.Second

// App is one client process.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Credentials *credstore.Store
	Transport   *authz.Transport
	Client      *api.Client
	Session     *session.Manager
	Registry    *prometheus.Registry

	closers []func() error
}

// New builds the stack described by cfg. The durable credential store is a
// bucket named after the profile in the data directory's database, sealed
// with the data directory's master key when cfg.SealTokens is set. The
// ephemeral store lives as long as the App.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	db, err := bboltstorage.NewStoreFromFile(cfg.DatabasePath(), cfg.Profile, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential storage: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	var durable storage.Store = db
	if cfg.SealTokens {
		master, err := storage.LoadOrCreateMasterKey(cfg.KeyPath())
		if err != nil {
			a.Close()
			return nil, err
		}
		sealed, err := storage.NewSealed(db, master, cfg.Profile)
		util.WipeBytes(master)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { sealed.Close(); return nil })
		durable = sealed
	}

	a.Credentials = credstore.New(durable, memory.NewStore(), credstore.WithLogger(logger))
	a.Registry = prometheus.NewRegistry()
	origin, err := url.Parse(cfg.APIURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	a.Transport = authz.New(a.Credentials,
		authz.WithOrigin(origin),
		authz.WithLogger(logger),
		authz.WithMetrics(authz.NewCollector(a.Registry)),
	)

	a.Client, err = api.New(cfg.APIURL,
		api.WithTransport(a.Transport),
		api.WithTimeout(cfg.Timeout),
		api.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		api.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Session = session.NewManager(a.Client, a.Credentials, session.WithLogger(logger))
	a.Transport.OnInvalidate(a.Session.Invalidated)
	return a, nil
}

// OnNavigateToLogin registers fn to run after the session has been reset by
// a rejected credential.
func (a *App) OnNavigateToLogin(fn func()) {
	a.Transport.OnInvalidate(func(*http.Request) { fn() })
}

// Close releases storage in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
