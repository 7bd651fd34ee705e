// Package authz implements the request authorizer: an http.RoundTripper that
// attaches the current bearer credential to every outgoing API request and
// turns a 401 on a protected request into a session invalidation.
package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jmcleod/taskdesk/credstore"
	"github.com/jmcleod/taskdesk/internal/uuid"
)

const requestIDHeader = "X-Request-ID"

// CredentialStore is the view of the credential store the authorizer needs.
// Read is used on every request; Clear only on invalidation.
type CredentialStore interface {
	Read() (credstore.Credential, error)
	Clear() error
}

// InvalidationHook is called after the credential store has been cleared in
// response to a 401 on a protected request.
type InvalidationHook func(req *http.Request)

// Transport is an http.RoundTripper that authorizes outgoing requests.
type Transport struct {
	base    http.RoundTripper
	store   CredentialStore
	logger  *slog.Logger
	metrics MetricsCollector
	origin  *url.URL

	mu    sync.RWMutex
	hooks []InvalidationHook
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying RoundTripper. Default: http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithOrigin limits authorization to requests for the API origin (scheme and
// host of u). Requests to any other origin, such as a redirect target, pass
// through without a bearer credential and their 401s are ignored. Without an
// origin every request is treated as an API request.
func WithOrigin(u *url.URL) Option {
	return func(t *Transport) {
		if u == nil {
			t.origin = nil
			return
		}
		t.origin = &url.URL{Scheme: u.Scheme, Host: u.Host}
	}
}

// WithInvalidationHook registers a hook at construction time.
func WithInvalidationHook(hook InvalidationHook) Option {
	return func(t *Transport) {
		t.hooks = append(t.hooks, hook)
	}
}

// New creates a Transport reading credentials from store.
func New(store CredentialStore, opts ...Option) *Transport {
	t := &Transport{store: store}
	for _, opt := range opts {
		opt(t)
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.metrics == nil {
		t.metrics = noopCollector{}
	}
	return t
}

// OnInvalidate registers a hook to run when a protected request comes back 401.
// Hooks run in registration order.
func (t *Transport) OnInvalidate(hook InvalidationHook) {
	t.mu.Lock()
	t.hooks = append(t.hooks, hook)
	t.mu.Unlock()
}

// RoundTrip attaches the bearer credential, sends the request and inspects
// the response. Requests outside the API origin pass straight through. The
// response and error from the base transport are always returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.sameOrigin(req.URL) {
		t.logger.Debug("authz: passing through request for foreign origin",
			slog.String("host", req.URL.Host))
		return t.base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.New())
	}

	authenticated := false
	cred, err := t.store.Read()
	switch {
	case err == nil:
		out.Header.Set("Authorization", "Bearer "+cred.Token)
		authenticated = true
	case !errors.Is(err, credstore.ErrNoCredential):
		// An unreadable store must not block the request; it goes out anonymous.
		t.logger.Warn("authz: credential store read failed",
			slog.String("error", err.Error()),
			slog.String("request_id", out.Header.Get(requestIDHeader)))
	}
	t.metrics.RecordRequest(authenticated)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		t.metrics.RecordTransportError()
		return resp, err
	}
	t.metrics.RecordResponse(resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized && !SkipsGlobalAuthHandling(req.Context()) {
		t.invalidate(out)
	}
	return resp, nil
}

func (t *Transport) sameOrigin(u *url.URL) bool {
	if t.origin == nil {
		return true
	}
	if !strings.EqualFold(u.Scheme, t.origin.Scheme) {
		return false
	}
	return strings.EqualFold(u.Hostname(), t.origin.Hostname()) &&
		effectivePort(u) == effectivePort(t.origin)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

func (t *Transport) invalidate(req *http.Request) {
	t.metrics.RecordInvalidation()
	t.logger.Info("authz: session invalidated by server",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("request_id", req.Header.Get(requestIDHeader)))

	if err := t.store.Clear(); err != nil {
		t.logger.Error("authz: clearing credentials after invalidation failed",
			slog.String("error", err.Error()))
	}

	t.mu.RLock()
	hooks := make([]InvalidationHook, len(t.hooks))
	copy(hooks, t.hooks)
	t.mu.RUnlock()

	for _, hook := range hooks {
		hook(req)
	}
}
