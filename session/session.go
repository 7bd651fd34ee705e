// Package session owns the client-side authentication state machine.
//
// A Manager starts in StatusUnknown. Restore resolves it to anonymous or
// authenticated from the stored credential; Login and Register move it to
// authenticated; Logout and server-side invalidation (reported by
// authz.Transport through Invalidated) move it back to anonymous.
//
// Operations are not serialised against each other. When two overlap, the
// state written last wins.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/taskdesk/api"
	"github.com/jmcleod/taskdesk/authz"
	"github.com/jmcleod/taskdesk/credstore"
	"github.com/jmcleod/taskdesk/internal/util"
)

// AuthService is the part of the API the manager needs.
type AuthService interface {
	Register(ctx context.Context, req api.RegisterRequest) error
	Login(ctx context.Context, req api.LoginRequest) (api.LoginResponse, error)
	CurrentUser(ctx context.Context) (api.User, error)
}

// CredentialStore persists the bearer credential.
type CredentialStore interface {
	Save(c credstore.Credential) error
	Read() (credstore.Credential, error)
	Clear() error
}

var (
	_ AuthService     = (*api.Client)(nil)
	_ CredentialStore = (*credstore.Store)(nil)
)

// Manager tracks the current session and publishes changes to subscribers.
type Manager struct {
	auth    AuthService
	creds   CredentialStore
	logger  *slog.Logger
	restore sync.Once

	mu       sync.RWMutex
	status   Status
	identity *api.User
	errMsg   string
	inflight int
	subs     map[int]func(State)
	nextSub  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Restoration failures are reported here only.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager in StatusUnknown.
func NewManager(auth AuthService, creds CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		auth:  auth,
		creds: creds,
		subs:  make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	s := State{
		Status:  m.status,
		Err:     m.errMsg,
		Loading: m.inflight > 0 || m.status == StatusUnknown,
	}
	if m.identity != nil {
		u := *m.identity
		s.Identity = &u
	}
	return s
}

// Subscribe registers fn to receive every published state. fn runs on the
// goroutine that caused the change and must not block. The returned func
// removes the subscription.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// update applies fn under the write lock and publishes the result.
func (m *Manager) update(fn func()) {
	m.mu.Lock()
	fn()
	s := m.snapshotLocked()
	subs := make([]func(State), 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub(s)
	}
}

func (m *Manager) begin() {
	m.update(func() { m.inflight++ })
}

// beginAttempt starts a user-initiated operation; the previous failure no
// longer applies.
func (m *Manager) beginAttempt() {
	m.update(func() {
		m.inflight++
		m.errMsg = ""
	})
}

func (m *Manager) end() {
	m.update(func() { m.inflight-- })
}

func (m *Manager) setAuthenticated(u api.User) {
	m.update(func() {
		m.status = StatusAuthenticated
		m.identity = &u
		m.errMsg = ""
	})
}

func (m *Manager) setAnonymous(clearErr bool) {
	m.update(func() {
		m.status = StatusAnonymous
		m.identity = nil
		if clearErr {
			m.errMsg = ""
		}
	})
}

// fail records the user-visible message for err and returns err.
func (m *Manager) fail(err error, fallback string) error {
	msg := api.Message(err, fallback)
	m.update(func() { m.errMsg = msg })
	return err
}

func (m *Manager) clearCredentials() {
	if err := m.creds.Clear(); err != nil {
		m.logger.Error("session: clearing credentials failed", slog.String("error", err.Error()))
	}
}

// Restore resolves the initial state from the stored credential. Only the
// first call does any work; later calls return the current state.
//
// Restoration never sets Err. A stored credential the service does not
// accept is cleared and the session becomes anonymous.
func (m *Manager) Restore(ctx context.Context) State {
	m.restore.Do(func() { m.doRestore(ctx) })
	return m.State()
}

func (m *Manager) doRestore(ctx context.Context) {
	m.begin()
	defer m.end()

	cred, err := m.creds.Read()
	if errors.Is(err, credstore.ErrNoCredential) {
		m.setAnonymous(false)
		return
	}
	if err != nil {
		m.logger.Warn("session: restore failed",
			slog.String("reason", reasonStoreError),
			slog.String("error", err.Error()))
		m.clearCredentials()
		m.setAnonymous(false)
		return
	}

	// The manager handles a rejected stored token itself; global 401
	// handling would force navigation to login on startup.
	u, err := m.auth.CurrentUser(authz.SkipGlobalAuthHandling(ctx))
	if err != nil {
		m.logger.Info("session: restore failed",
			slog.String("reason", restoreFailureReason(cred.Token, err)),
			slog.String("lifetime", cred.Lifetime.String()),
			slog.String("error", err.Error()))
		m.clearCredentials()
		m.setAnonymous(false)
		return
	}
	m.logger.Debug("session: restored",
		slog.String("username", u.Username),
		slog.String("lifetime", cred.Lifetime.String()))
	m.setAuthenticated(u)
}

// restoreFailureReason classifies why a stored token could not be used. The
// token is only inspected, never verified.
func restoreFailureReason(token string, err error) string {
	if errors.Is(err, api.ErrUnavailable) {
		return reasonUnreachable
	}
	if !errors.Is(err, api.ErrUnauthorized) {
		return reasonRejected
	}
	var claims jwt.RegisteredClaims
	if _, _, perr := jwt.NewParser().ParseUnverified(token, &claims); perr != nil {
		return reasonMalformed
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return reasonExpired
	}
	return reasonRejected
}

// Login authenticates with the service, stores the token with a lifetime
// chosen by remember, fetches the identity and publishes it, in that order.
//
// Err is cleared when the attempt starts. On failure the state is left as it
// was apart from Err, which is set to
// the service's message or "Login failed". If the identity fetch fails after
// the token was stored, the token is cleared again and the session becomes
// anonymous.
func (m *Manager) Login(ctx context.Context, req api.LoginRequest, remember bool) error {
	m.beginAttempt()
	defer m.end()

	req.Username = util.NormalizeName(req.Username)
	resp, err := m.auth.Login(ctx, req)
	if err != nil {
		return m.fail(err, loginFailed)
	}

	cred := credstore.Credential{Lifetime: credstore.LifetimeFor(remember), Token: resp.AccessToken}
	if err := m.creds.Save(cred); err != nil {
		return m.fail(fmt.Errorf("storing credential: %w", err), loginFailed)
	}

	u, err := m.auth.CurrentUser(ctx)
	if err != nil {
		m.clearCredentials()
		m.setAnonymous(false)
		return m.fail(err, loginFailed)
	}

	m.logger.Info("session: logged in",
		slog.String("username", u.Username),
		slog.String("lifetime", cred.Lifetime.String()))
	m.setAuthenticated(u)
	return nil
}

// Register creates an account and, on success, logs into it with a
// session-only credential.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	m.beginAttempt()
	defer m.end()

	req.Username = util.NormalizeName(req.Username)
	if err := m.auth.Register(ctx, req); err != nil {
		return m.fail(err, registrationFailed)
	}
	m.logger.Info("session: registered", slog.String("username", req.Username))
	return m.Login(ctx, req.Credentials(), false)
}

// Logout clears the stored credential and the identity. It makes no
// request and cannot fail.
func (m *Manager) Logout() {
	m.clearCredentials()
	m.setAnonymous(true)
	m.logger.Info("session: logged out")
}

// Invalidated resets the session after the service rejected the credential
// of req. It has the signature of an authz.InvalidationHook; the transport
// has already cleared the store.
func (m *Manager) Invalidated(req *http.Request) {
	m.logger.Info("session: invalidated",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path))
	m.setAnonymous(false)
}
