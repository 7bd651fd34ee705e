// Package credstore persists the bearer credential used to authorize API
// requests.
//
// A credential lives in exactly one of two stores: the durable store, which
// survives restarts, or the ephemeral store, which lasts for the current
// session only. Save is the single write path and enforces that at most one
// of them holds a token. Read prefers the durable token.
package credstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmcleod/taskdesk/storage"
)

// Keys used in the backing stores.
const (
	KeyToken    = "token"
	KeyRemember = "remember"

	rememberMarker = "true"
)

// Store holds the active credential across a durable and an ephemeral
// storage.Store.
type Store struct {
	mu        sync.Mutex
	durable   storage.Store
	ephemeral storage.Store
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for credential transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a credential Store over the given backing stores.
func New(durable, ephemeral storage.Store, opts ...Option) *Store {
	s := &Store{
		durable:   durable,
		ephemeral: ephemeral,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Save makes c the only active credential. A durable credential removes any
// ephemeral token; an ephemeral one removes the durable token and the
// remember marker.
func (s *Store) Save(c Credential) error {
	if c.Token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Lifetime {
	case Durable:
		if err := s.durable.Set(KeyToken, c.Token); err != nil {
			return fmt.Errorf("writing durable token: %w", err)
		}
		if err := s.durable.Set(KeyRemember, rememberMarker); err != nil {
			return fmt.Errorf("writing remember marker: %w", err)
		}
		if err := s.ephemeral.Remove(KeyToken); err != nil {
			return fmt.Errorf("removing ephemeral token: %w", err)
		}
	case Ephemeral:
		if err := s.ephemeral.Set(KeyToken, c.Token); err != nil {
			return fmt.Errorf("writing ephemeral token: %w", err)
		}
		if err := s.durable.Remove(KeyRemember); err != nil {
			return fmt.Errorf("removing remember marker: %w", err)
		}
		if err := s.durable.Remove(KeyToken); err != nil {
			return fmt.Errorf("removing durable token: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidLifetime, c.Lifetime)
	}

	s.logger.Debug("credential saved", slog.String("lifetime", c.Lifetime.String()))
	return nil
}

// SaveToken saves token as durable when remember is true, else as ephemeral.
func (s *Store) SaveToken(token string, remember bool) error {
	return s.Save(Credential{Lifetime: LifetimeFor(remember), Token: token})
}

// Read returns the active credential: the durable token if present, else the
// ephemeral token, else ErrNoCredential.
func (s *Store) Read() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.durable.Get(KeyToken)
	switch {
	case err == nil && token != "":
		return Credential{Lifetime: Durable, Token: token}, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return Credential{}, fmt.Errorf("reading durable token: %w", err)
	}

	token, err = s.ephemeral.Get(KeyToken)
	switch {
	case err == nil && token != "":
		return Credential{Lifetime: Ephemeral, Token: token}, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return Credential{}, fmt.Errorf("reading ephemeral token: %w", err)
	}

	return Credential{}, ErrNoCredential
}

// Clear removes every credential entry. It is idempotent; all removals are
// attempted even if one fails.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := errors.Join(
		s.durable.Remove(KeyToken),
		s.durable.Remove(KeyRemember),
		s.ephemeral.Remove(KeyToken),
	)
	if err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	s.logger.Debug("credentials cleared")
	return nil
}
