// Package memory provides a process-lifetime implementation of storage.Store.
//
// It is the ephemeral store: the analogue of a browser tab's session storage.
// Values disappear when the process exits, and while resident they are kept
// sealed in memguard enclaves rather than as plain Go strings.
package memory

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/taskdesk/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]*memguard.Enclave
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]*memguard.Enclave)}
}

func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	enclave, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if enclave == nil {
		return "", nil
	}
	buf, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s enclave: %w", key, err)
	}
	defer buf.Destroy()
	// string() copies out of the locked buffer before it is destroyed.
	return string(buf.Bytes()), nil
}

func (s *Store) Set(key, value string) error {
	// NewEnclave returns nil for empty input; a nil entry reads back as "".
	enclave := memguard.NewEnclave([]byte(value))
	s.mu.Lock()
	s.data[key] = enclave
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len reports the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
