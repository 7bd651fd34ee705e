package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmcleod/taskdesk/internal/util"
)

const (
	masterKeySize   = 32
	sealedKeyPrefix = "taskdesk:store:"
	sealedAADPrefix = "taskdesk:value:"
)

// Sealed wraps a Store and encrypts every value at rest with AES-256-GCM.
// Each value is bound to its key name, so a sealed value copied under a
// different key fails to open.
type Sealed struct {
	inner    Store
	key      []byte
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

var _ Store = (*Sealed)(nil)

// NewSealed returns a Store that seals values written to inner. The sealing
// key is derived from master and namespace, so namespaces sharing a master
// key cannot read each other's values.
func NewSealed(inner Store, master []byte, namespace string) (*Sealed, error) {
	key, err := util.DeriveKey(master, sealedKeyPrefix+namespace)
	if err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}
	return &Sealed{inner: inner, key: key}, nil
}

func aadFor(key string) []byte {
	return []byte(sealedAADPrefix + key)
}

func (s *Sealed) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	raw, err := s.inner.Get(key)
	if err != nil {
		return "", err
	}
	value, err := OpenValue(s.key, raw, aadFor(key))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", key, ErrUnreadable, err)
	}
	return value, nil
}

func (s *Sealed) Set(key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	sealed, err := SealValue(s.key, value, aadFor(key))
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	return s.inner.Set(key, sealed)
}

func (s *Sealed) Remove(key string) error {
	return s.inner.Remove(key)
}

func (s *Sealed) Keys() ([]string, error) {
	return s.inner.Keys()
}

// Close wipes the sealing key. The wrapped store is left open.
func (s *Sealed) Close() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		util.WipeBytes(s.key)
		s.mu.Unlock()
	})
}

// LoadOrCreateMasterKey reads the 32-byte master key stored at path. If the
// file does not exist a new random key is generated and written with mode
// 0600, creating parent directories as needed. The key is written to a
// temporary file first and linked into place, so path only ever holds a
// complete key.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != masterKeySize {
			util.WipeBytes(data)
			return nil, fmt.Errorf("master key %s: expected %d bytes, got %d", path, masterKeySize, len(data))
		}
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading master key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	key, err := util.RandomBytes(masterKeySize)
	if err != nil {
		return nil, err
	}
	tmp, err := writeTempKey(filepath.Dir(path), key)
	if err != nil {
		util.WipeBytes(key)
		return nil, err
	}
	defer os.Remove(tmp)

	// Link fails if path exists, unlike Rename.
	if err := os.Link(tmp, path); err != nil {
		util.WipeBytes(key)
		if errors.Is(err, fs.ErrExist) {
			// Lost a race with another process; use its key.
			return LoadOrCreateMasterKey(path)
		}
		return nil, fmt.Errorf("installing master key: %w", err)
	}
	return key, nil
}

func writeTempKey(dir string, key []byte) (name string, err error) {
	f, err := os.CreateTemp(dir, ".taskdesk-key-*")
	if err != nil {
		return "", fmt.Errorf("creating master key: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if err := f.Chmod(0o600); err != nil {
		return "", fmt.Errorf("creating master key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		return "", fmt.Errorf("writing master key: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing master key: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing master key: %w", err)
	}
	return f.Name(), nil
}
