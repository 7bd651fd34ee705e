// Package storage provides the key/value storage abstraction that backs the
// client-side credential stores.
//
// A Store mirrors browser web storage: flat string keys mapping to string
// values. Implementations decide the lifetime of the data (process-scoped in
// storage/memory, on-disk in storage/bbolt).
package storage

import "errors"

var (
	// ErrNotFound is returned when a key is absent.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned when a store is used after Close.
	ErrClosed = errors.New("store closed")
	// ErrUnreadable is returned when a stored value exists but cannot be decoded,
	// for example because the sealing key changed.
	ErrUnreadable = errors.New("stored value unreadable")
)

// Store is a flat string key/value area.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) (string, error)
	// Set creates or replaces the value for key.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// Keys lists the keys currently present, in no particular order.
	Keys() ([]string, error)
}
