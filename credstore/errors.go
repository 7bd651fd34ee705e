package credstore

import "errors"

var (
	// ErrNoCredential indicates neither the durable nor the ephemeral store holds a token.
	ErrNoCredential = errors.New("no credential")
	// ErrEmptyToken indicates an attempt to save an empty bearer token.
	ErrEmptyToken = errors.New("empty token")
	// ErrInvalidLifetime indicates a Credential with an unknown lifetime class.
	ErrInvalidLifetime = errors.New("invalid credential lifetime")
)
