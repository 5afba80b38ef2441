package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound = errors.New("key not found")
)

// Store is an ephemeral key/value store with per-key expiration. It holds
// transient OAuth state and freshly exchanged credentials, never long-term
// data. Implementations must be safe for concurrent use.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value at key, or ErrKeyNotFound if the key is absent
	// or expired.
	Get(ctx context.Context, key string) (string, error)

	// GetDel returns and removes the value at key in one atomic step.
	// Concurrent calls for the same key yield the value to exactly one
	// caller; the rest get ErrKeyNotFound.
	GetDel(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Config selects and configures the store backend.
type Config struct {
	Type     string `yaml:"type"` // "redis" or "memory"
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}
