package store

import (
	"context"
	"errors"
)

// Keys used by the console. The store itself treats every key as opaque.
const (
	KeyServerAddress   = "serverAddress"
	KeyAPIKey          = "apiKey"
	KeyIsAuthenticated = "isAuthenticated"
	KeySavedServers    = "savedServers"
	KeySettings        = "settings"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store: closed")

// Store defines a flat string key-value store.
// Multi-key operations are applied atomically.
type Store interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)
	// MultiGet returns the present values for keys; missing keys are omitted
	MultiGet(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	MultiSet(ctx context.Context, values map[string]string) error
	MultiRemove(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}
