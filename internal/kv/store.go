// Package kv provides the flat key-value stores that preset collections are persisted in.
package kv

import "context"

// Store is a process-external key-value store holding string payloads
type Store interface {
	// Get returns the value for key. found is false when the key does not exist.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set overwrites the value for key
	Set(ctx context.Context, key, value string) error

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend connection
	Close() error
}

// Ensure concrete types implement the interface
var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
