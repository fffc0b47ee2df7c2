package kv

import "fmt"

// Backend names accepted by Open
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Open connects to the named backend. redisURL and databaseURL are only
// read by the backend that needs them.
func Open(backend, redisURL, databaseURL string) (Store, error) {
	switch backend {
	case BackendRedis:
		return NewRedisStore(redisURL)
	case BackendPostgres:
		return NewPostgresStore(databaseURL)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown key-value backend: %s", backend)
	}
}
