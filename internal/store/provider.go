package store

import (
	"errors"
	"sync"
)

// ErrNotConfigured is returned when no cache backend has been registered.
var ErrNotConfigured = errors.New("embedding cache not configured: DATABASE_URL is required")

var (
	mu      sync.RWMutex
	backend func() Cache
)

// RegisterBackend registers the active cache constructor. Called by the
// postgres package after a successful Initialize, avoiding an import cycle.
func RegisterBackend(constructor func() Cache) {
	mu.Lock()
	defer mu.Unlock()
	backend = constructor
}

// IsConfigured reports whether a cache backend has been registered.
func IsConfigured() bool {
	mu.RLock()
	defer mu.RUnlock()
	return backend != nil
}

// GetCache returns the registered cache backend.
func GetCache() (Cache, error) {
	mu.RLock()
	defer mu.RUnlock()
	if backend == nil {
		return nil, ErrNotConfigured
	}
	return backend(), nil
}
