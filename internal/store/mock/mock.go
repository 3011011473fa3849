// Package mock provides an in-memory Cache for tests.
package mock

import (
	"context"
	"sync"

	"github.com/guestlens/guestlens/internal/face"
	"github.com/guestlens/guestlens/internal/store"
)

// Cache is an in-memory store.Cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[store.ExtractionKey][]face.Detection

	// Hit counters for cache behavior assertions.
	Gets int
	Hits int
	Puts int
}

// New creates an empty in-memory cache.
func New() *Cache {
	return &Cache{entries: make(map[store.ExtractionKey][]face.Detection)}
}

func (c *Cache) GetExtraction(ctx context.Context, key store.ExtractionKey) ([]face.Detection, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	dets, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	c.Hits++
	return dets, true, nil
}

func (c *Cache) PutExtraction(ctx context.Context, key store.ExtractionKey, detections []face.Detection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Puts++
	c.entries[key] = detections
	return nil
}

func (c *Cache) Stats(ctx context.Context) (store.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := store.Stats{Extractions: len(c.entries)}
	for _, dets := range c.entries {
		s.Faces += len(dets)
	}
	return s, nil
}

func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[store.ExtractionKey][]face.Detection)
	return nil
}

func (c *Cache) Close() error { return nil }
