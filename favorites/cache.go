package favorites

import "sync"

// MemCache is an in-process Cache, standing in for the device storage
// in tests and terminal tools.
type MemCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemCache() *MemCache {
	return &MemCache{values: map[string]string{}}
}

func (c *MemCache) Get(key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *MemCache) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

// Clear drops every cached value, forcing the next Load to hit the
// remote collection.
func (c *MemCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = map[string]string{}
}
