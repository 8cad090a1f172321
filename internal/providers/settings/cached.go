package settings

import "sync"

// Cached is a read-through, write-through cache in front of another Store.
// Absent keys are cached too, so repeated misses do not hit the backend.
type Cached struct {
	inner Store
	cache sync.Map // key -> cacheEntry
}

type cacheEntry struct {
	value   []byte
	present bool
}

// NewCached wraps inner with an in-memory cache
func NewCached(inner Store) *Cached {
	return &Cached{inner: inner}
}

// ContainsKey reports whether key is present
func (c *Cached) ContainsKey(key string) (bool, error) {
	_, ok, err := c.Get(key)
	return ok, err
}

// Get returns the value for key, loading it from the backend on a miss
func (c *Cached) Get(key string) ([]byte, bool, error) {
	if v, ok := c.cache.Load(key); ok {
		e := v.(cacheEntry)
		return clone(e.value), e.present, nil
	}
	value, ok, err := c.inner.Get(key)
	if err != nil {
		return nil, false, err
	}
	c.cache.Store(key, cacheEntry{value: clone(value), present: ok})
	return value, ok, nil
}

// Set writes through to the backend, then updates the cache.
// A failed write evicts the key so the next read goes to the backend.
func (c *Cached) Set(key string, value []byte) error {
	if err := c.inner.Set(key, value); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.cache.Store(key, cacheEntry{value: clone(value), present: true})
	return nil
}

// Remove deletes key from the backend and caches the absence
func (c *Cached) Remove(key string) (bool, error) {
	ok, err := c.inner.Remove(key)
	if err != nil {
		c.cache.Delete(key)
		return false, err
	}
	c.cache.Store(key, cacheEntry{present: false})
	return ok, nil
}

// Watch registers a change handler on the backend
func (c *Cached) Watch(handler ChangeHandler) func() {
	return c.inner.Watch(handler)
}

// Invalidate drops every cached entry
func (c *Cached) Invalidate() {
	c.cache.Range(func(k, _ any) bool {
		c.cache.Delete(k)
		return true
	})
}
