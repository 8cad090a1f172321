package settings

import "sync"

// Memory is an in-process Store for tests and headless runs.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
	watch  watchers
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// ContainsKey reports whether key is present
func (m *Memory) ContainsKey(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok, nil
}

// Get returns a copy of the value stored under key
func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return clone(v), ok, nil
}

// Set stores value under key
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	m.values[key] = clone(value)
	m.mu.Unlock()

	m.watch.notify(Change{Key: key, Value: clone(value)})
	return nil
}

// Remove deletes key and reports whether it existed
func (m *Memory) Remove(key string) (bool, error) {
	m.mu.Lock()
	_, ok := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()

	if ok {
		m.watch.notify(Change{Key: key, Removed: true})
	}
	return ok, nil
}

// Watch registers a change handler
func (m *Memory) Watch(handler ChangeHandler) func() {
	return m.watch.add(handler)
}

// Keys returns every stored key. Intended for tests and diagnostics.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}
