package settings

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// Store is the key/value settings collaborator. It is the single source of
// truth for persisted host state; in-memory views read and write through it.
type Store interface {
	ContainsKey(key string) (bool, error)
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) (bool, error)
	// Watch registers handler for changes made through this store.
	// The returned func unregisters it.
	Watch(handler ChangeHandler) (cancel func())
}

// Change describes a single write to the store
type Change struct {
	Key     string
	Value   []byte
	Removed bool
}

// ChangeHandler receives store changes. Handlers run synchronously after the
// write has completed and must not block.
type ChangeHandler func(Change)

// Key builds a settings key from an identity and property parts.
// Empty parts are skipped, so Key(id, "", "Size") == Key(id, "Size").
func Key(identity string, parts ...string) string {
	var b strings.Builder
	b.WriteString(identity)
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

// GetValue decodes the JSON value stored under key, or returns def when the
// key is absent.
func GetValue[T any](s Store, key string, def T) (T, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	var v T
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return v, nil
}

// SetValue encodes v as JSON and stores it under key.
func SetValue[T any](s Store, key string, v T) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	return s.Set(key, raw)
}

// watchers is the change fan-out shared by the store implementations.
type watchers struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]ChangeHandler
}

func (w *watchers) add(h ChangeHandler) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handlers == nil {
		w.handlers = make(map[int]ChangeHandler)
	}
	id := w.next
	w.next++
	w.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.handlers, id)
			w.mu.Unlock()
		})
	}
}

func (w *watchers) notify(c Change) {
	w.mu.RLock()
	hs := make([]ChangeHandler, 0, len(w.handlers))
	for _, h := range w.handlers {
		hs = append(hs, h)
	}
	w.mu.RUnlock()

	for _, h := range hs {
		h(c)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
