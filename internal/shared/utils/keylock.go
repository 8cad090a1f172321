package utils

import (
	"context"
	"sync"
)

// KeyLock serializes work per key. Different keys never block each other.
// Acquisition honors context cancellation.
type KeyLock[K comparable] struct {
	mu    sync.Mutex
	slots map[K]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyLock creates an empty keyed lock
func NewKeyLock[K comparable]() *KeyLock[K] {
	return &KeyLock[K]{slots: make(map[K]*slot)}
}

// Lock acquires the lock for key. It returns a release func, or the context
// error if ctx is done first. Release must be called exactly once.
func (l *KeyLock[K]) Lock(ctx context.Context, key K) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *KeyLock[K]) drop(key K, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Len returns the number of keys currently held or waited on
func (l *KeyLock[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Waiters returns how many callers hold or wait on key
func (l *KeyLock[K]) Waiters(key K) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		return s.refs
	}
	return 0
}
