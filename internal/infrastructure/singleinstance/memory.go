package singleinstance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

// ErrNoListener is returned by an in-memory Send with nobody listening
var ErrNoListener = errors.New("no listener on channel")

// Bus is an in-memory stand-in for the OS namespace that processes share.
// Locks and channels obtained with the same name contend with each other.
type Bus struct {
	mu        sync.Mutex
	held      map[string]bool
	listeners map[string]chan string
}

// NewBus creates an empty namespace
func NewBus() *Bus {
	return &Bus{
		held:      make(map[string]bool),
		listeners: make(map[string]chan string),
	}
}

// Lock returns a lock on name
func (b *Bus) Lock(name string) Lock {
	return &memoryLock{bus: b, name: name}
}

// Channel returns a channel on name
func (b *Bus) Channel(name string) Channel {
	return &memoryChannel{bus: b, name: name}
}

type memoryLock struct {
	bus  *Bus
	name string

	mu   sync.Mutex
	mine bool
}

func (l *memoryLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mine {
		return true, nil
	}

	l.bus.mu.Lock()
	defer l.bus.mu.Unlock()
	if l.bus.held[l.name] {
		return false, nil
	}
	l.bus.held[l.name] = true
	l.mine = true
	return true, nil
}

func (l *memoryLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.mine {
		return nil
	}

	l.bus.mu.Lock()
	delete(l.bus.held, l.name)
	l.bus.mu.Unlock()
	l.mine = false
	return nil
}

type memoryChannel struct {
	bus  *Bus
	name string
}

func (c *memoryChannel) Listen(ctx context.Context, handler func(string)) (<-chan struct{}, error) {
	ch := make(chan string, 16)

	c.bus.mu.Lock()
	if _, taken := c.bus.listeners[c.name]; taken {
		c.bus.mu.Unlock()
		return nil, fmt.Errorf("channel %q already bound", c.name)
	}
	c.bus.listeners[c.name] = ch
	c.bus.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			c.bus.mu.Lock()
			delete(c.bus.listeners, c.name)
			c.bus.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case command := <-ch:
				if ctx.Err() != nil {
					return
				}
				handler(command)
			}
		}
	}()
	return done, nil
}

func (c *memoryChannel) Send(ctx context.Context, command string) error {
	if err := utils.ValidateCommand(command); err != nil {
		return err
	}

	c.bus.mu.Lock()
	ch, ok := c.bus.listeners[c.name]
	c.bus.mu.Unlock()
	if !ok {
		return ErrNoListener
	}

	select {
	case ch <- command:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
