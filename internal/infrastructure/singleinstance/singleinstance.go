package singleinstance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/dispatch"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

// ErrNotOwner is returned by Stop on a process that never took the lock
var ErrNotOwner = errors.New("not the owning instance")

// Lock is a named, process-wide mutual exclusion lock
type Lock interface {
	// TryAcquire takes the lock without blocking. It reports false, with a
	// nil error, when another process holds it.
	TryAcquire() (bool, error)
	Release() error
}

// Channel is the named duplex command channel between processes
type Channel interface {
	// Listen binds the channel and serves on a background goroutine until
	// ctx is done. It returns once bound; the returned channel closes when
	// serving has stopped.
	Listen(ctx context.Context, handler func(command string)) (<-chan struct{}, error)
	// Send delivers one command to the listening process. No reply is read.
	Send(ctx context.Context, command string) error
}

// Callback handles one forwarded command. It runs on the dispatcher.
type Callback func(ctx context.Context, command string)

// Poster delivers work to the UI-affine dispatcher
type Poster interface {
	Post(task dispatch.Task) bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithDispatcher runs callbacks on p. Without one they run on the
// listener goroutine.
func WithDispatcher(p Poster) Option {
	return func(c *Coordinator) { c.poster = p }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithMetrics counts received commands
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

// Coordinator is the startup gate of the host process
type Coordinator struct {
	lock    Lock
	channel Channel
	poster  Poster
	metrics *monitoring.Metrics
	log     *zap.Logger

	mu     sync.Mutex
	owner  bool
	cancel context.CancelFunc
	done   <-chan struct{}
}

// New creates a coordinator over lock and channel
func New(lock Lock, channel Channel, opts ...Option) *Coordinator {
	c := &Coordinator{lock: lock, channel: channel}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("singleinstance")
	return c
}

// Start tries to become the owning process. The owner starts listening and
// gets true. Otherwise it returns false and the caller should Forward and
// exit without building anything else.
func (c *Coordinator) Start(ctx context.Context, callback Callback) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner {
		return true, nil
	}

	acquired, err := c.lock.TryAcquire()
	if err != nil {
		return false, fmt.Errorf("%w: acquire lock: %w", types.ErrChannel, err)
	}
	if !acquired {
		c.log.Debug("another instance owns the lock")
		return false, nil
	}

	lctx, cancel := context.WithCancel(ctx)
	done, err := c.channel.Listen(lctx, func(command string) {
		c.deliver(lctx, callback, command)
	})
	if err != nil {
		cancel()
		if relErr := c.lock.Release(); relErr != nil {
			c.log.Warn("release lock after failed listen", zap.Error(relErr))
		}
		return false, fmt.Errorf("%w: listen: %w", types.ErrChannel, err)
	}

	c.owner = true
	c.cancel = cancel
	c.done = done
	c.log.Info("owning instance, listening for commands")
	return true, nil
}

// Forward sends args, joined with spaces, to the owning process
func (c *Coordinator) Forward(ctx context.Context, args []string) error {
	command := strings.Join(args, " ")
	if err := utils.ValidateCommand(command); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidArgument, err)
	}
	if err := c.channel.Send(ctx, command); err != nil {
		return fmt.Errorf("%w: forward: %w", types.ErrChannel, err)
	}
	c.log.Debug("command forwarded", zap.String("command", command))
	return nil
}

// Owner reports whether this process holds the lock
func (c *Coordinator) Owner() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Stop stops listening, waits for the listener to exit and releases the
// lock. Commands arriving after Stop are never delivered.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.owner {
		return ErrNotOwner
	}

	c.cancel()
	<-c.done
	c.owner = false

	if err := c.lock.Release(); err != nil {
		return fmt.Errorf("%w: release lock: %w", types.ErrChannel, err)
	}
	c.log.Info("released instance lock")
	return nil
}

func (c *Coordinator) deliver(ctx context.Context, callback Callback, command string) {
	c.metrics.IncCommand(Parse(command).Label())
	c.log.Debug("command received", zap.String("command", command))

	run := func(ctx context.Context) { callback(ctx, command) }
	if c.poster == nil {
		run(ctx)
		return
	}
	if !c.poster.Post(run) {
		c.log.Warn("dispatcher stopped, dropping command", zap.String("command", command))
	}
}
