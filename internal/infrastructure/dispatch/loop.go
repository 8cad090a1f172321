package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("dispatch loop stopped")

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context)

type loopKey struct{}

// Loop is a single-goroutine executor with an unbounded FIFO queue.
// Everything that touches presentation state runs here.
type Loop struct {
	log *zap.Logger

	mu      sync.Mutex
	queue   []Task
	stopped bool

	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
	ran     atomic.Uint64
	panics  atomic.Uint64
}

// New creates a loop. Call Run to start processing.
func New(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		log:  log.Named("dispatch"),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// OnLoop reports whether ctx was handed out by l, meaning the caller is
// already running on the loop goroutine.
func (l *Loop) OnLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Post enqueues fn. It never blocks. It reports false once the loop has
// stopped, in which case fn is dropped.
func (l *Loop) Post(fn Task) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for its result. Called from the loop
// itself it runs fn inline. If ctx ends before fn starts, fn is skipped.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.OnLoop(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result := make(chan error, 1)
	posted := l.Post(func(context.Context) {
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- l.call(ctx, fn)
	})
	if !posted {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The task may have completed just before the loop exited.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Flush waits until every task queued before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Do(ctx, func(context.Context) error { return nil })
}

// Run processes tasks until ctx is done. Tasks still queued at that point
// are dropped. Run may be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatch loop already running")
	}
	defer l.stop()

	loopCtx := context.WithValue(ctx, loopKey{}, l)
	for {
		for _, task := range l.drain() {
			if ctx.Err() != nil {
				return nil
			}
			l.runTask(loopCtx, task)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Done is closed after Run returns
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stats returns the number of tasks run and recovered panics
func (l *Loop) Stats() (ran, panics uint64) {
	return l.ran.Load(), l.panics.Load()
}

func (l *Loop) drain() []Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	tasks := l.queue
	l.queue = nil
	return tasks
}

func (l *Loop) stop() {
	l.mu.Lock()
	dropped := len(l.queue)
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	if dropped > 0 {
		l.log.Debug("dropping queued tasks", zap.Int("count", dropped))
	}
	close(l.done)
}

func (l *Loop) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.log.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	l.ran.Add(1)
	task(ctx)
}

// call runs fn with the caller's ctx marked as on-loop, converting a panic
// into an error for the waiting caller.
func (l *Loop) call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.log.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("dispatch task panicked: %v", r)
		}
	}()
	return fn(context.WithValue(ctx, loopKey{}, l))
}
