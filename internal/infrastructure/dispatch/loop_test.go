package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestPostRunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, l.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPostBeforeRunIsQueued(t *testing.T) {
	l := New(nil)
	ran := make(chan struct{})
	l.Post(func(context.Context) { close(ran) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran")
	}
}

func TestDoReturnsResult(t *testing.T) {
	l, _ := startLoop(t)
	want := errors.New("boom")

	err := l.Do(context.Background(), func(ctx context.Context) error {
		assert.True(t, l.OnLoop(ctx))
		return want
	})
	assert.ErrorIs(t, err, want)
}

func TestDoInlineOnLoop(t *testing.T) {
	l, _ := startLoop(t)

	inner := false
	err := l.Do(context.Background(), func(ctx context.Context) error {
		// A nested Do would deadlock if it were queued.
		return l.Do(ctx, func(context.Context) error {
			inner = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, inner)
	assert.False(t, l.OnLoop(context.Background()))
}

func TestPostedTaskSeesLoopContext(t *testing.T) {
	l, _ := startLoop(t)

	result := make(chan bool, 1)
	l.Post(func(ctx context.Context) { result <- l.OnLoop(ctx) })
	assert.True(t, <-result)
}

func TestPanicIsRecovered(t *testing.T) {
	l, _ := startLoop(t)

	l.Post(func(context.Context) { panic("task failure") })
	err := l.Do(context.Background(), func(context.Context) error { panic("do failure") })
	assert.Error(t, err)

	require.NoError(t, l.Flush(context.Background()))
	_, panics := l.Stats()
	assert.Equal(t, uint64(2), panics)
}

func TestDoHonorsCallerContext(t *testing.T) {
	l, _ := startLoop(t)

	block := make(chan struct{})
	l.Post(func(context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := l.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	require.NoError(t, l.Flush(context.Background()))
	assert.False(t, called)
}

func TestStoppedLoopRejectsWork(t *testing.T) {
	l, cancel := startLoop(t)
	cancel()
	<-l.Done()

	assert.False(t, l.Post(func(context.Context) {}))
	assert.ErrorIs(t, l.Do(context.Background(), func(context.Context) error { return nil }), ErrStopped)
}

func TestRunTwice(t *testing.T) {
	l, _ := startLoop(t)
	require.NoError(t, l.Flush(context.Background()))

	assert.Error(t, l.Run(context.Background()))
}
