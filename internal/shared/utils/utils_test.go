package utils

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionIdentifierDeterministic(t *testing.T) {
	a := NewPermissionIdentifier(nil)
	b := NewPermissionIdentifier(DefaultHasher())

	id := a.Generate("global", "Location")
	assert.Equal(t, id, b.Generate("global", "Location"))
	assert.Len(t, id, 64)
	assert.True(t, a.Verify(id, "global", "Location"))
	assert.Equal(t, id[:8], a.Short(id))
}

func TestPermissionIdentifierDistinguishesFields(t *testing.T) {
	pi := NewPermissionIdentifier(nil)

	assert.NotEqual(t, pi.Generate("a", "b"), pi.Generate("b", "a"))
	assert.NotEqual(t, pi.Generate("global", "Notes"), pi.Generate("global", "Tasks"))
}

func TestValidateScope(t *testing.T) {
	tests := []struct {
		name    string
		scope   string
		wantErr bool
	}{
		{"known", "SystemInformation", false},
		{"digits", "Scope2", false},
		{"empty", "", true},
		{"leading digit", "2Scope", true},
		{"space", "Sys Info", true},
		{"colon", "Location:fine", true},
		{"too long", strings.Repeat("A", MaxScopeLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScope(tt.scope)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateClientID(t *testing.T) {
	assert.NoError(t, ValidateClientID(""))
	assert.NoError(t, ValidateClientID("view_01HZX"))
	assert.Error(t, ValidateClientID("a:b"))
	assert.Error(t, ValidateClientID(strings.Repeat("x", MaxIDLength+1)))
}

func TestValidateCommand(t *testing.T) {
	assert.NoError(t, ValidateCommand("addwidget 3f0c"))
	assert.NoError(t, ValidateCommand(""))
	assert.Error(t, ValidateCommand("a\nb"))
	assert.Error(t, ValidateCommand(string([]byte{0xff, 0xfe})))
	assert.Error(t, ValidateCommand(strings.Repeat("x", MaxCommandLength+1)))
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	l := NewKeyLock[string]()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.Len())
}

func TestKeyLockWaiters(t *testing.T) {
	l := NewKeyLock[string]()
	ctx := context.Background()
	assert.Zero(t, l.Waiters("k"))

	release, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Waiters("k"))

	acquired := make(chan func())
	go func() {
		next, err := l.Lock(ctx, "k")
		if err == nil {
			acquired <- next
		}
	}()
	require.Eventually(t, func() bool { return l.Waiters("k") == 2 }, time.Second, time.Millisecond)

	release()
	next := <-acquired
	assert.Equal(t, 1, l.Waiters("k"))
	next()
	assert.Zero(t, l.Waiters("k"))
}

func TestKeyLockIndependentKeys(t *testing.T) {
	l := NewKeyLock[string]()
	ctx := context.Background()

	releaseA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := l.Lock(ctx, "b")
		if err == nil {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyLockHonorsCancellation(t *testing.T) {
	l := NewKeyLock[string]()

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	assert.Equal(t, 0, l.Len())
}
