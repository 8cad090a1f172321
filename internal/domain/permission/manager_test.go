package permission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/dispatch"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskwidgets/internal/providers/settings"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

var widgetB = types.MustParseWidgetID("00000000-0000-4000-8000-0000000000b2")

func answer(state types.PermissionState) Consent {
	return ConsentFunc(func(context.Context, Request) (types.PermissionState, error) {
		return state, nil
	})
}

func newManager(t *testing.T, s settings.Store, consent Consent, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewManager(NewStore(s, nil), consent, opts...)
}

// flakyStore fails writes while fail is set. failSet fails only Set.
type flakyStore struct {
	*settings.Memory
	fail    atomic.Bool
	failSet atomic.Bool
}

func (f *flakyStore) Set(key string, value []byte) error {
	if f.fail.Load() || f.failSet.Load() {
		return errors.New("disk full")
	}
	return f.Memory.Set(key, value)
}

func (f *flakyStore) Remove(key string) (bool, error) {
	if f.fail.Load() {
		return false, errors.New("disk full")
	}
	return f.Memory.Remove(key)
}

type mockConsent struct {
	mock.Mock
}

func (m *mockConsent) Ask(ctx context.Context, req Request) (types.PermissionState, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.PermissionState), args.Error(1)
}

func TestConsentAskedOnceThenRemembered(t *testing.T) {
	ctx := context.Background()
	allowed := types.WidgetSubject(widgetA)
	failing := types.WidgetSubject(widgetB)

	consent := new(mockConsent)
	consent.On("Ask", mock.Anything, mock.MatchedBy(func(r Request) bool {
		return r.Subject == allowed && r.Scope == types.ScopeLocation
	})).Return(types.PermissionAllowed, nil).Once()
	consent.On("Ask", mock.Anything, mock.MatchedBy(func(r Request) bool {
		return r.Subject == failing
	})).Return(types.PermissionAllowed, errors.New("prompt crashed")).Once()

	m := newManager(t, settings.NewMemory(), consent)
	for i := 0; i < 3; i++ {
		state, err := m.RequestAccess(ctx, allowed, types.ScopeLocation)
		require.NoError(t, err)
		assert.Equal(t, types.PermissionAllowed, state)
	}

	state, _ := m.RequestAccess(ctx, failing, types.ScopeLocation)
	assert.Equal(t, types.PermissionDenied, state, "an answer with an error never grants")
	assert.False(t, m.HasPermission(failing, types.ScopeLocation))

	consent.AssertExpectations(t)
	consent.AssertNumberOfCalls(t, "Ask", 2)
}

func TestDefaultDeny(t *testing.T) {
	m := newManager(t, settings.NewMemory(), nil)

	for _, subject := range []types.Subject{types.GlobalSubject(), types.WidgetSubject(widgetA)} {
		assert.False(t, m.HasPermission(subject, types.ScopeLocation))
		state, err := m.TryCheckPermissionState(subject, types.ScopeLocation)
		require.NoError(t, err)
		assert.Equal(t, types.PermissionUndefined, state)
	}
}

func TestNilConsentDenies(t *testing.T) {
	m := newManager(t, settings.NewMemory(), nil)

	state, err := m.RequestAccess(context.Background(), types.WidgetSubject(widgetA), types.ScopeNotes)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)
}

func TestGrantThenUse(t *testing.T) {
	mem := settings.NewMemory()
	m := newManager(t, mem, answer(types.PermissionAllowed))
	subject := types.WidgetSubject(widgetA)

	state, err := m.RequestAccess(context.Background(), subject, types.ScopeNotes)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionAllowed, state)
	assert.True(t, m.HasPermission(subject, types.ScopeNotes))

	// Other keys are unaffected.
	assert.False(t, m.HasPermission(subject, types.ScopeTasks))
	assert.False(t, m.HasPermission(types.WidgetSubject(widgetB), types.ScopeNotes))

	// A fresh process sees the grant.
	fresh := newManager(t, mem, nil)
	assert.True(t, fresh.HasPermission(subject, types.ScopeNotes))
}

func TestRequestAllowedSkipsConsent(t *testing.T) {
	var calls atomic.Int32
	m := newManager(t, settings.NewMemory(), ConsentFunc(func(context.Context, Request) (types.PermissionState, error) {
		calls.Add(1)
		return types.PermissionAllowed, nil
	}))
	subject := types.WidgetSubject(widgetA)

	for i := 0; i < 3; i++ {
		state, err := m.RequestAccess(context.Background(), subject, types.ScopeNotes)
		require.NoError(t, err)
		assert.Equal(t, types.PermissionAllowed, state)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRevocationNeverHeals(t *testing.T) {
	mem := settings.NewMemory()
	m := newManager(t, mem, answer(types.PermissionAllowed))
	subject := types.WidgetSubject(widgetA)
	ctx := context.Background()

	_, err := m.TryChangePermissionState(ctx, subject, types.ScopeLocation, types.PermissionAllowed)
	require.NoError(t, err)

	state, err := m.TryRevokePermission(subject, types.ScopeLocation)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)
	assert.False(t, m.HasPermission(subject, types.ScopeLocation))

	// Neither a reload nor repeated checks bring it back.
	fresh := newManager(t, mem, nil)
	for i := 0; i < 3; i++ {
		assert.False(t, fresh.HasPermission(subject, types.ScopeLocation))
	}
	state, err = fresh.TryCheckPermissionState(subject, types.ScopeLocation)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)

	// Only a new grant does.
	state, err = m.RequestAccess(ctx, subject, types.ScopeLocation)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionAllowed, state)
}

func TestConsentOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		consent Consent
		want    types.PermissionState
	}{
		{"allowed", answer(types.PermissionAllowed), types.PermissionAllowed},
		{"denied", answer(types.PermissionDenied), types.PermissionDenied},
		{"undefined answer", answer(types.PermissionUndefined), types.PermissionDenied},
		{"requested answer", answer(types.PermissionRequested), types.PermissionDenied},
		{"error", ConsentFunc(func(context.Context, Request) (types.PermissionState, error) {
			return types.PermissionAllowed, errors.New("prompt crashed")
		}), types.PermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, settings.NewMemory(), tt.consent)
			subject := types.WidgetSubject(widgetA)

			state, err := m.RequestAccess(context.Background(), subject, types.ScopeClipboard)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)

			stored, err := m.TryCheckPermissionState(subject, types.ScopeClipboard)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored)
		})
	}
}

func TestConsentSeesLevel(t *testing.T) {
	var got Request
	levels := levelFunc(func(types.Subject, types.Scope) types.PermissionLevel { return types.LevelFine })
	m := newManager(t, settings.NewMemory(), ConsentFunc(func(_ context.Context, req Request) (types.PermissionState, error) {
		got = req
		return types.PermissionAllowed, nil
	}), WithLevels(levels))

	_, err := m.RequestAccess(context.Background(), types.WidgetSubject(widgetA), types.ScopeLocation)
	require.NoError(t, err)
	assert.Equal(t, types.LevelFine, got.Level)
	assert.Equal(t, types.ScopeLocation, got.Scope)
}

type levelFunc func(types.Subject, types.Scope) types.PermissionLevel

func (f levelFunc) LevelFor(s types.Subject, sc types.Scope) types.PermissionLevel { return f(s, sc) }

func TestInvalidArguments(t *testing.T) {
	m := newManager(t, settings.NewMemory(), nil)
	ctx := context.Background()
	var zero types.Subject

	_, err := m.RequestAccess(ctx, zero, types.ScopeNotes)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = m.RequestAccess(ctx, types.GlobalSubject(), "")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = m.TryRevokePermission(zero, types.ScopeNotes)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = m.TryCheckPermissionState(types.WidgetSubject(types.WidgetID{}), types.ScopeNotes)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = m.TryChangePermissionState(ctx, types.GlobalSubject(), types.ScopeNotes, types.PermissionRequested)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.False(t, m.HasPermission(zero, types.ScopeNotes))
}

func TestFailClosedPersistence(t *testing.T) {
	store := &flakyStore{Memory: settings.NewMemory()}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	m := newManager(t, store, answer(types.PermissionAllowed), WithMetrics(metrics))
	subject := types.WidgetSubject(widgetA)
	ctx := context.Background()

	store.fail.Store(true)

	state, err := m.TryChangePermissionState(ctx, subject, types.ScopeNotes, types.PermissionAllowed)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)
	assert.False(t, m.HasPermission(subject, types.ScopeNotes))

	state, err = m.RequestAccess(ctx, subject, types.ScopeTasks)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)
	assert.False(t, m.HasPermission(subject, types.ScopeTasks))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PermissionFailClosed))

	// Once the store recovers, a grant works again.
	store.fail.Store(false)
	state, err = m.RequestAccess(ctx, subject, types.ScopeTasks)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionAllowed, state)
}

func TestFailClosedRevokesExistingGrant(t *testing.T) {
	store := &flakyStore{Memory: settings.NewMemory()}
	m := newManager(t, store, nil)
	subject := types.WidgetSubject(widgetA)

	_, err := m.TryChangePermissionState(context.Background(), subject, types.ScopeNotes, types.PermissionAllowed)
	require.NoError(t, err)
	require.True(t, m.HasPermission(subject, types.ScopeNotes))

	store.fail.Store(true)
	state, err := m.TryChangePermissionState(context.Background(), subject, types.ScopeNotes, types.PermissionUndefined)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)
	assert.False(t, m.HasPermission(subject, types.ScopeNotes))
}

func TestFailedRevokeDoesNotPersistGrant(t *testing.T) {
	store := &flakyStore{Memory: settings.NewMemory()}
	m := newManager(t, store, nil)
	subject := types.WidgetSubject(widgetA)

	_, err := m.TryChangePermissionState(context.Background(), subject, types.ScopeNotes, types.PermissionAllowed)
	require.NoError(t, err)

	store.failSet.Store(true)
	state, err := m.TryRevokePermission(subject, types.ScopeNotes)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)

	store.failSet.Store(false)
	fresh := newManager(t, store, nil)
	assert.False(t, fresh.HasPermission(subject, types.ScopeNotes))
	reloaded, err := fresh.TryCheckPermissionState(subject, types.ScopeNotes)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionUndefined, reloaded)
}

func TestFailedRemoveFallsBackToDenied(t *testing.T) {
	store := &flakyStore{Memory: settings.NewMemory()}
	m := newManager(t, store, nil)
	subject := types.WidgetSubject(widgetA)
	ctx := context.Background()

	_, err := m.TryChangePermissionState(ctx, subject, types.ScopeTasks, types.PermissionAllowed)
	require.NoError(t, err)

	// Undefined removes the record. When that fails a Denied record replaces the grant.
	m = newManager(t, &removeFailStore{flakyStore: store}, nil)
	state, err := m.TryChangePermissionState(ctx, subject, types.ScopeTasks, types.PermissionUndefined)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)

	reloaded, err := newManager(t, store, nil).TryCheckPermissionState(subject, types.ScopeTasks)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, reloaded)
}

// removeFailStore fails every Remove
type removeFailStore struct {
	*flakyStore
}

func (r *removeFailStore) Remove(string) (bool, error) {
	return false, errors.New("read-only")
}

func TestRevokeDoesNotWaitOnQueuedRequest(t *testing.T) {
	var asks atomic.Int32
	asked := make(chan struct{}, 2)
	done := make(chan struct{})
	defer close(done)
	m := newManager(t, settings.NewMemory(), ConsentFunc(func(ctx context.Context, _ Request) (types.PermissionState, error) {
		asks.Add(1)
		asked <- struct{}{}
		select {
		case <-ctx.Done():
		case <-done:
		}
		return types.PermissionAllowed, nil
	}))
	subject := types.WidgetSubject(widgetA)

	results := make(chan types.PermissionState, 2)
	request := func() {
		state, _ := m.RequestAccess(context.Background(), subject, types.ScopeLocation)
		results <- state
	}
	go request()
	<-asked
	go request()
	key := StoreKey(subject, types.ScopeLocation)
	require.Eventually(t, func() bool { return m.locks.Waiters(key) == 2 }, time.Second, time.Millisecond)

	revoked := make(chan types.PermissionState, 1)
	go func() {
		state, _ := m.TryRevokePermission(subject, types.ScopeLocation)
		revoked <- state
	}()
	select {
	case state := <-revoked:
		assert.Equal(t, types.PermissionDenied, state)
	case <-time.After(2 * time.Second):
		t.Fatal("revoke waited on a queued consent prompt")
	}

	for i := 0; i < 2; i++ {
		assert.Equal(t, types.PermissionDenied, <-results)
	}
	assert.Equal(t, int32(1), asks.Load())
	assert.False(t, m.HasPermission(subject, types.ScopeLocation))
}

func TestRevokeCancelsPendingRequest(t *testing.T) {
	asked := make(chan struct{})
	m := newManager(t, settings.NewMemory(), ConsentFunc(func(ctx context.Context, _ Request) (types.PermissionState, error) {
		close(asked)
		<-ctx.Done()
		return types.PermissionAllowed, nil
	}))
	subject := types.WidgetSubject(widgetA)

	result := make(chan types.PermissionState, 1)
	go func() {
		state, _ := m.RequestAccess(context.Background(), subject, types.ScopeLocation)
		result <- state
	}()

	<-asked
	pending, err := m.TryCheckPermissionState(subject, types.ScopeLocation)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionRequested, pending)

	state, err := m.TryRevokePermission(subject, types.ScopeLocation)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)

	select {
	case got := <-result:
		assert.Equal(t, types.PermissionDenied, got)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not cancelled")
	}
	assert.False(t, m.HasPermission(subject, types.ScopeLocation))
}

func TestCallerCancellationResolvesDenied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newManager(t, settings.NewMemory(), ConsentFunc(func(ctx context.Context, _ Request) (types.PermissionState, error) {
		cancel()
		<-ctx.Done()
		return types.PermissionAllowed, nil
	}))
	subject := types.WidgetSubject(widgetA)

	state, err := m.RequestAccess(ctx, subject, types.ScopeNotes)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.PermissionDenied, state)

	stored, err := m.TryCheckPermissionState(subject, types.ScopeNotes)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, stored)
}

func TestConcurrentRequestsSerialize(t *testing.T) {
	var calls atomic.Int32
	m := newManager(t, settings.NewMemory(), ConsentFunc(func(context.Context, Request) (types.PermissionState, error) {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return types.PermissionAllowed, nil
	}))
	subject := types.WidgetSubject(widgetA)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := m.RequestAccess(context.Background(), subject, types.ScopeNotes)
			assert.NoError(t, err)
			assert.Equal(t, types.PermissionAllowed, state)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.HasPermission(subject, types.ScopeNotes)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestEventsOnDispatcher(t *testing.T) {
	loop := dispatch.New(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	defer func() {
		cancel()
		<-loop.Done()
	}()

	m := newManager(t, settings.NewMemory(), nil, WithDispatcher(loop))

	var (
		mu     sync.Mutex
		events []Event
		onLoop = true
	)
	unsubscribe := m.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	loop.Post(func(c context.Context) { onLoop = loop.OnLoop(c) })

	subject := types.WidgetSubject(widgetA)
	_, err := m.TryChangePermissionState(ctx, subject, types.ScopeNotes, types.PermissionAllowed)
	require.NoError(t, err)
	// Same state again: no event.
	_, err = m.TryChangePermissionState(ctx, subject, types.ScopeNotes, types.PermissionAllowed)
	require.NoError(t, err)
	_, err = m.TryRevokePermission(subject, types.ScopeNotes)
	require.NoError(t, err)
	// Global revocations never raise Revoked.
	_, err = m.TryChangePermissionState(ctx, types.GlobalSubject(), types.ScopeNotes, types.PermissionAllowed)
	require.NoError(t, err)
	_, err = m.TryRevokePermission(types.GlobalSubject(), types.ScopeNotes)
	require.NoError(t, err)

	require.NoError(t, loop.Flush(ctx))
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, onLoop)
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventChanged, EventChanged, EventRevoked, EventChanged, EventChanged}, kinds)
	assert.Equal(t, types.PermissionUndefined, events[0].Previous)
	assert.Equal(t, types.PermissionAllowed, events[0].Current)
	assert.Equal(t, types.PermissionDenied, events[2].Current)
}

func TestSnapshotAndReset(t *testing.T) {
	m := newManager(t, settings.NewMemory(), nil)
	subject := types.WidgetSubject(widgetA)
	ctx := context.Background()
	scopes := []types.Scope{types.ScopeNotes, types.ScopeTasks}

	_, err := m.TryChangePermissionState(ctx, subject, types.ScopeNotes, types.PermissionAllowed)
	require.NoError(t, err)
	_, err = m.TryRevokePermission(subject, types.ScopeTasks)
	require.NoError(t, err)

	snap, err := m.Snapshot(subject, scopes)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, types.PermissionAllowed, snap[0].State)
	assert.Equal(t, types.PermissionDenied, snap[1].State)
	assert.NotEmpty(t, snap[0].ID)

	require.NoError(t, m.ResetSubject(ctx, subject, scopes))
	for _, s := range scopes {
		state, err := m.TryCheckPermissionState(subject, s)
		require.NoError(t, err)
		assert.Equal(t, types.PermissionUndefined, state)
	}
}

func TestAutoGrant(t *testing.T) {
	c := AutoGrant([]types.WidgetID{widgetA}, DenyAll(nil))
	ctx := context.Background()

	state, err := c.Ask(ctx, Request{Subject: types.WidgetSubject(widgetA), Scope: types.ScopeNotes})
	require.NoError(t, err)
	assert.Equal(t, types.PermissionAllowed, state)

	state, err = c.Ask(ctx, Request{Subject: types.WidgetSubject(widgetB), Scope: types.ScopeNotes})
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)

	state, err = c.Ask(ctx, Request{Subject: types.GlobalSubject(), Scope: types.ScopeNotes})
	require.NoError(t, err)
	assert.Equal(t, types.PermissionDenied, state)
}
