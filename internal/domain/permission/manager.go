package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/dispatch"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

// LevelResolver supplies the access tier recorded for new permissions
type LevelResolver interface {
	LevelFor(subject types.Subject, scope types.Scope) types.PermissionLevel
}

// Poster delivers work to the UI-affine dispatcher
type Poster interface {
	Post(task dispatch.Task) bool
}

// Option configures a Manager
type Option func(*Manager)

// WithLevels sets the level resolver. Without one every record is coarse.
func WithLevels(levels LevelResolver) Option {
	return func(m *Manager) { m.levels = levels }
}

// WithDispatcher delivers events through p. Without one, events are
// delivered synchronously on the writing goroutine.
func WithDispatcher(p Poster) Option {
	return func(m *Manager) { m.poster = p }
}

// WithMetrics records transitions and fail-closed writes
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// Manager owns the permission state of every (subject, scope) key.
//
// Reads go through a lock-free view backed by the store. Transitions on
// one key are serialized by a keyed lock and written through to the store
// before subscribers are notified. A failed write leaves the key Denied.
type Manager struct {
	store   *Store
	consent Consent
	levels  LevelResolver
	poster  Poster
	metrics *monitoring.Metrics
	log     *zap.Logger

	view  sync.Map // store key -> types.PermissionState
	locks *utils.KeyLock[string]

	pendingMu sync.Mutex
	pending   map[string]context.CancelFunc
	revoking  map[string]int

	subsMu  sync.RWMutex
	subs    map[int]Handler
	nextSub int
}

// NewManager creates a permission manager. A nil consent denies everything.
func NewManager(store *Store, consent Consent, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		consent:  consent,
		locks:    utils.NewKeyLock[string](),
		pending:  make(map[string]context.CancelFunc),
		revoking: make(map[string]int),
		subs:     make(map[int]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("permission")
	if m.consent == nil {
		m.consent = DenyAll(m.log)
	}
	return m
}

func validate(subject types.Subject, scope types.Scope) error {
	if !subject.Valid() {
		return fmt.Errorf("%w: subject is not set", types.ErrInvalidArgument)
	}
	if scope == "" {
		return fmt.Errorf("%w: scope is empty", types.ErrInvalidArgument)
	}
	return nil
}

// HasPermission reports whether the key is Allowed. It never blocks on a
// pending transition.
func (m *Manager) HasPermission(subject types.Subject, scope types.Scope) bool {
	if validate(subject, scope) != nil {
		return false
	}
	return m.current(subject, scope) == types.PermissionAllowed
}

// TryCheckPermissionState returns the current state without side effects
// beyond populating the read view.
func (m *Manager) TryCheckPermissionState(subject types.Subject, scope types.Scope) (types.PermissionState, error) {
	if err := validate(subject, scope); err != nil {
		return types.PermissionUndefined, err
	}
	return m.current(subject, scope), nil
}

// RequestAccess asks for a grant. An Allowed key returns at once. Otherwise
// the key is marked Requested, the consent collaborator runs, and the key
// resolves to Allowed or Denied; it never stays Requested. A revoke while
// the prompt is open cancels it and the request resolves Denied.
func (m *Manager) RequestAccess(ctx context.Context, subject types.Subject, scope types.Scope) (types.PermissionState, error) {
	if err := validate(subject, scope); err != nil {
		return types.PermissionUndefined, err
	}
	if m.current(subject, scope) == types.PermissionAllowed {
		return types.PermissionAllowed, nil
	}

	key := StoreKey(subject, scope)
	release, err := m.locks.Lock(ctx, key)
	if err != nil {
		return m.current(subject, scope), err
	}
	defer release()

	// Another request may have completed while we waited.
	if m.current(subject, scope) == types.PermissionAllowed {
		return types.PermissionAllowed, nil
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !m.setPending(key, cancel) {
		// A revoke is waiting on the key and resolves it Denied.
		return types.PermissionDenied, nil
	}
	defer m.clearPending(key)

	if state := m.write(subject, scope, types.PermissionRequested); state != types.PermissionRequested {
		return state, nil
	}

	req := Request{Subject: subject, Scope: scope, Level: m.levelFor(subject, scope)}
	answer, askErr := m.consent.Ask(reqCtx, req)

	target := types.PermissionDenied
	switch {
	case reqCtx.Err() != nil:
		m.log.Info("consent request cancelled",
			logging.Subject(subject), logging.Scope(scope))
	case askErr != nil:
		m.log.Warn("consent failed, denying",
			logging.Subject(subject), logging.Scope(scope), zap.Error(askErr))
	case answer == types.PermissionAllowed:
		target = types.PermissionAllowed
	}

	state := m.write(subject, scope, target)
	if err := ctx.Err(); err != nil {
		return state, err
	}
	return state, nil
}

// TryChangePermissionState is the administrative override. It never asks
// for consent. target must be Allowed, Denied or Undefined.
func (m *Manager) TryChangePermissionState(ctx context.Context, subject types.Subject, scope types.Scope, target types.PermissionState) (types.PermissionState, error) {
	if err := validate(subject, scope); err != nil {
		return types.PermissionUndefined, err
	}
	switch target {
	case types.PermissionAllowed, types.PermissionDenied, types.PermissionUndefined:
	default:
		return m.current(subject, scope), fmt.Errorf("%w: cannot set state %s", types.ErrInvalidArgument, target)
	}

	release, err := m.locks.Lock(ctx, StoreKey(subject, scope))
	if err != nil {
		return m.current(subject, scope), err
	}
	defer release()

	return m.write(subject, scope, target), nil
}

// TryRevokePermission forces the key to Denied. A consent prompt pending on
// the key is cancelled first and resolves Denied. Requests queued behind it
// resolve Denied without asking.
func (m *Manager) TryRevokePermission(subject types.Subject, scope types.Scope) (types.PermissionState, error) {
	if err := validate(subject, scope); err != nil {
		return types.PermissionUndefined, err
	}
	key := StoreKey(subject, scope)
	m.beginRevoke(key)
	defer m.endRevoke(key)

	release, err := m.locks.Lock(context.Background(), key)
	if err != nil {
		return types.PermissionDenied, err
	}
	defer release()

	return m.write(subject, scope, types.PermissionDenied), nil
}

// Snapshot returns the permissions of subject for the given scopes, in order
func (m *Manager) Snapshot(subject types.Subject, scopes []types.Scope) ([]types.Permission, error) {
	if !subject.Valid() {
		return nil, fmt.Errorf("%w: subject is not set", types.ErrInvalidArgument)
	}
	out := make([]types.Permission, 0, len(scopes))
	for _, scope := range scopes {
		if scope == "" {
			continue
		}
		out = append(out, m.store.New(subject, scope, m.levelFor(subject, scope), m.current(subject, scope)))
	}
	return out, nil
}

// ResetSubject returns every listed scope of subject to Undefined
func (m *Manager) ResetSubject(ctx context.Context, subject types.Subject, scopes []types.Scope) error {
	var errs []error
	for _, scope := range scopes {
		if _, err := m.TryChangePermissionState(ctx, subject, scope, types.PermissionUndefined); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", scope, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for permission events. Handlers run on the
// dispatcher. The returned func unsubscribes.
func (m *Manager) Subscribe(handler Handler) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = handler
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
		})
	}
}

// current reads the view, loading from the store on a miss. Load failures
// read as Denied and are not cached, so a later read retries the store.
func (m *Manager) current(subject types.Subject, scope types.Scope) types.PermissionState {
	key := StoreKey(subject, scope)
	if v, ok := m.view.Load(key); ok {
		return v.(types.PermissionState)
	}

	p, err := m.store.Load(subject, scope)
	if err != nil {
		m.log.Warn("permission load failed, reading as denied",
			logging.Subject(subject), logging.Scope(scope), zap.Error(err))
		return types.PermissionDenied
	}
	v, _ := m.view.LoadOrStore(key, p.State)
	return v.(types.PermissionState)
}

// write persists target for the key and updates the view. The caller holds
// the key lock. On a store failure the key is forced to Denied, the
// persisted record is scrubbed and Denied is returned.
func (m *Manager) write(subject types.Subject, scope types.Scope, target types.PermissionState) types.PermissionState {
	key := StoreKey(subject, scope)
	prev := m.current(subject, scope)

	result := target
	p := m.store.New(subject, scope, m.levelFor(subject, scope), target)
	if err := m.store.Save(p); err != nil {
		result = types.PermissionDenied
		m.metrics.IncPermissionFailClosed()
		m.log.Error("permission write failed, failing closed",
			logging.Subject(subject),
			logging.Scope(scope),
			zap.Stringer("target", target),
			zap.Error(err))
		m.scrub(subject, scope, target)
	}
	m.view.Store(key, result)
	m.metrics.RecordPermissionTransition(result.String())

	if prev != result {
		m.log.Debug("permission changed",
			logging.Subject(subject),
			logging.Scope(scope),
			zap.Stringer("from", prev),
			zap.Stringer("to", result))
		ev := Event{Kind: EventChanged, Subject: subject, Scope: scope, Previous: prev, Current: result}
		m.publish(ev)
		if _, isWidget := subject.Widget(); isWidget && prev == types.PermissionAllowed && result == types.PermissionDenied {
			ev.Kind = EventRevoked
			m.publish(ev)
		}
	}
	return result
}

// scrub runs after a failed write so the persisted record cannot reload as
// an older grant. It writes Denied, falling back to removing the record.
func (m *Manager) scrub(subject types.Subject, scope types.Scope, failed types.PermissionState) {
	if failed != types.PermissionDenied {
		denied := m.store.New(subject, scope, m.levelFor(subject, scope), types.PermissionDenied)
		if err := m.store.Save(denied); err == nil {
			return
		}
	}
	if err := m.store.Discard(subject, scope); err != nil {
		m.log.Error("could not clear persisted permission",
			logging.Subject(subject), logging.Scope(scope), zap.Error(err))
	}
}

func (m *Manager) publish(ev Event) {
	m.subsMu.RLock()
	handlers := make([]Handler, 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.subsMu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	deliver := func(context.Context) {
		for _, h := range handlers {
			h(ev)
		}
	}
	if m.poster == nil {
		deliver(context.Background())
		return
	}
	if !m.poster.Post(deliver) {
		m.log.Debug("dispatcher stopped, dropping permission event",
			logging.Subject(ev.Subject), logging.Scope(ev.Scope))
	}
}

func (m *Manager) levelFor(subject types.Subject, scope types.Scope) types.PermissionLevel {
	if m.levels == nil {
		return types.LevelCoarse
	}
	return m.levels.LevelFor(subject, scope)
}

// setPending records the cancel func of a consent prompt. It reports false
// while a revoke is in flight on key.
func (m *Manager) setPending(key string, cancel context.CancelFunc) bool {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if m.revoking[key] > 0 {
		return false
	}
	m.pending[key] = cancel
	return true
}

func (m *Manager) clearPending(key string) {
	m.pendingMu.Lock()
	delete(m.pending, key)
	m.pendingMu.Unlock()
}

// beginRevoke marks key as revoking and cancels its pending prompt
func (m *Manager) beginRevoke(key string) {
	m.pendingMu.Lock()
	m.revoking[key]++
	cancel, ok := m.pending[key]
	m.pendingMu.Unlock()
	if ok {
		cancel()
	}
}

func (m *Manager) endRevoke(key string) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.revoking[key]--
	if m.revoking[key] <= 0 {
		delete(m.revoking, key)
	}
}
