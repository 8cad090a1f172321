package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/domain/permission"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/id"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

// DefaultSize is used for keys without a persisted size
var DefaultSize = types.WindowSize{Width: 320, Height: 240}

// Catalog resolves widget declarations. *registry.Registry implements it.
type Catalog interface {
	Lookup(id types.WidgetID) (types.WidgetMetadata, bool)
	All() []types.WidgetMetadata
}

// Option configures a Manager
type Option func(*Manager)

// WithPresenter sets the presenter. Defaults to a LogPresenter.
func WithPresenter(p Presenter) Option {
	return func(m *Manager) { m.presenter = p }
}

// WithExecutor runs presentation on e. Without one, presentation runs
// inline on the calling goroutine.
func WithExecutor(e Executor) Option {
	return func(m *Manager) { m.exec = e }
}

// WithGlobalScopes lists scopes whose process-wide grant enables widgets
func WithGlobalScopes(scopes []types.Scope) Option {
	return func(m *Manager) { m.globalScopes = scopes }
}

// WithDefaultSize sets the size of keys that have never been resized
func WithDefaultSize(size types.WindowSize) Option {
	return func(m *Manager) {
		if !size.IsZero() {
			m.defaultSize = size
		}
	}
}

// WithMetrics adds metrics tracking to the manager
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// Manager orchestrates widget instance lifecycle.
//
// The live table holds activated, pinned and hidden instances, one per key.
// Secondary views are tracked by client id, and the current preview is held
// outside both. Pin state and layout are written through to settings on
// every explicit change; the table is only a view over them.
type Manager struct {
	catalog      Catalog
	perms        Permissions
	pins         *Pins
	presenter    Presenter
	exec         Executor
	policy       policy
	globalScopes []types.Scope
	defaultSize  types.WindowSize
	metrics      *monitoring.Metrics
	log          *zap.Logger

	locks *utils.KeyLock[Key]

	mu        sync.RWMutex
	instances map[Key]*Instance // Protected by mu
	views     map[string]*Instance
	preview   *Instance

	unsubscribe func()
}

// NewManager creates an instance manager and subscribes it to permission
// events. Call Shutdown to release it.
func NewManager(catalog Catalog, perms Permissions, pins *Pins, opts ...Option) *Manager {
	m := &Manager{
		catalog:     catalog,
		perms:       perms,
		pins:        pins,
		exec:        inline{},
		defaultSize: DefaultSize,
		locks:       utils.NewKeyLock[Key](),
		instances:   make(map[Key]*Instance),
		views:       make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("instance")
	if m.presenter == nil {
		m.presenter = LogPresenter{Log: m.log}
	}
	m.policy = newPolicy(perms, m.globalScopes)
	if perms != nil {
		m.unsubscribe = perms.Subscribe(m.onPermission)
	}
	return m
}

// Preview creates the transient preview for a widget type. A preview of
// another type that was never promoted is retired.
func (m *Manager) Preview(ctx context.Context, widget types.WidgetID) (*Instance, error) {
	meta, err := m.lookup(widget)
	if err != nil {
		return nil, err
	}
	missing := m.policy.missing(meta)

	m.mu.Lock()
	if cur := m.preview; cur != nil && cur.key.Widget == widget {
		m.mu.Unlock()
		return cur, nil
	}
	retired := m.preview
	inst := newInstance(Key{Widget: widget}, meta, types.StatePreview, Layout{Size: m.defaultSize, Mode: types.VisualModeDefault})
	inst.setMissing(missing)
	m.preview = inst
	m.mu.Unlock()

	if retired != nil {
		m.log.Debug("retiring preview", logging.Widget(retired.key.Widget))
		m.post(func() { m.presenter.Close(retired) })
	}
	if err := m.show(ctx, inst); err != nil {
		m.mu.Lock()
		if m.preview == inst {
			m.preview = nil
		}
		m.mu.Unlock()
		return nil, err
	}
	return inst, nil
}

// Activate creates or returns the live instance for (widget, clientID).
// Missing grants do not block creation; they are reported by MissingScopes
// and enforced when the widget runs a gated operation.
func (m *Manager) Activate(ctx context.Context, widget types.WidgetID, clientID string) (*Instance, error) {
	meta, err := m.lookup(widget)
	if err != nil {
		return nil, err
	}
	if err := checkClient(meta, clientID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := Key{Widget: widget, ClientID: clientID}
	layout := m.loadLayout(key)
	missing := m.policy.missing(meta)

	m.mu.Lock()
	if inst, ok := m.instances[key]; ok {
		m.mu.Unlock()
		return inst, nil
	}
	if v, ok := m.views[clientID]; ok && clientID != "" && v.key == key {
		m.mu.Unlock()
		return v, nil
	}
	inst := m.promotePreview(key)
	if inst == nil {
		inst = newInstance(key, meta, types.StateActivated, layout)
	}
	inst.setMissing(missing)
	m.instances[key] = inst
	m.mu.Unlock()

	m.log.Debug("widget activated", logging.Widget(widget), logging.Client(clientID),
		zap.Int("missing_scopes", len(missing)))
	m.refreshMetrics()
	return inst, nil
}

// PinToDesktop makes (widget, clientID) a standalone desktop window and
// persists it. Pinning an already pinned key returns the existing instance.
func (m *Manager) PinToDesktop(ctx context.Context, widget types.WidgetID, clientID string) (*Instance, error) {
	meta, err := m.lookup(widget)
	if err != nil {
		return nil, err
	}
	if err := checkClient(meta, clientID); err != nil {
		return nil, err
	}
	key := Key{Widget: widget, ClientID: clientID}

	release, err := m.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	layout := m.loadLayout(key)
	missing := m.policy.missing(meta)

	m.mu.Lock()
	if v, ok := m.views[clientID]; ok && clientID != "" && v.key == key {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is open as a secondary view", types.ErrConflictingPin, key)
	}
	inst, exists := m.instances[key]
	if exists && inst.Pinned() {
		m.mu.Unlock()
		return inst, nil
	}
	if exists {
		layout = inst.layout()
	} else {
		inst = m.promotePreview(key)
		if inst == nil {
			inst = newInstance(key, meta, types.StateActivated, layout)
		}
		m.instances[key] = inst
	}
	m.mu.Unlock()

	if err := m.pins.SavePin(key, layout); err != nil {
		m.drop(key, inst, exists)
		return nil, persistence(err)
	}
	inst.pin(layout)
	inst.setMissing(missing)

	if err := m.show(ctx, inst); err != nil {
		if clearErr := m.pins.ClearPin(key); clearErr != nil {
			m.log.Error("rollback of failed pin", zap.Stringer("key", key), zap.Error(clearErr))
		}
		inst.unpin()
		m.drop(key, inst, exists)
		return nil, err
	}

	m.log.Info("widget pinned", logging.Widget(widget), logging.Client(clientID))
	m.refreshMetrics()
	return inst, nil
}

// UnpinFromDesktop destroys the pinned instance of a key and clears its
// pin flag. Position and size are kept. A key that is not pinned is left
// alone.
func (m *Manager) UnpinFromDesktop(ctx context.Context, widget types.WidgetID, clientID string) error {
	meta, err := m.lookup(widget)
	if err != nil {
		return err
	}
	if err := checkClient(meta, clientID); err != nil {
		return err
	}
	key := Key{Widget: widget, ClientID: clientID}

	release, err := m.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	m.mu.RLock()
	inst, live := m.instances[key]
	m.mu.RUnlock()
	live = live && inst.Pinned()

	persisted, err := m.pins.IsPinned(key)
	if err != nil {
		// Clear anyway; an unreadable flag must not keep the widget pinned.
		m.log.Warn("pin flag unreadable", zap.Stringer("key", key), zap.Error(err))
		persisted = true
	}
	if !live && !persisted {
		return nil
	}

	if err := m.pins.ClearPin(key); err != nil {
		return persistence(err)
	}
	if live {
		m.drop(key, inst, false)
		m.post(func() { m.presenter.Close(inst) })
	}

	m.log.Info("widget unpinned", logging.Widget(widget), logging.Client(clientID))
	m.refreshMetrics()
	return nil
}

// OpenSecondaryView opens a child window of a live multi-view parent.
// An empty clientID mints a new one. Each client id has at most one view.
func (m *Manager) OpenSecondaryView(ctx context.Context, parent Key, clientID string) (*Instance, error) {
	meta, err := m.lookup(parent.Widget)
	if err != nil {
		return nil, err
	}
	if !meta.MultiView {
		return nil, fmt.Errorf("%w: %s does not support secondary views", types.ErrInvalidArgument, meta.Type)
	}
	if clientID == "" {
		clientID = id.NewClientID().String()
	}
	if err := checkClient(meta, clientID); err != nil {
		return nil, err
	}
	key := Key{Widget: parent.Widget, ClientID: clientID}

	release, err := m.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	layout := m.loadLayout(key)
	missing := m.policy.missing(meta)

	m.mu.Lock()
	if _, ok := m.instances[parent]; !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: parent %s is not open", types.ErrInvalidArgument, parent)
	}
	if v, ok := m.views[clientID]; ok {
		m.mu.Unlock()
		if v.key != key {
			return nil, fmt.Errorf("%w: client %s belongs to %s", types.ErrConflictingPin, clientID, v.key.Widget)
		}
		return v, nil
	}
	if p, ok := m.instances[key]; ok && p.Pinned() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is pinned", types.ErrConflictingPin, key)
	}
	inst := newInstance(key, meta, types.StateSecondaryView, layout)
	owner := parent
	inst.parent = &owner
	inst.setMissing(missing)
	m.views[clientID] = inst
	m.mu.Unlock()

	if err := m.show(ctx, inst); err != nil {
		m.mu.Lock()
		if m.views[clientID] == inst {
			delete(m.views, clientID)
		}
		m.mu.Unlock()
		return nil, err
	}
	m.refreshMetrics()
	return inst, nil
}

// CloseSecondaryView closes the view of clientID. It reports whether one
// was open.
func (m *Manager) CloseSecondaryView(clientID string) bool {
	m.mu.Lock()
	inst, ok := m.views[clientID]
	delete(m.views, clientID)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.post(func() { m.presenter.Close(inst) })
	m.refreshMetrics()
	return true
}

// RemoveClientData tears down everything belonging to one client of a
// multi-view widget, after the client's underlying data is deleted.
func (m *Manager) RemoveClientData(ctx context.Context, widget types.WidgetID, clientID string) error {
	meta, err := m.lookup(widget)
	if err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", types.ErrInvalidArgument)
	}
	if err := checkClient(meta, clientID); err != nil {
		return err
	}
	key := Key{Widget: widget, ClientID: clientID}

	release, err := m.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	var closed []*Instance
	m.mu.Lock()
	if v, ok := m.views[clientID]; ok && v.key == key {
		delete(m.views, clientID)
		closed = append(closed, v)
	}
	if inst, ok := m.instances[key]; ok {
		delete(m.instances, key)
		closed = append(closed, inst)
	}
	m.mu.Unlock()

	for _, inst := range closed {
		m.post(func() { m.presenter.Close(inst) })
	}
	m.refreshMetrics()

	if err := m.pins.RemoveClient(key); err != nil {
		return persistence(err)
	}
	return nil
}

// Close destroys the instance at key along with the secondary views it owns.
// Persisted pin state is untouched. It reports whether anything was closed.
func (m *Manager) Close(key Key) bool {
	var closed []*Instance
	m.mu.Lock()
	if inst, ok := m.instances[key]; ok {
		delete(m.instances, key)
		closed = append(closed, inst)
		// Collect children of this parent
		for clientID, v := range m.views {
			if p, ok := v.Parent(); ok && p == key {
				delete(m.views, clientID)
				closed = append(closed, v)
			}
		}
	} else if v, ok := m.views[key.ClientID]; ok && key.ClientID != "" && v.key == key {
		delete(m.views, key.ClientID)
		closed = append(closed, v)
	} else if m.preview != nil && m.preview.key == key {
		closed = append(closed, m.preview)
		m.preview = nil
	}
	m.mu.Unlock()

	for _, inst := range closed {
		m.post(func() { m.presenter.Close(inst) })
	}
	if len(closed) > 0 {
		m.refreshMetrics()
	}
	return len(closed) > 0
}

// HideWidget hides the instance at key. It reports whether one exists.
func (m *Manager) HideWidget(key Key) bool {
	inst, ok := m.find(key)
	if !ok {
		return false
	}
	if inst.hide() {
		m.post(func() { m.presenter.Hide(inst) })
		m.refreshMetrics()
	}
	return true
}

// ShowWidget restores a hidden instance to the state it had before hiding.
// A pinned instance held at startup is refused until its scopes are granted.
func (m *Manager) ShowWidget(ctx context.Context, key Key) error {
	inst, ok := m.find(key)
	if !ok {
		return fmt.Errorf("%w: no instance for %s", types.ErrInvalidArgument, key)
	}
	if inst.waiting() {
		return fmt.Errorf("%w: %s is waiting on %v", types.ErrPermissionDenied, key, inst.MissingScopes())
	}
	if !inst.show() {
		return nil
	}
	if err := m.show(ctx, inst); err != nil {
		inst.hide()
		return err
	}
	m.refreshMetrics()
	return nil
}

// HideAll hides every live instance and secondary view. It returns how many
// instances changed.
func (m *Manager) HideAll() int {
	hidden := 0
	for _, inst := range m.List() {
		if inst.hide() {
			m.post(func() { m.presenter.Hide(inst) })
			hidden++
		}
	}
	if hidden > 0 {
		m.refreshMetrics()
	}
	return hidden
}

// Move sets the window position. Pinned keys write it through to settings.
func (m *Manager) Move(key Key, pos types.WindowPosition) error {
	inst, ok := m.find(key)
	if !ok {
		return fmt.Errorf("%w: no instance for %s", types.ErrInvalidArgument, key)
	}
	inst.mu.Lock()
	inst.position = pos
	inst.mu.Unlock()
	if inst.Pinned() || inst.State() == types.StateSecondaryView {
		if err := m.pins.SavePosition(key, pos); err != nil {
			return persistence(err)
		}
	}
	m.post(func() { m.presenter.Update(inst) })
	return nil
}

// Resize sets the window size. Pinned keys write it through to settings.
func (m *Manager) Resize(key Key, size types.WindowSize) error {
	if size.IsZero() {
		return fmt.Errorf("%w: size %dx%d", types.ErrInvalidArgument, size.Width, size.Height)
	}
	inst, ok := m.find(key)
	if !ok {
		return fmt.Errorf("%w: no instance for %s", types.ErrInvalidArgument, key)
	}
	inst.mu.Lock()
	inst.size = size
	inst.mu.Unlock()
	if inst.Pinned() || inst.State() == types.StateSecondaryView {
		if err := m.pins.SaveSize(key, size); err != nil {
			return persistence(err)
		}
	}
	m.post(func() { m.presenter.Update(inst) })
	return nil
}

// SetVisualMode switches the window's visual mode
func (m *Manager) SetVisualMode(key Key, mode types.VisualMode) error {
	switch mode {
	case types.VisualModeDefault, types.VisualModeCompact, types.VisualModeCorner:
	default:
		return fmt.Errorf("%w: visual mode %q", types.ErrInvalidArgument, mode)
	}
	inst, ok := m.find(key)
	if !ok {
		return fmt.Errorf("%w: no instance for %s", types.ErrInvalidArgument, key)
	}
	inst.mu.Lock()
	inst.mode = mode
	inst.mu.Unlock()
	if inst.Pinned() {
		if err := m.pins.SaveVisualMode(key, mode); err != nil {
			return persistence(err)
		}
	}
	m.post(func() { m.presenter.Update(inst) })
	return nil
}

// GetActivatedWidget returns the live instance of a widget type. For
// multi-view types with several instances, the lowest key wins.
func (m *Manager) GetActivatedWidget(widget types.WidgetID) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if inst, ok := m.instances[Key{Widget: widget}]; ok {
		return inst, true
	}
	var found *Instance
	for key, inst := range m.instances {
		if key.Widget == widget && (found == nil || key.Less(found.key)) {
			found = inst
		}
	}
	return found, found != nil
}

// GetViewByID returns the secondary view, or failing that the pinned
// instance, of a client id
func (m *Manager) GetViewByID(clientID string) (*Instance, bool) {
	if clientID == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.views[clientID]; ok {
		return v, true
	}
	for key, inst := range m.instances {
		if key.ClientID == clientID {
			return inst, true
		}
	}
	return nil, false
}

// IsActivated reports whether any live instance of the type exists
func (m *Manager) IsActivated(widget types.WidgetID) bool {
	_, ok := m.GetActivatedWidget(widget)
	return ok
}

// List returns the live instances and secondary views in key order
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	out := make([]*Instance, 0, len(m.instances)+len(m.views))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	for _, v := range m.views {
		out = append(out, v)
	}
	m.mu.RUnlock()

	sortInstances(out)
	return out
}

// Stats returns manager statistics
func (m *Manager) Stats() types.InstanceStats {
	insts := m.List()
	stats := types.InstanceStats{
		Total:   len(insts),
		ByState: make(map[types.InstanceState]int),
	}
	for _, inst := range insts {
		stats.ByState[inst.State()]++
		if _, ok := inst.Parent(); ok {
			stats.SecondaryViews++
		}
	}

	m.mu.RLock()
	if m.preview != nil {
		name := m.preview.meta.Type
		stats.PreviewType = &name
	}
	m.mu.RUnlock()
	return stats
}

// Shutdown unsubscribes from permission events and closes every instance.
// Persisted state is kept so pins come back on the next start.
func (m *Manager) Shutdown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	var closed []*Instance
	for _, inst := range m.instances {
		closed = append(closed, inst)
	}
	for _, v := range m.views {
		closed = append(closed, v)
	}
	if m.preview != nil {
		closed = append(closed, m.preview)
	}
	m.instances = make(map[Key]*Instance)
	m.views = make(map[string]*Instance)
	m.preview = nil
	m.mu.Unlock()

	for _, inst := range closed {
		m.post(func() { m.presenter.Close(inst) })
	}
	m.refreshMetrics()
}

// onPermission recomputes missing scopes for the affected instances. It runs
// on the dispatcher.
func (m *Manager) onPermission(ev permission.Event) {
	if ev.Kind != permission.EventChanged {
		return
	}
	widget, isWidget := ev.Subject.Widget()
	if ev.Subject.IsGlobal() && !m.policy.isGlobal(ev.Scope) {
		return
	}

	affected := m.List()
	m.mu.RLock()
	if m.preview != nil {
		affected = append(affected, m.preview)
	}
	m.mu.RUnlock()

	for _, inst := range affected {
		meta := inst.meta
		if isWidget && meta.ID != widget {
			continue
		}
		if !meta.HasScope(ev.Scope) {
			continue
		}
		if !inst.setMissing(m.policy.missing(meta)) {
			continue
		}
		if inst.release() {
			m.log.Info("grant received, showing held widget", zap.Stringer("key", inst.key))
			m.exec.Post(func(ctx context.Context) {
				if err := m.presenter.Show(ctx, inst); err != nil {
					m.log.Warn("show failed", zap.Stringer("key", inst.key), zap.Error(err))
				}
			})
			continue
		}
		m.post(func() { m.presenter.Update(inst) })
	}
}

func (m *Manager) lookup(widget types.WidgetID) (types.WidgetMetadata, error) {
	if widget.IsZero() {
		return types.WidgetMetadata{}, fmt.Errorf("%w: widget identity is empty", types.ErrInvalidArgument)
	}
	meta, ok := m.catalog.Lookup(widget)
	if !ok {
		return types.WidgetMetadata{}, fmt.Errorf("%w: %s", types.ErrNotRegistered, widget)
	}
	return meta, nil
}

func checkClient(meta types.WidgetMetadata, clientID string) error {
	if clientID == "" {
		return nil
	}
	if !meta.MultiView {
		return fmt.Errorf("%w: %s is not multi-view, client id %q not allowed", types.ErrInvalidArgument, meta.Type, clientID)
	}
	if err := utils.ValidateClientID(clientID); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidArgument, err)
	}
	return nil
}

// promotePreview moves the current preview into the live table if it
// matches key. Caller holds mu.
func (m *Manager) promotePreview(key Key) *Instance {
	p := m.preview
	if p == nil || p.key != key {
		return nil
	}
	m.preview = nil
	p.setState(types.StateActivated)
	return p
}

// drop removes inst from the table if it still occupies key. keep leaves
// a pre-existing instance in place.
func (m *Manager) drop(key Key, inst *Instance, keep bool) {
	if keep {
		return
	}
	m.mu.Lock()
	if m.instances[key] == inst {
		delete(m.instances, key)
	}
	m.mu.Unlock()
}

func (m *Manager) find(key Key) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inst, ok := m.instances[key]; ok {
		return inst, true
	}
	if v, ok := m.views[key.ClientID]; ok && key.ClientID != "" && v.key == key {
		return v, true
	}
	return nil, false
}

func (m *Manager) loadLayout(key Key) Layout {
	layout, err := m.pins.Layout(key, m.defaultSize)
	if err != nil {
		m.log.Warn("layout unreadable, using defaults", zap.Stringer("key", key), zap.Error(err))
	}
	return layout
}

func (m *Manager) show(ctx context.Context, inst *Instance) error {
	err := m.exec.Do(ctx, func(ctx context.Context) error {
		return m.presenter.Show(ctx, inst)
	})
	if err != nil {
		return fmt.Errorf("show %s: %w", inst.key, err)
	}
	return nil
}

func (m *Manager) post(fn func()) {
	if !m.exec.Post(func(context.Context) { fn() }) {
		m.log.Debug("dispatcher stopped, dropping presentation call")
	}
}

func (m *Manager) refreshMetrics() {
	if m.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, inst := range m.List() {
		counts[string(inst.State())]++
	}
	m.metrics.SetInstances(counts)
}

func persistence(err error) error {
	if errors.Is(err, types.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrPersistence, err)
}
