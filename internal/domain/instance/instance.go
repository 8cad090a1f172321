package instance

import (
	"slices"
	"strings"
	"sync"

	"github.com/GriffinCanCode/deskwidgets/internal/providers/settings"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/id"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Key identifies one instance slot. ClientID is empty except for the
// per-client instances of multi-view widgets.
type Key struct {
	Widget   types.WidgetID
	ClientID string
}

// String returns "{identity}" or "{identity}:{client}"
func (k Key) String() string {
	return settings.Key(k.Widget.String(), k.ClientID)
}

// Less orders keys by identity, then client
func (k Key) Less(other Key) bool {
	if k.Widget != other.Widget {
		return k.Widget.Less(other.Widget)
	}
	return k.ClientID < other.ClientID
}

func (k Key) settingsKey(property string) string {
	return settings.Key(k.Widget.String(), k.ClientID, property)
}

// Instance is one live widget surface. The manager owns all mutation;
// accessors are safe from any goroutine.
type Instance struct {
	id   id.InstanceID
	key  Key
	meta types.WidgetMetadata

	mu       sync.RWMutex
	state    types.InstanceState
	previous types.InstanceState // state to restore on show
	pinned   bool
	held     bool // pinned but kept hidden until its scopes are granted
	parent   *Key
	position types.WindowPosition
	size     types.WindowSize
	mode     types.VisualMode
	missing  []types.Scope
}

func newInstance(key Key, meta types.WidgetMetadata, state types.InstanceState, layout Layout) *Instance {
	return &Instance{
		id:       id.NewInstanceID(),
		key:      key,
		meta:     meta,
		state:    state,
		position: layout.Position,
		size:     layout.Size,
		mode:     layout.Mode,
	}
}

// ID returns the runtime instance id
func (i *Instance) ID() id.InstanceID { return i.id }

// Key returns the slot this instance occupies
func (i *Instance) Key() Key { return i.key }

// Metadata returns the widget type's declarations
func (i *Instance) Metadata() types.WidgetMetadata { return i.meta }

// State returns the lifecycle state
func (i *Instance) State() types.InstanceState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Pinned reports whether the instance is a desktop window, visible or not
func (i *Instance) Pinned() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.pinned
}

// Parent returns the owning instance key of a secondary view
func (i *Instance) Parent() (Key, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.parent == nil {
		return Key{}, false
	}
	return *i.parent, true
}

// Position returns the window position
func (i *Instance) Position() types.WindowPosition {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.position
}

// Size returns the window size
func (i *Instance) Size() types.WindowSize {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.size
}

// VisualMode returns the window's visual mode
func (i *Instance) VisualMode() types.VisualMode {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.mode
}

// MissingScopes returns the declared scopes that are not currently granted.
// The UI disables those capabilities and offers a request affordance.
func (i *Instance) MissingScopes() []types.Scope {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.missing)
}

// View is a point-in-time copy of an instance for listings
type View struct {
	ID            id.InstanceID        `json:"id"`
	Widget        types.WidgetID       `json:"widget"`
	Type          string               `json:"type"`
	ClientID      string               `json:"client_id,omitempty"`
	State         types.InstanceState  `json:"state"`
	Pinned        bool                 `json:"pinned"`
	Position      types.WindowPosition `json:"position"`
	Size          types.WindowSize     `json:"size"`
	VisualMode    types.VisualMode     `json:"visual_mode"`
	MissingScopes []types.Scope        `json:"missing_scopes"`
}

// Snapshot copies the instance's current state
func (i *Instance) Snapshot() View {
	i.mu.RLock()
	defer i.mu.RUnlock()
	missing := slices.Clone(i.missing)
	if missing == nil {
		missing = []types.Scope{}
	}
	return View{
		ID:            i.id,
		Widget:        i.key.Widget,
		Type:          i.meta.Type,
		ClientID:      i.key.ClientID,
		State:         i.state,
		Pinned:        i.pinned,
		Position:      i.position,
		Size:          i.size,
		VisualMode:    i.mode,
		MissingScopes: missing,
	}
}

func (i *Instance) setState(state types.InstanceState) {
	i.mu.Lock()
	i.state = state
	i.mu.Unlock()
}

func (i *Instance) setMissing(missing []types.Scope) (changed bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	changed = !slices.Equal(i.missing, missing)
	i.missing = missing
	return changed
}

// hide moves the instance to Hidden and reports whether it was visible
func (i *Instance) hide() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == types.StateHidden {
		return false
	}
	i.previous = i.state
	i.state = types.StateHidden
	return true
}

// show restores the state saved by hide and reports whether it was hidden.
// A held instance still missing a grant stays hidden.
func (i *Instance) show() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != types.StateHidden || (i.held && len(i.missing) > 0) {
		return false
	}
	i.state = i.previous
	if i.state == "" {
		i.state = types.StateActivated
	}
	i.held = false
	return true
}

func (i *Instance) pin(layout Layout) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pinned = true
	i.state = types.StatePinned
	i.position = layout.Position
	i.size = layout.Size
	i.mode = layout.Mode
}

func (i *Instance) layout() Layout {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Layout{Position: i.position, Size: i.size, Mode: i.mode}
}

// hold keeps a pinned instance hidden until its scopes are granted
func (i *Instance) hold() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.previous = i.state
	i.state = types.StateHidden
	i.held = true
}

// release ends a hold once nothing is missing. It reports whether the
// instance should now be shown.
func (i *Instance) release() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.held || len(i.missing) > 0 {
		return false
	}
	i.held = false
	i.state = i.previous
	return true
}

// waiting reports whether the instance is held and still lacks a grant
func (i *Instance) waiting() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.held && len(i.missing) > 0
}

// Held reports whether the instance is waiting on a grant to be shown
func (i *Instance) Held() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.held
}

func (i *Instance) unpin() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pinned = false
	i.held = false
	i.state = types.StateActivated
}

func sortInstances(insts []*Instance) {
	slices.SortFunc(insts, func(a, b *Instance) int {
		switch {
		case a.key.Less(b.key):
			return -1
		case b.key.Less(a.key):
			return 1
		default:
			// ties break on instance id
			return strings.Compare(string(a.id), string(b.id))
		}
	})
}
