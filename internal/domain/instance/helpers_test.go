package instance

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/deskwidgets/internal/domain/permission"
	"github.com/GriffinCanCode/deskwidgets/internal/providers/settings"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

var (
	calendarID = types.MustParseWidgetID("00000000-0000-4000-8000-000000000001")
	notesID    = types.MustParseWidgetID("00000000-0000-4000-8000-000000000002")
	weatherID  = types.MustParseWidgetID("00000000-0000-4000-8000-000000000003")
	monitorID  = types.MustParseWidgetID("00000000-0000-4000-8000-000000000004")
	unknownID  = types.MustParseWidgetID("00000000-0000-4000-8000-0000000000ff")
)

type catalog []types.WidgetMetadata

func (c catalog) Lookup(id types.WidgetID) (types.WidgetMetadata, bool) {
	for _, m := range c {
		if m.ID == id {
			return m, true
		}
	}
	return types.WidgetMetadata{}, false
}

func (c catalog) All() []types.WidgetMetadata { return slices.Clone(c) }

func testCatalog() catalog {
	return catalog{
		{ID: calendarID, Type: "test.calendar", Scopes: []types.Scope{types.ScopeAppointments}},
		{ID: notesID, Type: "test.notes", Scopes: []types.Scope{types.ScopeNotes}, MultiView: true},
		{ID: weatherID, Type: "test.weather", Scopes: []types.Scope{types.ScopeLocation}, RequiresNetwork: true},
		{ID: monitorID, Type: "test.monitor", Scopes: []types.Scope{types.ScopeSystemInformation}},
	}
}

type call struct {
	op  string
	key Key
}

// recorder is a Presenter that records every call
type recorder struct {
	mu       sync.Mutex
	calls    []call
	failShow map[types.WidgetID]error
}

func (r *recorder) record(op string, inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op: op, key: inst.Key()})
}

func (r *recorder) Show(_ context.Context, inst *Instance) error {
	r.record("show", inst)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failShow[inst.Key().Widget]
}

func (r *recorder) Hide(inst *Instance)   { r.record("hide", inst) }
func (r *recorder) Close(inst *Instance)  { r.record("close", inst) }
func (r *recorder) Update(inst *Instance) { r.record("update", inst) }

func (r *recorder) keys(op string) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Key
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c.key)
		}
	}
	return out
}

type fixture struct {
	store settings.Store
	perms *permission.Manager
	pins  *Pins
	pres  *recorder
	m     *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureOn(t, settings.NewMemory(), opts...)
}

func newFixtureOn(t *testing.T, store settings.Store, opts ...Option) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	f := &fixture{
		store: store,
		perms: permission.NewManager(permission.NewStore(store, log), nil, permission.WithLogger(log)),
		pins:  NewPins(store),
		pres:  &recorder{failShow: map[types.WidgetID]error{}},
	}
	opts = append([]Option{WithPresenter(f.pres), WithLogger(log)}, opts...)
	f.m = NewManager(testCatalog(), f.perms, f.pins, opts...)
	t.Cleanup(f.m.Shutdown)
	return f
}

func (f *fixture) grant(t *testing.T, id types.WidgetID, scope types.Scope) {
	t.Helper()
	state, err := f.perms.TryChangePermissionState(context.Background(), types.WidgetSubject(id), scope, types.PermissionAllowed)
	require.NoError(t, err)
	require.Equal(t, types.PermissionAllowed, state)
}
