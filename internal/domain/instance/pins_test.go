package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/deskwidgets/internal/providers/settings"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

func TestPinKeys(t *testing.T) {
	mem := settings.NewMemory()
	pins := NewPins(mem)

	require.NoError(t, pins.SavePin(Key{Widget: calendarID}, Layout{Size: DefaultSize}))
	require.NoError(t, pins.SavePin(Key{Widget: notesID, ClientID: "A"}, Layout{Size: DefaultSize}))

	id, notes := calendarID.String(), notesID.String()
	assert.ElementsMatch(t, []string{
		id + ":IsPinnedDesktop",
		id + ":Position",
		id + ":Size",
		id + ":VisualMode",
		notes + ":A:IsPinnedDesktop",
		notes + ":A:Position",
		notes + ":A:Size",
		notes + ":A:VisualMode",
		notes + ":PinnedClients",
	}, mem.Keys())
}

func TestPinnedFlagIsDerived(t *testing.T) {
	mem := settings.NewMemory()
	pins := NewPins(mem)
	meta := types.WidgetMetadata{ID: calendarID}.WithPins(pins)

	assert.False(t, meta.IsPinnedDesktop())
	require.NoError(t, pins.SavePin(Key{Widget: calendarID}, Layout{}))
	assert.True(t, meta.IsPinnedDesktop(), "flag is read on every call")
	require.NoError(t, pins.ClearPin(Key{Widget: calendarID}))
	assert.False(t, meta.IsPinnedDesktop())
}

func TestLayoutDefaults(t *testing.T) {
	pins := NewPins(settings.NewMemory())

	l, err := pins.Layout(Key{Widget: calendarID}, DefaultSize)
	require.NoError(t, err)
	assert.Equal(t, Layout{Size: DefaultSize, Mode: types.VisualModeDefault}, l)
}

func TestLayoutCorruptValue(t *testing.T) {
	mem := settings.NewMemory()
	pins := NewPins(mem)
	key := Key{Widget: calendarID}
	require.NoError(t, mem.Set(key.settingsKey(PropSize), []byte("not json")))
	require.NoError(t, pins.SavePosition(key, types.WindowPosition{X: 5, Y: 6}))

	l, err := pins.Layout(key, DefaultSize)
	assert.Error(t, err)
	assert.Equal(t, DefaultSize, l.Size)
	assert.Equal(t, types.WindowPosition{X: 5, Y: 6}, l.Position)
}

func TestPinnedKeys(t *testing.T) {
	pins := NewPins(settings.NewMemory())
	notes := types.WidgetMetadata{ID: notesID, MultiView: true}

	keys, err := pins.PinnedKeys(notes)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, pins.SavePin(Key{Widget: notesID, ClientID: "B"}, Layout{}))
	require.NoError(t, pins.SavePin(Key{Widget: notesID, ClientID: "A"}, Layout{}))
	require.NoError(t, pins.SavePin(Key{Widget: notesID}, Layout{}))

	keys, err = pins.PinnedKeys(notes)
	require.NoError(t, err)
	assert.Equal(t, []Key{{Widget: notesID}, {Widget: notesID, ClientID: "A"}, {Widget: notesID, ClientID: "B"}}, keys)

	require.NoError(t, pins.RemoveClient(Key{Widget: notesID, ClientID: "A"}))
	require.NoError(t, pins.ClearPin(Key{Widget: notesID, ClientID: "B"}))
	clients, err := pins.PinnedClients(notesID)
	require.NoError(t, err)
	assert.Empty(t, clients)
}
