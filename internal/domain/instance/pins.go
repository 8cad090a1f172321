package instance

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/GriffinCanCode/deskwidgets/internal/providers/settings"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Settings property names
const (
	PropPinned        = "IsPinnedDesktop"
	PropPosition      = "Position"
	PropSize          = "Size"
	PropVisualMode    = "VisualMode"
	PropPinnedClients = "PinnedClients"
)

// Layout is the persisted window geometry of one key
type Layout struct {
	Position types.WindowPosition
	Size     types.WindowSize
	Mode     types.VisualMode
}

// Pins reads and writes pin state and window layout through the settings
// store. It is the only place those keys are touched, and it also serves as
// the registry's derived pinned flag.
type Pins struct {
	store settings.Store

	clientsMu sync.Mutex // serializes PinnedClients read-modify-write
}

// NewPins creates a pin store over s
func NewPins(s settings.Store) *Pins {
	return &Pins{store: s}
}

// IsPinnedDesktop reads "{id}:IsPinnedDesktop". Read errors report false.
func (p *Pins) IsPinnedDesktop(id types.WidgetID) bool {
	pinned, err := p.IsPinned(Key{Widget: id})
	return err == nil && pinned
}

// IsPinned reads the pin flag of one key
func (p *Pins) IsPinned(k Key) (bool, error) {
	pinned, err := settings.GetValue(p.store, k.settingsKey(PropPinned), false)
	if err != nil {
		return false, fmt.Errorf("read pin flag %s: %w", k, err)
	}
	return pinned, nil
}

// Layout reads the persisted layout of k. Absent values take the defaults;
// a failed read is reported alongside whatever could be read.
func (p *Pins) Layout(k Key, defaultSize types.WindowSize) (Layout, error) {
	l := Layout{Size: defaultSize, Mode: types.VisualModeDefault}
	var errs []error

	pos, err := settings.GetValue(p.store, k.settingsKey(PropPosition), types.WindowPosition{})
	if err != nil {
		errs = append(errs, err)
	}
	l.Position = pos

	size, err := settings.GetValue(p.store, k.settingsKey(PropSize), types.WindowSize{})
	if err != nil {
		errs = append(errs, err)
	} else if !size.IsZero() {
		l.Size = size
	}

	mode, err := settings.GetValue(p.store, k.settingsKey(PropVisualMode), types.VisualModeDefault)
	if err != nil {
		errs = append(errs, err)
	} else if mode != "" {
		l.Mode = mode
	}

	if err := errors.Join(errs...); err != nil {
		return l, fmt.Errorf("read layout %s: %w", k, err)
	}
	return l, nil
}

// SavePin marks k pinned and writes its layout
func (p *Pins) SavePin(k Key, l Layout) error {
	err := errors.Join(
		settings.SetValue(p.store, k.settingsKey(PropPinned), true),
		p.SavePosition(k, l.Position),
		p.SaveSize(k, l.Size),
		p.SaveVisualMode(k, l.Mode),
	)
	if err == nil && k.ClientID != "" {
		err = p.updateClients(k, func(clients []string) []string {
			if slices.Contains(clients, k.ClientID) {
				return clients
			}
			clients = append(clients, k.ClientID)
			slices.Sort(clients)
			return clients
		})
	}
	if err != nil {
		return fmt.Errorf("save pin %s: %w", k, err)
	}
	return nil
}

// ClearPin removes the pin flag of k. The layout stays for the next pin.
func (p *Pins) ClearPin(k Key) error {
	_, err := p.store.Remove(k.settingsKey(PropPinned))
	if err == nil && k.ClientID != "" {
		err = p.updateClients(k, func(clients []string) []string {
			return slices.DeleteFunc(clients, func(c string) bool { return c == k.ClientID })
		})
	}
	if err != nil {
		return fmt.Errorf("clear pin %s: %w", k, err)
	}
	return nil
}

// RemoveClient clears every key persisted for one client
func (p *Pins) RemoveClient(k Key) error {
	errs := []error{p.ClearPin(k)}
	for _, prop := range []string{PropPosition, PropSize, PropVisualMode} {
		if _, err := p.store.Remove(k.settingsKey(prop)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("remove client %s: %w", k, err)
	}
	return nil
}

// SavePosition writes the window position of k
func (p *Pins) SavePosition(k Key, pos types.WindowPosition) error {
	return settings.SetValue(p.store, k.settingsKey(PropPosition), pos)
}

// SaveSize writes the window size of k
func (p *Pins) SaveSize(k Key, size types.WindowSize) error {
	return settings.SetValue(p.store, k.settingsKey(PropSize), size)
}

// SaveVisualMode writes the visual mode of k
func (p *Pins) SaveVisualMode(k Key, mode types.VisualMode) error {
	return settings.SetValue(p.store, k.settingsKey(PropVisualMode), mode)
}

// PinnedClients returns the pinned client ids of a multi-view widget, sorted
func (p *Pins) PinnedClients(id types.WidgetID) ([]string, error) {
	clients, err := settings.GetValue[[]string](p.store, Key{Widget: id}.settingsKey(PropPinnedClients), nil)
	if err != nil {
		return nil, fmt.Errorf("read pinned clients %s: %w", id, err)
	}
	slices.Sort(clients)
	return clients, nil
}

// PinnedKeys returns every persisted pin of a widget type in key order
func (p *Pins) PinnedKeys(meta types.WidgetMetadata) ([]Key, error) {
	var keys []Key
	base := Key{Widget: meta.ID}
	pinned, err := p.IsPinned(base)
	if err != nil {
		return nil, err
	}
	if pinned {
		keys = append(keys, base)
	}
	if !meta.MultiView {
		return keys, nil
	}
	clients, err := p.PinnedClients(meta.ID)
	if err != nil {
		return keys, err
	}
	for _, c := range clients {
		keys = append(keys, Key{Widget: meta.ID, ClientID: c})
	}
	return keys, nil
}

func (p *Pins) updateClients(k Key, update func([]string) []string) error {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()

	key := Key{Widget: k.Widget}.settingsKey(PropPinnedClients)
	clients, err := settings.GetValue[[]string](p.store, key, nil)
	if err != nil {
		return err
	}
	clients = update(clients)
	if len(clients) == 0 {
		_, err = p.store.Remove(key)
		return err
	}
	return settings.SetValue(p.store, key, clients)
}
