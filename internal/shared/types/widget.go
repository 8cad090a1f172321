package types

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// WidgetID identifies a widget type. The zero value means undeclared.
type WidgetID uuid.UUID

// ParseWidgetID parses the canonical UUID form of a widget identity.
func ParseWidgetID(s string) (WidgetID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return WidgetID{}, err
	}
	return WidgetID(u), nil
}

// MustParseWidgetID is ParseWidgetID for static declarations and tests.
func MustParseWidgetID(s string) WidgetID {
	id, err := ParseWidgetID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether the identity is undeclared.
func (id WidgetID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// String returns the canonical lowercase UUID form.
func (id WidgetID) String() string {
	return uuid.UUID(id).String()
}

// Less orders identities by canonical string form.
func (id WidgetID) Less(other WidgetID) bool {
	return id.String() < other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (id WidgetID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *WidgetID) UnmarshalText(data []byte) error {
	parsed, err := ParseWidgetID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Scope is a named capability. Scopes are open identifiers so new widget
// types can introduce capabilities without touching a central list.
type Scope string

// Known scopes used by the built-in widgets.
const (
	ScopeSystemInformation Scope = "SystemInformation"
	ScopeAppointments      Scope = "Appointments"
	ScopeNotes             Scope = "Notes"
	ScopeLocation          Scope = "Location"
	ScopeClipboard         Scope = "Clipboard"
	ScopeAccountInfo       Scope = "AccountInfo"
	ScopeTasks             Scope = "Tasks"
)

func (s Scope) String() string { return string(s) }

// PinReader resolves the persisted pinned-on-desktop flag of a widget type.
type PinReader interface {
	IsPinnedDesktop(id WidgetID) bool
}

// WidgetMetadata is the immutable snapshot of a widget type's declarations.
type WidgetMetadata struct {
	ID              WidgetID                  `json:"id"`
	Type            string                    `json:"type"`
	Scopes          []Scope                   `json:"scopes"`
	Levels          map[Scope]PermissionLevel `json:"levels,omitempty"`
	RequiresNetwork bool                      `json:"requires_network"`
	Icon            string                    `json:"icon"`
	Title           *string                   `json:"title,omitempty"`
	Subtitle        *string                   `json:"subtitle,omitempty"`
	StoreProduct    string                    `json:"store_product,omitempty"`
	DeveloperOnly   bool                      `json:"developer_only"`
	MultiView       bool                      `json:"multi_view"`

	pins PinReader
}

// WithPins returns a copy bound to the given pin reader.
func (m WidgetMetadata) WithPins(pins PinReader) WidgetMetadata {
	m.pins = pins
	return m
}

// IsPinnedDesktop recomputes the pinned flag on every call.
func (m WidgetMetadata) IsPinnedDesktop() bool {
	if m.pins == nil || m.ID.IsZero() {
		return false
	}
	return m.pins.IsPinnedDesktop(m.ID)
}

// HasScope reports whether the widget declared the scope.
func (m WidgetMetadata) HasScope(scope Scope) bool {
	for _, s := range m.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// LevelFor returns the declared access tier for a scope.
func (m WidgetMetadata) LevelFor(scope Scope) PermissionLevel {
	if lvl, ok := m.Levels[scope]; ok {
		return lvl
	}
	return LevelCoarse
}

// SortWidgetIDs sorts identities in identity order.
func SortWidgetIDs(ids []WidgetID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
