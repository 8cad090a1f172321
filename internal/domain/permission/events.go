package permission

import "github.com/GriffinCanCode/deskwidgets/internal/shared/types"

// EventKind distinguishes permission notifications
type EventKind int

const (
	// EventChanged fires for every state change of a key.
	EventChanged EventKind = iota
	// EventRevoked additionally fires when a widget subject goes from
	// Allowed to Denied.
	EventRevoked
)

func (k EventKind) String() string {
	if k == EventRevoked {
		return "revoked"
	}
	return "changed"
}

// Event is delivered to subscribers on the dispatcher
type Event struct {
	Kind     EventKind
	Subject  types.Subject
	Scope    types.Scope
	Previous types.PermissionState
	Current  types.PermissionState
}

// Handler receives permission events
type Handler func(Event)
