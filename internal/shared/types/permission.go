package types

import (
	"fmt"
	"strings"
)

// PermissionState is the grant state of a (subject, scope) pair.
type PermissionState int

const (
	PermissionUndefined PermissionState = iota
	PermissionAllowed
	PermissionDenied
	PermissionRequested
)

// String returns the persisted form of the state
func (s PermissionState) String() string {
	switch s {
	case PermissionUndefined:
		return "undefined"
	case PermissionAllowed:
		return "allowed"
	case PermissionDenied:
		return "denied"
	case PermissionRequested:
		return "requested"
	default:
		return "unknown"
	}
}

// ParsePermissionState parses the persisted form of a state.
func ParsePermissionState(s string) (PermissionState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined":
		return PermissionUndefined, nil
	case "allowed":
		return PermissionAllowed, nil
	case "denied":
		return PermissionDenied, nil
	case "requested":
		return PermissionRequested, nil
	}
	return PermissionDenied, fmt.Errorf("unknown permission state %q", s)
}

// PermissionLevel distinguishes coarse and fine-grained access tiers.
type PermissionLevel int

const (
	LevelCoarse PermissionLevel = iota
	LevelFine
)

func (l PermissionLevel) String() string {
	if l == LevelFine {
		return "fine"
	}
	return "coarse"
}

// ParsePermissionLevel parses "coarse" or "fine".
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "coarse":
		return LevelCoarse, nil
	case "fine":
		return LevelFine, nil
	}
	return LevelCoarse, fmt.Errorf("unknown permission level %q", s)
}

// Subject is either the whole process or a single widget identity.
// The zero value is neither and is rejected by the permission manager.
type Subject struct {
	widget WidgetID
	global bool
}

// GlobalSubject returns the process-wide subject.
func GlobalSubject() Subject {
	return Subject{global: true}
}

// WidgetSubject returns the subject for one widget type.
func WidgetSubject(id WidgetID) Subject {
	return Subject{widget: id}
}

// IsGlobal reports whether the subject is process-wide
func (s Subject) IsGlobal() bool { return s.global }

// Widget returns the widget identity for widget subjects.
func (s Subject) Widget() (WidgetID, bool) {
	if s.global || s.widget.IsZero() {
		return WidgetID{}, false
	}
	return s.widget, true
}

// Valid reports whether the subject is global or names a declared widget.
func (s Subject) Valid() bool {
	return s.global || !s.widget.IsZero()
}

func (s Subject) String() string {
	if s.global {
		return "global"
	}
	if s.widget.IsZero() {
		return "invalid"
	}
	return s.widget.String()
}

// Permission is the persisted grant record for a (subject, scope) pair.
type Permission struct {
	ID      string          `json:"id"`
	Subject Subject         `json:"-"`
	Scope   Scope           `json:"scope"`
	Level   PermissionLevel `json:"level"`
	State   PermissionState `json:"state"`
}

// Allowed reports whether the permission is currently granted.
func (p Permission) Allowed() bool {
	return p.State == PermissionAllowed
}
