package types

// InstanceState represents widget instance lifecycle states
type InstanceState string

const (
	StatePreview       InstanceState = "preview"
	StateActivated     InstanceState = "activated"
	StatePinned        InstanceState = "pinned"
	StateSecondaryView InstanceState = "secondary_view"
	StateHidden        InstanceState = "hidden"
)

// VisualMode is the corner/visual presentation of a desktop window.
type VisualMode string

const (
	VisualModeDefault VisualMode = "default"
	VisualModeCompact VisualMode = "compact"
	VisualModeCorner  VisualMode = "corner"
)

// WindowPosition represents window position on screen
type WindowPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WindowSize represents window dimensions
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether no size has been recorded.
func (s WindowSize) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// InstanceStats contains instance manager statistics
type InstanceStats struct {
	Total          int                   `json:"total"`
	ByState        map[InstanceState]int `json:"by_state"`
	SecondaryViews int                   `json:"secondary_views"`
	PreviewType    *string               `json:"preview_type,omitempty"`
}
