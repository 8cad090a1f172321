package types

// Rejection records a widget declaration the registry refused to load.
type Rejection struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// RegistryStats contains registry statistics
type RegistryStats struct {
	TotalWidgets int           `json:"total_widgets"`
	Rejected     int           `json:"rejected"`
	ByScope      map[Scope]int `json:"by_scope"`
	MultiView    int           `json:"multi_view"`
	Network      int           `json:"requires_network"`
}
