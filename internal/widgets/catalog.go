// Package widgets embeds the built-in widget declaration table and the
// default display strings for its resource keys.
package widgets

import (
	"bytes"
	_ "embed"

	"github.com/GriffinCanCode/deskwidgets/internal/domain/metadata"
	"github.com/GriffinCanCode/deskwidgets/internal/domain/registry"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

//go:embed catalog.yaml
var Catalog []byte

// Identities of the built-in widget types
var (
	Calendar       = types.MustParseWidgetID("3f0c6e52-1b7a-4d2e-8c41-9a5b6d7e8f01")
	Todo           = types.MustParseWidgetID("5a7e1c93-2d4b-4f6a-9e03-1b2c3d4e5f02")
	Weather        = types.MustParseWidgetID("8b1f7a2e-4c3d-4e5f-9a6b-7c8d9e0f1a03")
	CPUMonitor     = types.MustParseWidgetID("a1c2e3f4-5b6d-4a7e-8f90-1a2b3c4d5e04")
	GPUMonitor     = types.MustParseWidgetID("b2d3f4a5-6c7e-4b8f-9a01-2b3c4d5e6f05")
	MemoryMonitor  = types.MustParseWidgetID("c3e4a5b6-7d8f-4c90-8b12-3c4d5e6f7a06")
	NetworkMonitor = types.MustParseWidgetID("d4f5b6c7-8e90-4da1-9c23-4d5e6f7a8b07")
	DiskMonitor    = types.MustParseWidgetID("e5a6c7d8-9fa1-4eb2-8d34-5e6f7a8b9c08")
	Notes          = types.MustParseWidgetID("f6b7d8e9-a0b2-4fc3-9e45-6f7a8b9c0d09")
	Clipboard      = types.MustParseWidgetID("07c8e9fa-b1c3-4ad4-8f56-7a8b9c0d1e10")
	DevSample      = types.MustParseWidgetID("18d9fa0b-c2d4-4be5-9a67-8b9c0d1e2f11")
)

var defaultStrings = map[string]string{
	"Calendar/Title":    "Calendar",
	"Calendar/Subtitle": "Upcoming events",
	"Todo/Title":        "To Do",
	"Weather/Title":     "Weather",
	"Weather/Subtitle":  "Local forecast",
	"Monitor/Cpu":       "CPU",
	"Monitor/Gpu":       "GPU",
	"Monitor/Memory":    "Memory",
	"Monitor/Network":   "Network",
	"Monitor/Disk":      "Disk",
	"Notes/Title":       "Sticky Notes",
	"Clipboard/Title":   "Clipboard",
}

// Localizer resolves the built-in resource keys to their default strings.
var Localizer = metadata.LocalizerFunc(func(key string) (string, bool) {
	s, ok := defaultStrings[key]
	return s, ok
})

// Descriptors decodes the embedded declaration table
func Descriptors() ([]metadata.Descriptor, error) {
	return registry.LoadDescriptors(bytes.NewReader(Catalog))
}
