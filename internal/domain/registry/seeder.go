package registry

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/deskwidgets/internal/domain/metadata"
)

// Catalog is the on-disk shape of a declaration table.
type Catalog struct {
	Widgets []metadata.Descriptor `yaml:"widgets"`
}

// LoadDescriptors decodes a YAML declaration table. Unknown top-level or
// row fields are rejected so typos surface at build time.
func LoadDescriptors(r io.Reader) ([]metadata.Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read widget catalog: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var catalog Catalog
	if err := yaml.UnmarshalWithOptions(data, &catalog, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("decode widget catalog: %w", err)
	}
	return catalog.Widgets, nil
}

// LoadDescriptorsFile reads a declaration table from path
func LoadDescriptorsFile(path string) ([]metadata.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read widget catalog: %w", err)
	}
	return LoadDescriptors(bytes.NewReader(data))
}

// Seed decodes a declaration table and builds the registry from it
func Seed(r io.Reader, extractor Extractor, opts Options) (*Registry, error) {
	descriptors, err := LoadDescriptors(r)
	if err != nil {
		return nil, err
	}
	return Build(descriptors, extractor, opts), nil
}
