// Package registry provides the catalogue of widget types.
//
// The registry is built once from a static declaration table and never
// changes afterwards. Declarations with an empty or duplicate identity, a
// duplicate type name, or a developer-only flag (outside developer mode)
// are skipped and reported through Rejections.
//
// Components:
//   - Registry: read-only lookups by identity and type name
//   - Seeder: decodes a YAML declaration table into descriptors
//
// Example Usage:
//
//	reg, err := registry.Seed(bytes.NewReader(widgets.Catalog), extractor, registry.Options{})
//	meta, ok := reg.Lookup(id)
//	for _, m := range reg.All() {
//	    // identity order
//	}
package registry
