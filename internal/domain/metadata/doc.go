// Package metadata reads widget declarations into types.WidgetMetadata.
//
// A Descriptor is a runtime type name plus a flat tag map. Extraction is
// total: every malformed field falls back to a documented default and is
// logged, so one bad row never blocks the rest of the catalogue.
package metadata
