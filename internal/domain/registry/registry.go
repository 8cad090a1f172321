package registry

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/domain/metadata"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Rejection reasons
const (
	ReasonEmptyIdentity     = "empty_identity"
	ReasonEmptyType         = "empty_type"
	ReasonDuplicateIdentity = "duplicate_identity"
	ReasonDuplicateType     = "duplicate_type"
	ReasonDeveloperOnly     = "developer_only"
)

// Extractor turns one declaration into metadata
type Extractor interface {
	Extract(d metadata.Descriptor) types.WidgetMetadata
}

// Options controls registry construction
type Options struct {
	// IncludeDeveloper admits developer-only widget types.
	IncludeDeveloper bool
	Logger           *zap.Logger
}

// Registry is the read-only catalogue of widget types, built once at startup.
// All methods are safe for concurrent use because nothing mutates after Build.
type Registry struct {
	byID       map[types.WidgetID]types.WidgetMetadata
	byType     map[string]types.WidgetID
	ordered    []types.WidgetMetadata
	rejections []types.Rejection
}

// Build extracts every descriptor once and admits the valid ones. Rejected
// declarations are logged and kept for diagnostics; the first declaration of
// an identity or type name wins.
func Build(descriptors []metadata.Descriptor, extractor Extractor, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("registry")

	r := &Registry{
		byID:   make(map[types.WidgetID]types.WidgetMetadata, len(descriptors)),
		byType: make(map[string]types.WidgetID, len(descriptors)),
	}

	for _, d := range descriptors {
		m := extractor.Extract(d)

		reason := ""
		switch {
		case m.ID.IsZero():
			reason = ReasonEmptyIdentity
		case m.Type == "":
			reason = ReasonEmptyType
		case r.has(m.ID):
			reason = ReasonDuplicateIdentity
		case r.hasType(m.Type):
			reason = ReasonDuplicateType
		case m.DeveloperOnly && !opts.IncludeDeveloper:
			reason = ReasonDeveloperOnly
		}

		if reason != "" {
			rej := types.Rejection{Type: d.Type, Reason: reason}
			if !m.ID.IsZero() {
				rej.ID = m.ID.String()
			}
			r.rejections = append(r.rejections, rej)
			log.Warn("widget declaration rejected",
				zap.String("type", d.Type),
				zap.String("reason", reason),
				zap.String("identity", rej.ID))
			continue
		}

		r.byID[m.ID] = m
		r.byType[m.Type] = m.ID
		r.ordered = append(r.ordered, m)
	}

	sortMetadata(r.ordered)
	log.Info("registry built",
		zap.Int("widgets", len(r.ordered)),
		zap.Int("rejected", len(r.rejections)))
	return r
}

func (r *Registry) has(id types.WidgetID) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) hasType(name string) bool {
	_, ok := r.byType[name]
	return ok
}

// Lookup returns the metadata for an identity
func (r *Registry) Lookup(id types.WidgetID) (types.WidgetMetadata, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// LookupType returns the metadata for a runtime type name
func (r *Registry) LookupType(name string) (types.WidgetMetadata, bool) {
	id, ok := r.byType[name]
	if !ok {
		return types.WidgetMetadata{}, false
	}
	return r.byID[id], true
}

// All returns every registered widget in identity order
func (r *Registry) All() []types.WidgetMetadata {
	out := make([]types.WidgetMetadata, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of registered widgets
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Rejections returns the declarations refused at build time
func (r *Registry) Rejections() []types.Rejection {
	out := make([]types.Rejection, len(r.rejections))
	copy(out, r.rejections)
	return out
}

// LevelFor returns the access tier to record for a subject/scope pair.
// Global subjects and undeclared scopes are coarse.
func (r *Registry) LevelFor(subject types.Subject, scope types.Scope) types.PermissionLevel {
	id, ok := subject.Widget()
	if !ok {
		return types.LevelCoarse
	}
	m, ok := r.byID[id]
	if !ok {
		return types.LevelCoarse
	}
	return m.LevelFor(scope)
}

// Stats returns registry statistics
func (r *Registry) Stats() types.RegistryStats {
	stats := types.RegistryStats{
		TotalWidgets: len(r.ordered),
		Rejected:     len(r.rejections),
		ByScope:      make(map[types.Scope]int),
	}
	for _, m := range r.ordered {
		for _, s := range m.Scopes {
			stats.ByScope[s]++
		}
		if m.MultiView {
			stats.MultiView++
		}
		if m.RequiresNetwork {
			stats.Network++
		}
	}
	return stats
}

// LogSummary writes one line per registered widget at debug level
func (r *Registry) LogSummary(log *zap.Logger) {
	for _, m := range r.ordered {
		log.Debug("widget registered",
			logging.Widget(m.ID),
			zap.String("type", m.Type),
			zap.Int("scopes", len(m.Scopes)),
			zap.Bool("multi_view", m.MultiView))
	}
}

func sortMetadata(ms []types.WidgetMetadata) {
	ids := make([]types.WidgetID, len(ms))
	byID := make(map[types.WidgetID]types.WidgetMetadata, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
		byID[m.ID] = m
	}
	types.SortWidgetIDs(ids)
	for i, id := range ids {
		ms[i] = byID[id]
	}
}
