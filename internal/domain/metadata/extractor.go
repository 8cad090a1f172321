package metadata

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

// Tag keys understood by the extractor
const (
	TagIdentity        = "identity"
	TagPermissions     = "permissions"
	TagRequiresNetwork = "requires_network"
	TagIcon            = "icon"
	TagTitle           = "title"
	TagSubtitle        = "subtitle"
	TagStoreProduct    = "store_product"
	TagDeveloperOnly   = "developer_only"
	TagMultiView       = "multi_view"
)

// ResourcePrefix marks a title or subtitle as a localization resource key.
const ResourcePrefix = "res:"

// DefaultIconURI is used when a widget declares no usable icon.
const DefaultIconURI = "res://deskwidgets/icons/default.svg"

// Descriptor is one row of the static declaration table.
type Descriptor struct {
	Type string            `yaml:"type" json:"type"`
	Tags map[string]string `yaml:"tags" json:"tags"`
}

// Localizer resolves resource keys to display strings.
type Localizer interface {
	Lookup(key string) (string, bool)
}

// LocalizerFunc adapts a function to Localizer
type LocalizerFunc func(key string) (string, bool)

// Lookup calls f
func (f LocalizerFunc) Lookup(key string) (string, bool) { return f(key) }

// Extractor turns descriptors into widget metadata. Malformed fields degrade
// to defaults and are logged; extraction itself never fails.
type Extractor struct {
	log  *zap.Logger
	loc  Localizer
	pins types.PinReader
}

// NewExtractor creates an extractor. loc and pins may be nil.
func NewExtractor(log *zap.Logger, loc Localizer, pins types.PinReader) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{log: log.Named("metadata"), loc: loc, pins: pins}
}

// Extract builds the metadata for one descriptor. The same descriptor always
// produces the same metadata.
func (e *Extractor) Extract(d Descriptor) types.WidgetMetadata {
	m := types.WidgetMetadata{
		Type: d.Type,
		Icon: DefaultIconURI,
	}
	log := e.log.With(zap.String("type", d.Type))

	e.guard(log, TagIdentity, func() { m.ID = e.identity(log, d) })
	e.guard(log, TagPermissions, func() { m.Scopes, m.Levels = e.scopes(log, d) })
	e.guard(log, TagRequiresNetwork, func() { m.RequiresNetwork = e.flag(log, d, TagRequiresNetwork) })
	e.guard(log, TagDeveloperOnly, func() { m.DeveloperOnly = e.flag(log, d, TagDeveloperOnly) })
	e.guard(log, TagMultiView, func() { m.MultiView = e.flag(log, d, TagMultiView) })
	e.guard(log, TagIcon, func() { m.Icon = e.icon(log, d) })
	e.guard(log, TagTitle, func() { m.Title = e.text(log, d, TagTitle) })
	e.guard(log, TagSubtitle, func() { m.Subtitle = e.text(log, d, TagSubtitle) })
	e.guard(log, TagStoreProduct, func() { m.StoreProduct = strings.TrimSpace(d.Tags[TagStoreProduct]) })

	if m.Levels == nil {
		m.Levels = map[types.Scope]types.PermissionLevel{}
	}
	if m.Scopes == nil {
		m.Scopes = []types.Scope{}
	}
	return m.WithPins(e.pins)
}

// guard runs one field extraction, logging instead of propagating a panic.
// The field keeps whatever default it held before fn ran.
func (e *Extractor) guard(log *zap.Logger, field string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("field extraction panicked",
				zap.String("field", field),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

func (e *Extractor) identity(log *zap.Logger, d Descriptor) types.WidgetID {
	raw, ok := d.Tags[TagIdentity]
	if !ok || strings.TrimSpace(raw) == "" {
		return types.WidgetID{}
	}
	id, err := types.ParseWidgetID(raw)
	if err != nil {
		log.Warn("invalid identity", zap.String("value", raw), zap.Error(err))
		return types.WidgetID{}
	}
	return id
}

func (e *Extractor) scopes(log *zap.Logger, d Descriptor) ([]types.Scope, map[types.Scope]types.PermissionLevel) {
	raw := d.Tags[TagPermissions]
	scopes := []types.Scope{}
	levels := map[types.Scope]types.PermissionLevel{}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, suffix, hasLevel := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if err := utils.ValidateScope(name); err != nil {
			log.Warn("skipping invalid scope", zap.String("value", entry), zap.Error(err))
			continue
		}

		level := types.LevelCoarse
		if hasLevel {
			parsed, err := types.ParsePermissionLevel(suffix)
			if err != nil {
				log.Warn("unknown scope level, using coarse", zap.String("value", entry))
			}
			level = parsed
		}

		scope := types.Scope(name)
		if prev, seen := levels[scope]; seen {
			if level > prev {
				levels[scope] = level
			}
			continue
		}
		scopes = append(scopes, scope)
		levels[scope] = level
	}
	return scopes, levels
}

func (e *Extractor) flag(log *zap.Logger, d Descriptor, tag string) bool {
	raw, ok := d.Tags[tag]
	if !ok || strings.TrimSpace(raw) == "" {
		return false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		log.Warn("malformed boolean tag", zap.String("tag", tag), zap.String("value", raw))
		return false
	}
	return v
}

func (e *Extractor) icon(log *zap.Logger, d Descriptor) string {
	raw, ok := d.Tags[TagIcon]
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return DefaultIconURI
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		log.Warn("icon is not an absolute URI, using default", zap.String("value", raw))
		return DefaultIconURI
	}
	return raw
}

func (e *Extractor) text(log *zap.Logger, d Descriptor, tag string) *string {
	raw, ok := d.Tags[tag]
	if !ok {
		return nil
	}
	key, isResource := strings.CutPrefix(raw, ResourcePrefix)
	if !isResource {
		return &raw
	}
	if e.loc != nil {
		if s, found := e.loc.Lookup(key); found {
			return &s
		}
	}
	log.Warn("missing localized resource, using key", zap.String("tag", tag), zap.String("key", key))
	return &key
}
