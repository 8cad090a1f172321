package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/deskwidgets/internal/domain/metadata"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

const (
	idA = "00000000-0000-4000-8000-00000000000a"
	idB = "00000000-0000-4000-8000-00000000000b"
	idC = "00000000-0000-4000-8000-00000000000c"
)

func desc(typ, id string, extra ...string) metadata.Descriptor {
	tags := map[string]string{metadata.TagIdentity: id}
	for i := 0; i+1 < len(extra); i += 2 {
		tags[extra[i]] = extra[i+1]
	}
	return metadata.Descriptor{Type: typ, Tags: tags}
}

func build(descs []metadata.Descriptor, opts Options) *Registry {
	return Build(descs, metadata.NewExtractor(nil, nil, nil), opts)
}

func TestBuildOrdersByIdentity(t *testing.T) {
	r := build([]metadata.Descriptor{
		desc("w.c", idC),
		desc("w.a", idA),
		desc("w.b", idB),
	}, Options{})

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "w.a", all[0].Type)
	assert.Equal(t, "w.b", all[1].Type)
	assert.Equal(t, "w.c", all[2].Type)
	assert.Empty(t, r.Rejections())
}

func TestBuildRejections(t *testing.T) {
	r := build([]metadata.Descriptor{
		desc("w.a", idA),
		desc("w.dup-id", idA),
		desc("w.a", idB),
		desc("w.none", ""),
		desc("w.bad", "zzz"),
		desc("", idC),
		desc("w.dev", idC, metadata.TagDeveloperOnly, "true"),
	}, Options{})

	assert.Equal(t, 1, r.Len())
	reasons := []string{}
	for _, rej := range r.Rejections() {
		reasons = append(reasons, rej.Reason)
	}
	assert.Equal(t, []string{
		ReasonDuplicateIdentity,
		ReasonDuplicateType,
		ReasonEmptyIdentity,
		ReasonEmptyIdentity,
		ReasonEmptyType,
		ReasonDeveloperOnly,
	}, reasons)

	// The first declaration of an identity wins.
	m, ok := r.Lookup(types.MustParseWidgetID(idA))
	require.True(t, ok)
	assert.Equal(t, "w.a", m.Type)
}

func TestBuildIncludeDeveloper(t *testing.T) {
	r := build([]metadata.Descriptor{
		desc("w.dev", idC, metadata.TagDeveloperOnly, "true"),
	}, Options{IncludeDeveloper: true})

	_, ok := r.LookupType("w.dev")
	assert.True(t, ok)
}

func TestLookups(t *testing.T) {
	r := build([]metadata.Descriptor{
		desc("w.a", idA, metadata.TagPermissions, "Location:fine,Notes"),
	}, Options{})
	id := types.MustParseWidgetID(idA)

	m, ok := r.LookupType("w.a")
	require.True(t, ok)
	assert.Equal(t, id, m.ID)

	_, ok = r.LookupType("w.missing")
	assert.False(t, ok)
	_, ok = r.Lookup(types.MustParseWidgetID(idB))
	assert.False(t, ok)

	assert.Equal(t, types.LevelFine, r.LevelFor(types.WidgetSubject(id), types.ScopeLocation))
	assert.Equal(t, types.LevelCoarse, r.LevelFor(types.WidgetSubject(id), types.ScopeNotes))
	assert.Equal(t, types.LevelCoarse, r.LevelFor(types.GlobalSubject(), types.ScopeLocation))
}

func TestAllReturnsCopy(t *testing.T) {
	r := build([]metadata.Descriptor{desc("w.a", idA)}, Options{})

	all := r.All()
	all[0].Type = "mutated"
	assert.Equal(t, "w.a", r.All()[0].Type)
}

func TestStats(t *testing.T) {
	r := build([]metadata.Descriptor{
		desc("w.a", idA, metadata.TagPermissions, "Notes", metadata.TagMultiView, "true"),
		desc("w.b", idB, metadata.TagPermissions, "Notes,Location", metadata.TagRequiresNetwork, "true"),
		desc("w.b", idC),
	}, Options{})

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalWidgets)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 2, stats.ByScope[types.ScopeNotes])
	assert.Equal(t, 1, stats.ByScope[types.ScopeLocation])
	assert.Equal(t, 1, stats.MultiView)
	assert.Equal(t, 1, stats.Network)
}

func TestLoadDescriptors(t *testing.T) {
	descs, err := LoadDescriptors(strings.NewReader(`
widgets:
  - type: w.a
    tags:
      identity: "` + idA + `"
      permissions: "Notes"
  - type: w.b
    tags:
      identity: "` + idB + `"
`))
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "w.a", descs[0].Type)
	assert.Equal(t, "Notes", descs[0].Tags[metadata.TagPermissions])
}

func TestLoadDescriptorsErrors(t *testing.T) {
	_, err := LoadDescriptors(strings.NewReader("widgets: [\n"))
	assert.Error(t, err)

	_, err = LoadDescriptors(strings.NewReader("widget:\n  - type: w.a\n"))
	assert.Error(t, err, "unknown top-level field")

	descs, err := LoadDescriptors(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestSeed(t *testing.T) {
	r, err := Seed(strings.NewReader("widgets:\n  - type: w.a\n    tags:\n      identity: \""+idA+"\"\n"),
		metadata.NewExtractor(nil, nil, nil), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}
