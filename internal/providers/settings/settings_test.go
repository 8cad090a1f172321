package settings

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "abc:IsPinnedDesktop", Key("abc", "IsPinnedDesktop"))
	assert.Equal(t, "abc:view_1:Size", Key("abc", "view_1", "Size"))
	assert.Equal(t, "abc:Size", Key("abc", "", "Size"))
	assert.Equal(t, "Permission.Location", Key("", "Permission.Location"))
}

func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "settings.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"cached": func(t *testing.T) Store { return NewCached(NewMemory()) },
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			ok, err := s.ContainsKey("k")
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = s.Get("k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("k", []byte(`"v1"`)))
			require.NoError(t, s.Set("k", []byte(`"v2"`)))

			v, ok, err := s.Get("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `"v2"`, string(v))

			removed, err := s.Remove("k")
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = s.Remove("k")
			require.NoError(t, err)
			assert.False(t, removed)

			ok, err = s.ContainsKey("k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestTypedValues(t *testing.T) {
	s := NewMemory()

	pos := types.WindowPosition{X: 10, Y: -4}
	require.NoError(t, SetValue(s, "w:Position", pos))

	got, err := GetValue(s, "w:Position", types.WindowPosition{})
	require.NoError(t, err)
	assert.Equal(t, pos, got)

	def, err := GetValue(s, "w:Missing", true)
	require.NoError(t, err)
	assert.True(t, def)

	require.NoError(t, s.Set("w:Bad", []byte("{not json")))
	_, err = GetValue(s, "w:Bad", 0)
	assert.Error(t, err)
}

func TestSQLiteReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, SetValue(s, "w:IsPinnedDesktop", true))
	require.NoError(t, SetValue(s, "w:Size", types.WindowSize{Width: 300, Height: 200}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	pinned, err := GetValue(s, "w:IsPinnedDesktop", false)
	require.NoError(t, err)
	assert.True(t, pinned)

	size, err := GetValue(s, "w:Size", types.WindowSize{})
	require.NoError(t, err)
	assert.Equal(t, types.WindowSize{Width: 300, Height: 200}, size)
}

func TestSQLiteClosedReportsPersistence(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Set("k", []byte("1"))
	assert.ErrorIs(t, err, types.ErrPersistence)
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestWatch(t *testing.T) {
	s := NewMemory()

	var sets, removes atomic.Int32
	cancel := s.Watch(func(c Change) {
		if c.Removed {
			removes.Add(1)
		} else {
			sets.Add(1)
		}
	})

	require.NoError(t, s.Set("a", []byte("1")))
	_, _ = s.Remove("a")
	_, _ = s.Remove("a")
	cancel()
	require.NoError(t, s.Set("b", []byte("1")))

	assert.Equal(t, int32(1), sets.Load())
	assert.Equal(t, int32(1), removes.Load())
}

type failingStore struct {
	*Memory
	fail bool
}

func (f *failingStore) Set(key string, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Set(key, value)
}

func TestCachedEvictsOnFailedWrite(t *testing.T) {
	inner := &failingStore{Memory: NewMemory()}
	c := NewCached(inner)

	require.NoError(t, c.Set("k", []byte("1")))
	inner.fail = true
	assert.Error(t, c.Set("k", []byte("2")))

	v, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", string(v))
}

func TestCachedCachesMisses(t *testing.T) {
	inner := NewMemory()
	c := NewCached(inner)

	_, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	// A write that bypasses the cache is invisible until invalidated.
	require.NoError(t, inner.Set("k", []byte("1")))
	_, ok, _ = c.Get("k")
	assert.False(t, ok)

	c.Invalidate()
	_, ok, _ = c.Get("k")
	assert.True(t, ok)
}
