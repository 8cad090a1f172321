package paths

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "")

	assert.Equal(t, filepath.Join(dir, "settings.db"), l.SettingsPath())
	assert.Equal(t, filepath.Join(dir, "instance.lock"), l.LockPath())
	require.NoError(t, l.Ensure())
}

func TestInstanceSuffix(t *testing.T) {
	l := New("/data", "dev")
	assert.Equal(t, filepath.Join("/data", "instance-dev.lock"), l.LockPath())
}

func TestChannelAddressDiffersPerInstance(t *testing.T) {
	a := New("/data", "").ChannelAddress()
	b := New("/data", "dev").ChannelAddress()
	c := New("/data", "").ChannelAddress()

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
	if runtime.GOOS != "windows" {
		assert.True(t, strings.HasSuffix(a, ".sock"))
		assert.Less(t, len(filepath.Base(a)), 40)
	}
}

func TestNewFallsBackToDefault(t *testing.T) {
	l := New("", "x")
	assert.True(t, strings.HasSuffix(l.DataDir, AppName))
	assert.Equal(t, "x", l.Instance)
}
