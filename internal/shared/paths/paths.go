package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "deskwidgets"

// File names within the data directory
const (
	SettingsFile = "settings.db"
	LockFile     = "instance.lock"
	ConfigFile   = "config.toml"
)

// Layout resolves every on-disk location the host uses.
type Layout struct {
	// DataDir holds persisted settings and the instance lock.
	DataDir string
	// Instance distinguishes side-by-side hosts (for example a dev build).
	Instance string
}

// Default returns the layout rooted at the XDG data home.
func Default(instance string) Layout {
	return Layout{
		DataDir:  filepath.Join(xdg.DataHome, AppName),
		Instance: instance,
	}
}

// New returns a layout rooted at dataDir, falling back to Default when empty.
func New(dataDir, instance string) Layout {
	if dataDir == "" {
		return Default(instance)
	}
	return Layout{DataDir: dataDir, Instance: instance}
}

// Ensure creates the data directory
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// SettingsPath returns the SQLite settings database path
func (l Layout) SettingsPath() string {
	return filepath.Join(l.DataDir, SettingsFile)
}

// LockPath returns the single-instance lock file path
func (l Layout) LockPath() string {
	return filepath.Join(l.DataDir, l.suffixed(LockFile))
}

// ConfigPath returns the default config file path
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, ConfigFile)
}

// ChannelAddress returns the command channel endpoint.
// On Windows this is a named pipe; elsewhere a unix socket in the runtime dir.
// Unix socket paths are limited to about 104 bytes, so the name is hashed
// from the data dir rather than nested under it.
func (l Layout) ChannelAddress() string {
	sum := sha256.Sum256([]byte(l.DataDir + "|" + l.Instance))
	tag := hex.EncodeToString(sum[:])[:12]
	if runtime.GOOS == "windows" {
		return `\\.\pipe\` + AppName + "-" + tag
	}
	dir := xdg.RuntimeDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName+"-"+tag+".sock")
}

func (l Layout) suffixed(name string) string {
	if l.Instance == "" {
		return name
	}
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)] + "-" + l.Instance + ext
}
