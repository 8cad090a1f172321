// Package paths resolves the host's on-disk layout.
//
// Settings and the instance lock live under the XDG data home; the command
// channel lives in the XDG runtime dir (or a named pipe on Windows).
//
//	$XDG_DATA_HOME/deskwidgets/
//	  ├── settings.db
//	  └── instance.lock
//	$XDG_RUNTIME_DIR/deskwidgets-<tag>.sock
//
// # Usage
//
//	layout := paths.New(cfg.Host.DataDir, cfg.Host.Instance)
//	if err := layout.Ensure(); err != nil {
//	    return err
//	}
//	db := layout.SettingsPath()
package paths
