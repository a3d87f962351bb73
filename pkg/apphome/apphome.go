// Package apphome resolves the orchestrator's filesystem layout: the
// user-home application directory (config/, log/), the application-data
// directory (per-module appdata files and load.cfg), and the data root.
package apphome

import (
	"os"
	"path/filepath"
	"time"
)

// DirName is the directory name used under the user home and under the
// platform application-data location.
const DirName = "labrig"

// UserHomeDir returns "<UserHome>/labrig", creating nothing.
func UserHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), DirName)
	}
	return filepath.Join(home, DirName)
}

// ConfigDir returns "<UserHome>/labrig/config".
func ConfigDir() string {
	return filepath.Join(UserHomeDir(), "config")
}

// LogDir returns "<UserHome>/labrig/log".
func LogDir() string {
	return filepath.Join(UserHomeDir(), "log")
}

// DataDir returns the application-data directory: the same location as
// UserHomeDir by default, since this orchestrator keeps all of its own
// state under one tree rather than splitting to an OS-specific app-data
// path. Kept as its own function so callers express intent (appdata vs.
// config vs. logs) rather than all converging on UserHomeDir.
func DataDir() string {
	return UserHomeDir()
}

// DefaultDataRoot returns "<UserHome>/labrig/Data", the default root for
// experiment data directories (distinct from the application-data
// directory above, which holds orchestrator state, not experiment data).
func DefaultDataRoot() string {
	return filepath.Join(UserHomeDir(), "Data")
}

// DailyDataDir appends a YYYY/MM/YYYY-MM-DD subpath under root for the
// given instant, used when the configuration's daily_data_dirs flag is set.
func DailyDataDir(root string, t time.Time) string {
	return filepath.Join(root,
		t.Format("2006"),
		t.Format("01"),
		t.Format("2006-01-02"),
	)
}

// DefaultConfigPath returns "<UserHome>/labrig/config/default.cfg".
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "default.cfg")
}

// DataAppDefaultConfigPath returns "<DataDir>/default.cfg", the last
// fallback in the config load path-resolution chain.
func DataAppDefaultConfigPath() string {
	return filepath.Join(DataDir(), "default.cfg")
}

func loadCfgPath() string {
	return filepath.Join(DataDir(), "load.cfg")
}

// SavedConfigPath reads the path recorded by the previous session's
// SetSavedConfigPath call. Returns ("", false) if none was ever saved.
func SavedConfigPath() (string, bool) {
	data, err := os.ReadFile(loadCfgPath())
	if err != nil {
		return "", false
	}
	path := string(data)
	if path == "" {
		return "", false
	}
	return path, true
}

// SetSavedConfigPath records path as the default config to load at next
// startup.
func SetSavedConfigPath(path string) error {
	if err := os.MkdirAll(DataDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(loadCfgPath(), []byte(path), 0644)
}

// EnsureLayout creates config/ and log/ under the user-home application
// directory if they do not already exist.
func EnsureLayout() error {
	if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
		return err
	}
	return os.MkdirAll(LogDir(), 0755)
}
