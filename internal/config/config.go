// Package config resolves the application's on-disk layout (state file,
// logs, lock file) and the persisted user Settings, grounded on the
// teacher's internal/config.GetSurgeDir/EnsureDirs/LoadSettings/SaveSettings
// usage across cmd/root.go, cmd/lock.go and cmd/utils.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/briskdl/engine/internal/applog"
)

const appDirName = "briskdl"

// dirOverride lets tests point the whole package at a scratch directory.
var dirOverride string

// SetDirOverride forces AppDir to return dir instead of the OS default.
// Test-only.
func SetDirOverride(dir string) { dirOverride = dir }

// AppDir returns the root directory under which state, logs, and the lock
// file live, creating nothing itself.
func AppDir() string {
	if dirOverride != "" {
		return dirOverride
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// GetLogsDir returns AppDir()/logs.
func GetLogsDir() string { return filepath.Join(AppDir(), "logs") }

// StatePath returns the path to the single JSON state file (§4.6).
func StatePath() string { return filepath.Join(AppDir(), "downloads.json") }

// LockPath returns the path to the single-instance lock file.
func LockPath() string { return filepath.Join(AppDir(), "briskdl.lock") }

// SettingsPath returns the path to the persisted Settings file.
func SettingsPath() string { return filepath.Join(AppDir(), "settings.json") }

// EnsureDirs creates AppDir and its logs subdirectory if missing, and wires
// applog's default logs directory to GetLogsDir.
func EnsureDirs() error {
	applog.SetDefaultLogsDirFunc(GetLogsDir)
	if err := os.MkdirAll(GetLogsDir(), 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	return nil
}

// Settings is the user-editable configuration persisted across runs: the
// default download folder, connection/bandwidth defaults applied to new
// downloads, and the HTTP User-Agent. LoadSettings fills a zero connection
// count or empty user agent with the package defaults.
type Settings struct {
	DefaultDownloadDir  string `json:"default_download_dir"`
	MaxConnections      int    `json:"max_connections"`
	SpeedLimitBytesPerS int64  `json:"speed_limit_bytes_per_s"` // 0 = unlimited
	UserAgent           string `json:"user_agent,omitempty"`
}

// DefaultSettings returns the built-in defaults used when no settings file
// exists yet.
func DefaultSettings() Settings {
	home, err := os.UserHomeDir()
	dir := "."
	if err == nil {
		dir = filepath.Join(home, "Downloads")
	}
	return Settings{
		DefaultDownloadDir:  dir,
		MaxConnections:      DefaultMaxConnectionsPerHost,
		SpeedLimitBytesPerS: 0,
		UserAgent:           DefaultUserAgent,
	}
}

// LoadSettings reads Settings from SettingsPath, returning DefaultSettings
// when the file does not exist.
func LoadSettings() (Settings, error) {
	data, err := os.ReadFile(SettingsPath())
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if s.MaxConnections <= 0 {
		s.MaxConnections = DefaultMaxConnectionsPerHost
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	return s, nil
}

// SaveSettings writes s to SettingsPath via a temp-file-then-rename so a
// crash mid-write never corrupts the previous settings.
func SaveSettings(s Settings) error {
	if err := EnsureDirs(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tmp := SettingsPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings temp file: %w", err)
	}
	if err := os.Rename(tmp, SettingsPath()); err != nil {
		return fmt.Errorf("rename settings file: %w", err)
	}
	return nil
}
