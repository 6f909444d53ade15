package config

import (
	"os"
	"path/filepath"
)

// host is the part of the environment DefaultDataDir looks at.
type host struct {
	getenv func(string) string
	home   func() (string, error)
	isDir  func(string) bool
}

var osHost = host{getenv: os.Getenv, home: os.UserHomeDir, isDir: isDir}

// DefaultDataDir returns the data directory used when none is configured.
// COURIER_DATA_DIR wins, then $XDG_DATA_HOME/courier, then the platform
// location (/var/lib, ~/Library/Application Support, ~/AppData/Local), then
// ~/.courier. Without a home directory it is ./data.
func DefaultDataDir() string { return osHost.dataDir() }

func (h host) dataDir() string {
	if v := h.getenv(EnvPrefix + "DATA_DIR"); v != "" {
		return v
	}
	home, err := h.home()
	if err != nil || home == "" {
		return "./data"
	}
	if xdg := h.getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "courier")
	}
	switch {
	case h.isDir("/var/lib"):
		return "/var/lib/courier"
	case h.isDir(filepath.Join(home, "Library")):
		return filepath.Join(home, "Library", "Application Support", "Courier")
	case h.isDir(filepath.Join(home, "AppData")):
		return filepath.Join(home, "AppData", "Local", "Courier")
	}
	return filepath.Join(home, ".courier")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
