package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func fakeHost(env map[string]string, home string, dirs ...string) host {
	set := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		set[d] = true
	}
	return host{
		getenv: func(k string) string { return env[k] },
		home: func() (string, error) {
			if home == "" {
				return "", errors.New("no home")
			}
			return home, nil
		},
		isDir: func(p string) bool { return set[p] },
	}
}

func TestDataDirResolution(t *testing.T) {
	home := filepath.FromSlash("/home/u")
	tests := []struct {
		name     string
		h        host
		expected string
	}{
		{
			name:     "explicit override",
			h:        fakeHost(map[string]string{"COURIER_DATA_DIR": "/srv/courier", "XDG_DATA_HOME": "/x"}, home, "/var/lib"),
			expected: "/srv/courier",
		},
		{
			name:     "no home directory",
			h:        fakeHost(nil, ""),
			expected: "./data",
		},
		{
			name:     "XDG_DATA_HOME",
			h:        fakeHost(map[string]string{"XDG_DATA_HOME": "/custom/data"}, home, "/var/lib"),
			expected: filepath.Join("/custom/data", "courier"),
		},
		{
			name:     "linux system dir",
			h:        fakeHost(nil, home, "/var/lib"),
			expected: "/var/lib/courier",
		},
		{
			name:     "macOS",
			h:        fakeHost(nil, home, filepath.Join(home, "Library")),
			expected: filepath.Join(home, "Library", "Application Support", "Courier"),
		},
		{
			name:     "windows",
			h:        fakeHost(nil, home, filepath.Join(home, "AppData")),
			expected: filepath.Join(home, "AppData", "Local", "Courier"),
		},
		{
			name:     "dotdir fallback",
			h:        fakeHost(nil, home),
			expected: filepath.Join(home, ".courier"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.h.dataDir(); got != tt.expected {
				t.Errorf("dataDir() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestDefaultDataDirEnvOverride(t *testing.T) {
	t.Setenv("COURIER_DATA_DIR", "/tmp/courier-override")
	if got := DefaultDataDir(); got != "/tmp/courier-override" {
		t.Fatalf("expected override, got %s", got)
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !isDir(dir) {
		t.Errorf("expected %s to be a directory", dir)
	}
	if isDir(file) {
		t.Errorf("expected %s not to be a directory", file)
	}
	if isDir(filepath.Join(dir, "missing")) {
		t.Error("expected missing path not to be a directory")
	}
}
