package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPathsXDG(t *testing.T) {
	t.Setenv("CAMFLOW_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	paths := DefaultPaths()

	if paths.ConfigDir != filepath.Join("/tmp/xdg-config", "camflow") {
		t.Errorf("Unexpected config dir: %s", paths.ConfigDir)
	}
	if paths.DataDir != filepath.Join("/tmp/xdg-data", "camflow") {
		t.Errorf("Unexpected data dir: %s", paths.DataDir)
	}
	if !strings.HasSuffix(paths.ConfigFile(), "config.yaml") {
		t.Errorf("Unexpected config file: %s", paths.ConfigFile())
	}
	if !strings.HasSuffix(paths.DatabaseFile(), "camflow.db") {
		t.Errorf("Unexpected database file: %s", paths.DatabaseFile())
	}
}

func TestDefaultPathsCamflowHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAMFLOW_HOME", dir)

	paths := DefaultPaths()

	if paths.ConfigDir != dir || paths.DataDir != dir {
		t.Errorf("Expected all paths under %s, got config=%s data=%s", dir, paths.ConfigDir, paths.DataDir)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	paths := &Paths{
		ConfigDir: filepath.Join(dir, "config"),
		DataDir:   filepath.Join(dir, "data"),
	}

	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, d := range []string{paths.ConfigDir, paths.DataDir} {
		if !dirExists(t, d) {
			t.Errorf("Expected directory to exist: %s", d)
		}
	}
}

func dirExists(t *testing.T, path string) bool {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
