package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds all the path configurations for camflow.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/camflow)
	ConfigDir string

	// DataDir is the directory for data files such as the metrics
	// database and capture recordings (~/.local/share/camflow)
	DataDir string
}

// DefaultPaths returns the default paths based on XDG Base Directory spec.
// On Windows, it uses %APPDATA% instead. CAMFLOW_HOME collapses everything
// into a single directory, which keeps throwaway deployments tidy.
func DefaultPaths() *Paths {
	if home := os.Getenv("CAMFLOW_HOME"); home != "" {
		return &Paths{
			ConfigDir: home,
			DataDir:   home,
		}
	}

	home := homeDir()

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}

		return &Paths{
			ConfigDir: filepath.Join(appData, "camflow"),
			DataDir:   filepath.Join(localAppData, "camflow"),
		}
	}

	// Unix-like systems follow XDG Base Directory spec
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}

	return &Paths{
		ConfigDir: filepath.Join(configHome, "camflow"),
		DataDir:   filepath.Join(dataHome, "camflow"),
	}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// DatabaseFile returns the path to the SQLite metrics database.
func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir, "camflow.db")
}

// EnsureDirectories creates all necessary directories.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.ConfigDir,
		p.DataDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback
		if runtime.GOOS == "windows" {
			return os.Getenv("USERPROFILE")
		}
		return os.Getenv("HOME")
	}
	return home
}
