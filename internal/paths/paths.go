// Package paths decides where strata keeps its configuration and data. Every
// location can be forced by flag or environment; otherwise platform
// conventions apply (XDG on Linux, the user config root elsewhere).
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// Directory names used relative to the working directory when nothing else
// names a location.
const (
	DefaultConfigDirName = ".strata"
	DefaultDataDirName   = ".strata-db"
)

// Environment overrides honored by the resolvers.
const (
	EnvConfigDir = "STRATA_CONFIG_DIR"
	EnvDataDir   = "STRATA_DATA_DIR"
)

// appDirName is the directory created under each platform root.
const appDirName = "strata"

// DefaultConfigDir returns the per-user configuration directory:
// $XDG_CONFIG_HOME/strata (or ~/.config/strata) on Linux, the user config
// root (~/Library/Application Support, %APPDATA%) elsewhere.
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	return userConfigRoot()
}

// DefaultDataDir returns the per-user data directory: $XDG_DATA_HOME/strata
// (or ~/.local/share/strata) on Linux, the user config root elsewhere.
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
	return userConfigRoot()
}

// xdgDir resolves a Linux directory from its XDG variable, falling back to
// the conventional dotted path under the home directory.
func xdgDir(env, fallback string) (string, error) {
	if root := os.Getenv(env); root != "" {
		return filepath.Join(root, appDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appDirName), nil
}

// userConfigRoot appends the app directory to the platform's user config
// root. macOS and Windows keep data next to configuration.
func userConfigRoot() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, appDirName), nil
}

// ResolveConfigDir picks the configuration directory: explicit flag, then the
// STRATA_CONFIG_DIR environment variable, then the platform default. Flag and
// environment values are made absolute.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the data directory: explicit flag, then the config
// file value, then the STRATA_DATA_DIR environment variable, then
// DefaultDataDirName under the working directory.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, dir := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}
