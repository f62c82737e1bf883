// Package paths resolves the mosaic configuration and data directories.
//
// Both directories follow the same precedence: an explicit flag, then the
// matching MOSAIC_* environment variable, then a default. The configuration
// directory defaults to the platform location; the data directory defaults
// to .mosaic-db under the working directory so a canvas database travels
// with the project that uses it.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName is the directory created under the platform locations.
const appName = "mosaic"

// Working-directory-relative names.
const (
	DefaultConfigDirName = ".mosaic"
	DefaultDataDirName   = ".mosaic-db"
)

// Environment variable overrides.
const (
	EnvConfigDir = "MOSAIC_CONFIG_DIR"
	EnvDataDir   = "MOSAIC_DATA_DIR"
)

// platformDir is swapped out in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// DefaultConfigDir returns the platform configuration directory:
//
//	Linux:   $XDG_CONFIG_HOME/mosaic, else ~/.config/mosaic
//	macOS:   ~/Library/Application Support/mosaic
//	Windows: %APPDATA%/mosaic
func DefaultConfigDir() (string, error) {
	return platformPath("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform data directory:
//
//	Linux:   $XDG_DATA_HOME/mosaic, else ~/.local/share/mosaic
//	macOS and Windows: the configuration directory
func DefaultDataDir() (string, error) {
	return platformPath("XDG_DATA_HOME", ".local", "share")
}

// platformPath applies the XDG lookup on Linux and os.UserConfigDir
// elsewhere.
func platformPath(xdgVar string, homeRel ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, appName), nil
	}
	if xdg := os.Getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, homeRel...), appName)...), nil
}

// ResolveConfigDir returns the configuration directory:
// flag > MOSAIC_CONFIG_DIR > DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if dir, ok, err := override(flag, EnvConfigDir); ok || err != nil {
		return dir, err
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory:
// flag > data_dir from config.yaml > MOSAIC_DATA_DIR > ./.mosaic-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	if flag == "" {
		flag = configValue
	}
	if dir, ok, err := override(flag, EnvDataDir); ok || err != nil {
		return dir, err
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// override returns the absolute form of explicit, or of the environment
// variable env, reporting whether either was set.
func override(explicit, env string) (string, bool, error) {
	if explicit == "" {
		explicit = os.Getenv(env)
	}
	if explicit == "" {
		return "", false, nil
	}
	abs, err := filepath.Abs(explicit)
	return abs, true, err
}
