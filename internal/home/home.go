package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the talespin home directory.
	DefaultDirName = ".talespin"

	// DataDirName is the subdirectory for persisted stories and settings.
	DataDirName = "data"

	// AssetsDirName is the subdirectory for generated audio and images.
	AssetsDirName = "assets"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// EnvFileName is the optional dotenv file loaded before config.
	EnvFileName = ".env"
)

// Dir represents the talespin home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.talespin).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// AssetsPath returns the root of the local asset sink.
func (d *Dir) AssetsPath() string {
	return filepath.Join(d.path, AssetsDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnvPath returns the path to the optional .env file.
func (d *Dir) EnvPath() string {
	return filepath.Join(d.path, EnvFileName)
}

// StoriesPath returns the file holding all stored stories.
func (d *Dir) StoriesPath() string {
	return filepath.Join(d.DataPath(), "stories.json")
}

// SettingsPath returns the file holding user preferences and prompt overrides.
func (d *Dir) SettingsPath() string {
	return filepath.Join(d.DataPath(), "settings.json")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Creating data also creates the parent
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(d.AssetsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create assets directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// EnvExists returns true if a .env file exists in the home directory.
func (d *Dir) EnvExists() bool {
	_, err := os.Stat(d.EnvPath())
	return err == nil
}
