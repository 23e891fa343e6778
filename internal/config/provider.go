// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"path/filepath"
)

type (
	// LoadOptions select where the configuration is read from. The zero
	// value reads config.cue from the platform config directory, falling
	// back to the current directory.
	LoadOptions struct {
		// ConfigFilePath names the file to load. It must exist.
		ConfigFilePath string
		// ConfigDirPath replaces the platform config directory.
		ConfigDirPath string
	}

	// Provider loads the configuration.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	// ProviderFunc adapts a loader that also reports the file it read,
	// such as LoadWithPath, to Provider.
	ProviderFunc func(ctx context.Context, opts LoadOptions) (*Config, string, error)
)

// NewProvider returns the Provider that layers the config file and the
// BRICKS_* environment over the defaults.
func NewProvider() Provider {
	return ProviderFunc(LoadWithPath)
}

// Load calls f and drops the file path.
func (f ProviderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := f(ctx, opts)
	return cfg, err
}

// LoadWithPath loads the configuration and reports the file it was read
// from, empty when no file was found.
func LoadWithPath(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return loadWithOptions(ctx, opts)
}

// defaultFile returns config.cue inside the configured directory.
func (o LoadOptions) defaultFile() (string, error) {
	dir := o.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}
