// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invowk/bricks/internal/container"
	"github.com/invowk/bricks/internal/dispatch"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/runnable"
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidRunnableEntry is the sentinel error wrapped by InvalidRunnableEntryError.
	ErrInvalidRunnableEntry = errors.New("invalid runnable entry")
	// ErrInvalidGracePeriod is returned when the grace period is not positive.
	ErrInvalidGracePeriod = errors.New("invalid grace period")
)

type (
	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// InvalidRunnableEntryError is returned when a RunnableEntry has invalid fields.
	InvalidRunnableEntryError struct {
		ID          string
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Isolation is the default isolation mode.
		Isolation isolation.Mode `json:"isolation" mapstructure:"isolation"`
		// GracePeriod bounds how long a worker may take to exit on its own.
		GracePeriod time.Duration `json:"grace_period" mapstructure:"grace_period"`
		// Worker configures the process-backed workers.
		Worker WorkerConfig `json:"worker" mapstructure:"worker"`
		// Container configures the container-backed workers.
		Container ContainerConfig `json:"container" mapstructure:"container"`
		// Runnables declares script runnables.
		Runnables []RunnableEntry `json:"runnables" mapstructure:"runnables"`
		// UI configures the user interface
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// WorkerConfig configures how workers are spawned.
	WorkerConfig struct {
		// Executable overrides the binary spawned as worker (default: os.Executable()).
		Executable string `json:"executable" mapstructure:"executable"`
	}

	// ContainerConfig configures the docker and windows-container modes.
	ContainerConfig struct {
		Image            string              `json:"image" mapstructure:"image"`
		WindowsImage     string              `json:"windows_image" mapstructure:"windows_image"`
		WindowsIsolation container.Isolation `json:"windows_isolation" mapstructure:"windows_isolation"`
		// Host is the engine address; empty means DOCKER_HOST or the platform default.
		Host              string `json:"host" mapstructure:"host"`
		WorkerPath        string `json:"worker_path" mapstructure:"worker_path"`
		WindowsWorkerPath string `json:"windows_worker_path" mapstructure:"windows_worker_path"`
		// MountExecutable bind-mounts the host binary into the container.
		MountExecutable bool `json:"mount_executable" mapstructure:"mount_executable"`
	}

	// RunnableEntry declares a script runnable.
	RunnableEntry struct {
		ID          string   `json:"id" mapstructure:"id"`
		Name        string   `json:"name,omitempty" mapstructure:"name"`
		Description string   `json:"description,omitempty" mapstructure:"description"`
		Script      string   `json:"script" mapstructure:"script"`
		Args        []string `json:"args,omitempty" mapstructure:"args"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// Descriptor returns the runnable descriptor declared by the entry.
func (e RunnableEntry) Descriptor() runnable.Descriptor {
	return runnable.Descriptor{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Kind:        runnable.KindScript,
		Location:    e.Script,
		Args:        e.Args,
	}
}

// IsValid returns whether the entry describes a runnable whose script parses.
func (e RunnableEntry) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(e.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if strings.TrimSpace(e.Script) == "" {
		errs = append(errs, errors.New("script must not be empty"))
	} else if _, err := runnable.ScriptEntrypoint(e.ID, e.Script); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidRunnableEntryError{ID: e.ID, FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidRunnableEntryError.
func (e *InvalidRunnableEntryError) Error() string {
	return fmt.Sprintf("invalid runnable entry %q: %v", e.ID, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidRunnableEntry and the field errors for errors.Is() compatibility.
func (e *InvalidRunnableEntryError) Unwrap() []error {
	return append([]error{ErrInvalidRunnableEntry}, e.FieldErrors...)
}

// IsValid returns whether the Config has valid fields. An empty isolation
// mode is valid and means in-process.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if c.Isolation != "" {
		if err := c.Isolation.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidGracePeriod, c.GracePeriod))
	}
	if err := c.Container.WindowsIsolation.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, entry := range c.Runnables {
		if valid, fieldErrs := entry.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig and the field errors for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultMode returns the configured isolation mode, in-process when unset.
func (c *Config) DefaultMode() isolation.Mode {
	if c.Isolation == "" {
		return isolation.ModeInProcess
	}
	return c.Isolation
}

// Catalog returns a catalog holding the builtin runnables and the
// configured script runnables.
func (c *Config) Catalog() (*runnable.Catalog, error) {
	catalog := runnable.DefaultCatalog()
	for _, entry := range c.Runnables {
		if err := catalog.Add(entry.Descriptor()); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// SetOptions maps the configuration onto the strategy options. Catalog,
// logger and stderr are left to the caller.
func (c *Config) SetOptions() isolation.SetOptions {
	dockerMount, windowsMount := c.Container.MountExecutable, c.Container.MountExecutable
	return isolation.SetOptions{
		Pipes: isolation.PipeOptions{
			Executable: c.Worker.Executable,
		},
		Docker: isolation.ContainerOptions{
			Image:           c.Container.Image,
			WorkerPath:      c.Container.WorkerPath,
			MountExecutable: &dockerMount,
			Executable:      c.Worker.Executable,
			Host:            c.Container.Host,
		},
		Windows: isolation.ContainerOptions{
			Image:           c.Container.WindowsImage,
			WorkerPath:      c.Container.WindowsWorkerPath,
			MountExecutable: &windowsMount,
			Executable:      c.Worker.Executable,
			Isolation:       c.Container.WindowsIsolation,
			Host:            c.Container.Host,
		},
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Isolation:   isolation.ModeInProcess,
		GracePeriod: dispatch.DefaultGracePeriod,
		Worker:      WorkerConfig{},
		Container: ContainerConfig{
			Image:             isolation.DefaultDockerImage,
			WindowsImage:      isolation.DefaultWindowsImage,
			WindowsIsolation:  container.IsolationProcess,
			WorkerPath:        isolation.DefaultDockerWorkerPath,
			WindowsWorkerPath: isolation.DefaultWindowsWorkerPath,
			MountExecutable:   true,
		},
		Runnables: []RunnableEntry{},
		UI: UIConfig{
			Verbose: false,
		},
	}
}
