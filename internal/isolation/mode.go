// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ModeInProcess runs the runnable in the host process.
	ModeInProcess Mode = "in-process"
	// ModeAnonymousPipes runs the runnable in a child process connected by pipes.
	ModeAnonymousPipes Mode = "anonymous-pipes"
	// ModeDocker runs the runnable in a Linux container.
	ModeDocker Mode = "docker"
	// ModeWindowsContainer runs the runnable in a Windows container.
	ModeWindowsContainer Mode = "windows-container"
)

// ErrInvalidMode is the sentinel error wrapped by InvalidModeError.
var ErrInvalidMode = errors.New("invalid isolation mode")

type (
	// Mode is one of the closed set of isolation strategies.
	Mode string

	// InvalidModeError is returned when a Mode value is not recognized.
	InvalidModeError struct {
		Value Mode
	}
)

// Error implements the error interface.
func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid isolation mode %q (valid: %s)", e.Value, strings.Join(modeNames(), ", "))
}

// Unwrap returns ErrInvalidMode so callers can use errors.Is for programmatic detection.
func (e *InvalidModeError) Unwrap() error { return ErrInvalidMode }

// AllModes returns every mode in presentation order.
func AllModes() []Mode {
	return []Mode{ModeInProcess, ModeAnonymousPipes, ModeDocker, ModeWindowsContainer}
}

func modeNames() []string {
	names := make([]string, 0, 4)
	for _, m := range AllModes() {
		names = append(names, string(m))
	}
	return names
}

// String returns the canonical mode name.
func (m Mode) String() string { return string(m) }

// Validate returns nil if the Mode is one of the defined modes.
func (m Mode) Validate() error {
	switch m {
	case ModeInProcess, ModeAnonymousPipes, ModeDocker, ModeWindowsContainer:
		return nil
	default:
		return &InvalidModeError{Value: m}
	}
}

// IsProcessBacked reports whether the worker runs outside the host process.
func (m Mode) IsProcessBacked() bool {
	return m != ModeInProcess
}

// IsContainer reports whether the worker runs in a container.
func (m Mode) IsContainer() bool {
	return m == ModeDocker || m == ModeWindowsContainer
}

// ParseMode accepts the canonical names as well as the CamelCase names
// (InProcess, AnonymousPipes, Docker, WindowsContainer), case-insensitively.
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)

	switch key {
	case "inprocess":
		return ModeInProcess, nil
	case "anonymouspipes", "pipes":
		return ModeAnonymousPipes, nil
	case "docker":
		return ModeDocker, nil
	case "windowscontainer", "windows":
		return ModeWindowsContainer, nil
	default:
		return "", &InvalidModeError{Value: Mode(s)}
	}
}
