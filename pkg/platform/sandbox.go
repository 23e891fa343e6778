// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"os"
	"sync"
)

// Sandbox names the application sandbox the process runs in. Sandboxed
// processes usually cannot reach the host's container engine socket.
type Sandbox string

const (
	// NoSandbox means the process runs directly on the host.
	NoSandbox Sandbox = ""
	// Flatpak is detected through /.flatpak-info.
	Flatpak Sandbox = "flatpak"
	// Snap is detected through $SNAP_NAME.
	Snap Sandbox = "snap"
)

// current must not panic: sync.OnceValue would repeat the panic on every call.
var current = sync.OnceValue(func() Sandbox {
	return detect(os.Getenv, func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
})

// DetectSandbox returns the sandbox of the current process. The result is
// computed once.
func DetectSandbox() Sandbox { return current() }

// EngineHint tells the user how to reach the container engine from inside
// s, or returns "" on the host.
func EngineHint(s Sandbox) string {
	switch s {
	case Flatpak:
		return "bricks runs inside Flatpak; grant socket access with 'flatpak override --filesystem=/run/docker.sock' or set container.host"
	case Snap:
		return "bricks runs inside Snap; connect the docker interface with 'snap connect bricks:docker' or set container.host"
	default:
		return ""
	}
}

// detect checks Flatpak first: its marker file exists in every Flatpak
// sandbox, while SNAP_NAME may leak in through the environment.
func detect(getenv func(string) string, exists func(string) bool) Sandbox {
	switch {
	case exists("/.flatpak-info"):
		return Flatpak
	case getenv("SNAP_NAME") != "":
		return Snap
	default:
		return NoSandbox
	}
}
