// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// GOOS values compared against runtime.GOOS and container platforms.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// ExecutableName returns the file name of the program name on goos: Windows
// binaries carry the .exe suffix, others are used as is.
func ExecutableName(name, goos string) string {
	if goos == Windows && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}
