// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/invowk/bricks/pkg/platform"
)

// SetConfigHome points os.UserConfigDir at dir for the rest of the test.
// Like t.Setenv, it must not be used in parallel tests.
func SetConfigHome(t testing.TB, dir string) {
	t.Helper()

	switch runtime.GOOS {
	case platform.Windows:
		t.Setenv("APPDATA", dir)
	case platform.Darwin:
		t.Setenv("HOME", dir)
	default:
		t.Setenv("XDG_CONFIG_HOME", dir)
	}
}

// ConfigHome returns the directory os.UserConfigDir reports after
// SetConfigHome(t, dir).
func ConfigHome(dir string) string {
	if runtime.GOOS == platform.Darwin {
		return filepath.Join(dir, "Library", "Application Support")
	}
	return dir
}
