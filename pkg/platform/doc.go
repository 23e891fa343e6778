// SPDX-License-Identifier: MPL-2.0

// Package platform holds the small amount of OS knowledge bricks needs: GOOS
// names, executable file names, and detection of application sandboxes
// (Flatpak, Snap) that usually cannot reach the host's container engine.
package platform
