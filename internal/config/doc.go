// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/bricks/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/bricks/config.cue on macOS, %APPDATA%\bricks\config.cue
// on Windows), then ./config.cue. An explicit file replaces the lookup. Values may be
// overridden with BRICKS_* environment variables (e.g., BRICKS_ISOLATION,
// BRICKS_CONTAINER_IMAGE).
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations.
package config
