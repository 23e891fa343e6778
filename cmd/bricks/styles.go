// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Palette for dark terminal backgrounds.
var (
	purple = lipgloss.Color("#7C3AED")
	gray   = lipgloss.Color("#6B7280")
	silver = lipgloss.Color("#9CA3AF")
	green  = lipgloss.Color("#10B981")
	red    = lipgloss.Color("#EF4444")
	amber  = lipgloss.Color("#F59E0B")
	blue   = lipgloss.Color("#3B82F6")
)

// Styles by role. lipgloss drops the colors when the output is not a
// terminal, so tests and pipes see plain text.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(purple)
	mutedStyle   = lipgloss.NewStyle().Foreground(gray)
	verboseStyle = lipgloss.NewStyle().Foreground(silver)
	okStyle      = lipgloss.NewStyle().Foreground(green)
	warnStyle    = lipgloss.NewStyle().Foreground(amber)
	// idStyle renders runnable ids, mode names and configuration keys.
	idStyle = lipgloss.NewStyle().Foreground(blue)

	// faultHeaderStyle marks a runnable that failed on its own.
	faultHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(amber)
	// infraHeaderStyle marks a failure of the execution environment.
	infraHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(red)
	// activeMarkerStyle marks the configured isolation mode.
	activeMarkerStyle = lipgloss.NewStyle().Bold(true).Foreground(green)
)
