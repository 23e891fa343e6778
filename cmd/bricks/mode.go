// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/pkg/platform"
)

var modeSummaries = map[isolation.Mode]string{
	isolation.ModeInProcess:        "runs inside the bricks process",
	isolation.ModeAnonymousPipes:   "runs in a child process connected by anonymous pipes",
	isolation.ModeDocker:           "runs in a Linux container",
	isolation.ModeWindowsContainer: "runs in a Windows container",
}

func (a *App) newModeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "List the isolation modes and show the configured one",
		Long: `List the isolation modes. The configured mode is used by 'bricks run'
unless --isolation is given; set it with the isolation key of the
configuration file or the BRICKS_ISOLATION environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.mode(cmd.Context())
		},
	}
}

func (a *App) mode(ctx context.Context) error {
	cfg, _, err := a.load(ctx)
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return a.report(err)
	}
	set := a.newSet(cfg, catalog, a.logger(), a.stderr)
	current := cfg.DefaultMode()

	fmt.Fprintln(a.stdout, titleStyle.Render("Isolation modes"))
	fmt.Fprintln(a.stdout)
	for _, m := range set.Modes() {
		marker := "  "
		if m == current {
			marker = activeMarkerStyle.Render("* ")
		}
		fmt.Fprintf(a.stdout, "%s%s %s\n", marker, idStyle.Render(fmt.Sprintf("%-18s", m)), mutedStyle.Render(modeSummaries[m]))
	}

	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "%s %s\n", mutedStyle.Render("Configured:"), idStyle.Render(current.String()))
	if hint := platform.EngineHint(platform.DetectSandbox()); hint != "" {
		fmt.Fprintln(a.stdout, warnStyle.Render("Note: ")+hint)
	}
	return nil
}
