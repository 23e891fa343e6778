// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *App) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the installed runnables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.list(cmd.Context())
		},
	}
}

func (a *App) list(ctx context.Context) error {
	cfg, _, err := a.load(ctx)
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return a.report(err)
	}

	descs := catalog.List()
	fmt.Fprintln(a.stdout, titleStyle.Render("Runnables"))
	fmt.Fprintln(a.stdout)

	width := 0
	for _, d := range descs {
		width = max(width, len(d.ID))
	}
	for _, d := range descs {
		line := fmt.Sprintf("  %s  %s", idStyle.Render(d.ID+strings.Repeat(" ", width-len(d.ID))), d.DisplayName())
		if a.verbose {
			line += verboseStyle.Render(fmt.Sprintf(" [%s]", d.Kind))
		}
		fmt.Fprintln(a.stdout, line)
		if d.Description != "" {
			fmt.Fprintln(a.stdout, "  "+strings.Repeat(" ", width+2)+mutedStyle.Render(d.Description))
		}
	}

	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "%s %s\n", mutedStyle.Render("Default isolation:"), idStyle.Render(cfg.DefaultMode().String()))
	return nil
}
