// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/invowk/bricks/internal/config"
)

// newConfigCommand creates the `bricks config` command tree.
func (a *App) newConfigCommand() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bricks configuration",
		Long: `Manage bricks configuration.

Configuration is stored in:
  - Linux: ~/.config/bricks/config.cue
  - macOS: ~/Library/Application Support/bricks/config.cue
  - Windows: %APPDATA%\bricks\config.cue

Every key can be overridden with a BRICKS_* environment variable, for
example BRICKS_ISOLATION=docker or BRICKS_CONTAINER_IMAGE=alpine:3.20.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.showConfig(cmd.Context())
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.showConfigPath()
		},
	})

	return cfgCmd
}

func (a *App) showConfig(ctx context.Context) error {
	cfg, path, err := a.load(ctx)
	if err != nil {
		return err
	}

	keyStyle := idStyle
	valueStyle := okStyle
	field := func(key, value string) {
		if value == "" {
			value = mutedStyle.Render("(unset)")
		} else {
			value = valueStyle.Render(value)
		}
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render(key), value)
	}

	fmt.Fprintln(a.stdout, titleStyle.Render("Current Configuration"))
	fmt.Fprintln(a.stdout)
	if path != "" {
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render("Config file"), mutedStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(a.stdout)

	field("isolation", cfg.DefaultMode().String())
	field("grace_period", cfg.GracePeriod.String())
	field("worker.executable", cfg.Worker.Executable)

	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, mutedStyle.Render("Containers"))
	field("container.image", cfg.Container.Image)
	field("container.windows_image", cfg.Container.WindowsImage)
	field("container.windows_isolation", cfg.Container.WindowsIsolation.String())
	field("container.host", cfg.Container.Host)
	field("container.worker_path", cfg.Container.WorkerPath)
	field("container.windows_worker_path", cfg.Container.WindowsWorkerPath)
	field("container.mount_executable", strconv.FormatBool(cfg.Container.MountExecutable))

	fmt.Fprintln(a.stdout)
	field("runnables", strconv.Itoa(len(cfg.Runnables)))
	field("ui.verbose", strconv.FormatBool(cfg.UI.Verbose))
	return nil
}

func (a *App) initConfig() error {
	path, created, err := config.CreateDefaultConfig(a.loadOptions())
	if err != nil {
		return a.report(err)
	}
	if !created {
		fmt.Fprintf(a.stdout, "%s %s\n", warnStyle.Render("Config file already exists:"), path)
		return nil
	}
	fmt.Fprintf(a.stdout, "%s %s\n", okStyle.Render("Created config file:"), path)
	return nil
}

func (a *App) showConfigPath() error {
	path, exists, err := config.FilePath(a.loadOptions())
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.stdout, path)
	if !exists && a.verbose {
		fmt.Fprintln(a.stderr, verboseStyle.Render("(file does not exist, defaults apply)"))
	}
	return nil
}
