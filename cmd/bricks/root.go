// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the bricks CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/invowk/bricks/internal/config"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/issue"
	"github.com/invowk/bricks/internal/runnable"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// ConfigLoader loads the configuration and reports the file it was read
	// from, empty when only defaults and environment applied.
	ConfigLoader func(ctx context.Context, opts config.LoadOptions) (*config.Config, string, error)

	// SetBuilder builds the isolation strategies for one command invocation.
	SetBuilder func(cfg *config.Config, catalog *runnable.Catalog, logger *log.Logger, stderr io.Writer) *isolation.Set

	// App wires the CLI commands to their collaborators. One App serves one
	// command line.
	App struct {
		loadConfig ConfigLoader
		newSet     SetBuilder
		stdout     io.Writer
		stderr     io.Writer

		verbose bool
		cfgFile string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		LoadConfig ConfigLoader
		NewSet     SetBuilder
		Stdout     io.Writer
		Stderr     io.Writer
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.LoadConfig == nil {
		deps.LoadConfig = config.LoadWithPath
	}
	if deps.NewSet == nil {
		deps.NewSet = DefaultSet
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	return &App{
		loadConfig: deps.LoadConfig,
		newSet:     deps.NewSet,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
}

// DefaultSet builds one strategy per isolation mode from the configuration.
func DefaultSet(cfg *config.Config, catalog *runnable.Catalog, logger *log.Logger, stderr io.Writer) *isolation.Set {
	opts := cfg.SetOptions()
	opts.Catalog = catalog
	opts.Logger = logger
	opts.Stderr = stderr
	return isolation.NewDefaultSet(opts)
}

// Execute runs the host CLI with args (without the program name) and
// returns the process exit code.
func Execute(args []string) int {
	return NewApp(Dependencies{}).Execute(context.Background(), args)
}

// Execute runs the command tree with args and returns the process exit code.
func (a *App) Execute(ctx context.Context, args []string) int {
	root := a.newRootCommand()
	root.SetArgs(args)

	err := fang.Execute(
		ctx,
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			var exitErr *ExitError
			if errors.As(err, &exitErr) && exitErr.Reported {
				return
			}
			fang.DefaultErrorHandler(w, styles, err)
		}),
	)
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.Code)
	}
	return 1
}

func (a *App) newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bricks",
		Short: "Run packaged runnables in isolated workers",
		Long: titleStyle.Render("bricks") + mutedStyle.Render(" - Run packaged runnables in isolated workers") + `

bricks executes runnables either inside its own process or in a worker
it launches for the occasion: a child process connected by anonymous
pipes, a Linux container or a Windows container. Output, faults and exit
status travel back over a framed channel, so every isolation mode
behaves the same.

` + mutedStyle.Render("Examples:") + `
  bricks list                                  List the installed runnables
  bricks run demo.hello                        Run a runnable in the configured mode
  bricks run formatter.uppercase --isolation anonymous-pipes a b
  bricks mode                                  Show the isolation modes
  bricks config init                           Write a default configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/bricks/config.cue)")

	rootCmd.AddCommand(a.newRunCommand())
	rootCmd.AddCommand(a.newListCommand())
	rootCmd.AddCommand(a.newModeCommand())
	rootCmd.AddCommand(a.newConfigCommand())

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: a.cfgFile}
}

// load reads the configuration. The ui.verbose setting applies when the
// flag was not given.
func (a *App) load(ctx context.Context) (*config.Config, string, error) {
	cfg, path, err := a.loadConfig(ctx, a.loadOptions())
	if err != nil {
		return nil, "", a.report(err)
	}
	if !a.verbose {
		a.verbose = cfg.UI.Verbose
	}
	return cfg, path, nil
}

// logger writes diagnostics to stderr, at debug level in verbose mode.
func (a *App) logger() *log.Logger {
	level := log.WarnLevel
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix: "bricks",
		Level:  level,
	})
}

// report writes err to stderr and returns an ExitError that fang will not
// print again.
func (a *App) report(err error) error {
	fmt.Fprintln(a.stderr, infraHeaderStyle.Render("Error: ")+formatErrorForDisplay(err, a.verbose))
	a.renderDetails(err)
	return &ExitError{Code: exitFailure, Err: err, Reported: true}
}

// renderDetails prints the issue explaining err in verbose mode.
func (a *App) renderDetails(err error) {
	if !a.verbose {
		return
	}
	details := issue.Get(issue.IssueOf(err))
	if details == nil {
		return
	}
	rendered, rerr := details.Render("dark")
	if rerr != nil {
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
