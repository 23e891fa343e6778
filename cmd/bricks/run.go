// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/bricks/internal/dispatch"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/issue"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

func (a *App) newRunCommand() *cobra.Command {
	var mode string

	runCmd := &cobra.Command{
		Use:   "run <runnable-id> [args...]",
		Short: "Run a runnable",
		Long: `Run a runnable in the configured isolation mode, or in the mode given
with --isolation. Arguments after the id replace the runnable's default
arguments. The exit status of the runnable becomes the exit status of bricks.`,
		Example: `  bricks run demo.hello
  bricks run formatter.uppercase a b c
  bricks run demo.sleep --isolation docker 3s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0], args[1:], mode)
		},
	}
	runCmd.Flags().StringVarP(&mode, "isolation", "i", "", "isolation mode (in-process, anonymous-pipes, docker, windows-container)")
	runCmd.Flags().SetInterspersed(false)
	_ = runCmd.RegisterFlagCompletionFunc("isolation", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, 0, len(isolation.AllModes()))
		for _, m := range isolation.AllModes() {
			names = append(names, m.String())
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})

	return runCmd
}

func (a *App) run(ctx context.Context, id string, args []string, modeFlag string) error {
	cfg, _, err := a.load(ctx)
	if err != nil {
		return err
	}

	mode := cfg.DefaultMode()
	if modeFlag != "" {
		if mode, err = isolation.ParseMode(modeFlag); err != nil {
			return a.report(issue.NewErrorContext().
				WithOperation("select isolation mode").
				WithResource(modeFlag).
				WithSuggestion("Run 'bricks mode' to list the isolation modes").
				WithIssue(issue.InvalidIsolationModeId).
				Wrap(err).
				BuildError())
		}
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return a.report(err)
	}
	desc, err := catalog.Lookup(id)
	if err != nil {
		return a.report(issue.NewErrorContext().
			WithOperation("find runnable").
			WithResource(id).
			WithSuggestion("Run 'bricks list' to see the installed runnables").
			WithIssue(issue.RunnableNotFoundId).
			Wrap(err).
			BuildError())
	}
	if len(args) > 0 {
		desc.Args = args
	}

	logger := a.logger()
	d := dispatch.New(dispatch.Options{
		Strategies:  a.newSet(cfg, catalog, logger, a.stderr),
		DefaultMode: mode,
		Stdout:      a.stdout,
		Stderr:      a.stderr,
		GracePeriod: cfg.GracePeriod,
		Logger:      logger,
	})

	result, err := d.RunDefault(ctx, desc)
	if err != nil {
		return a.reportRunError(desc, mode, err)
	}

	logger.Debug("runnable completed", "runnable", desc.ID, "mode", mode, "exit_code", result.ExitCode)
	if result.ExitCode.IsReserved() {
		logger.Debug("exit status collides with a reserved worker code", "exit_code", result.ExitCode, "reserved_for", result.ExitCode.Meaning())
	}
	if !result.ExitCode.IsSuccess() {
		return &ExitError{Code: result.ExitCode, Reported: true}
	}
	return nil
}

// reportRunError writes a failed execution to stderr. A runnable that failed
// on its own is reported as such; every other failure is explained with the
// matching issue.
func (a *App) reportRunError(desc runnable.Descriptor, mode isolation.Mode, err error) error {
	var fault *dispatch.RemoteFault
	if errors.As(err, &fault) {
		fmt.Fprintf(a.stderr, "%s %s\n",
			faultHeaderStyle.Render(desc.ID+" failed:"),
			fault.Description)
		if a.verbose {
			fmt.Fprintln(a.stderr, verboseStyle.Render(fmt.Sprintf("  fault kind: %s, mode: %s", fault.Kind, mode)))
		}
		return &ExitError{Code: protocol.ExitFault, Err: err, Reported: true}
	}

	reported := a.report(explainRunError(desc, mode, err))
	var exitErr *ExitError
	if errors.As(reported, &exitErr) {
		exitErr.Code = runErrorExitCode(err)
	}
	return reported
}

func runErrorExitCode(err error) protocol.ExitCode {
	switch {
	case errors.Is(err, dispatch.ErrCancelled):
		return exitCancelled
	case errors.Is(err, dispatch.ErrProtocolViolation):
		return protocol.ExitProtocolViolation
	default:
		return exitFailure
	}
}
