// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/invowk/bricks/internal/container"
	"github.com/invowk/bricks/internal/dispatch"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/issue"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
	"github.com/invowk/bricks/pkg/platform"
)

const (
	exitFailure   protocol.ExitCode = 1
	exitCancelled protocol.ExitCode = 130
)

// explainRunError turns an infrastructure failure of an execution into an
// actionable error. The most specific cause wins.
func explainRunError(desc runnable.Descriptor, mode isolation.Mode, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation(fmt.Sprintf("run %s (%s)", desc.ID, mode)).
		Wrap(err)

	var imgErr *container.ImageNotFoundError
	switch {
	case errors.As(err, &imgErr):
		ctx.WithResource(imgErr.Image).
			WithSuggestion(fmt.Sprintf("Pull the image with 'docker pull %s'", imgErr.Image)).
			WithSuggestion("Or point container.image at an image that exists locally").
			WithIssue(issue.ImageNotFoundId)

	case errors.Is(err, dispatch.ErrLaunch) && mode.IsContainer() && container.IsEngineUnavailable(err):
		ctx.WithSuggestion("Start the Docker daemon, or set container.host to a reachable engine").
			WithSuggestion("Use --isolation anonymous-pipes to run without a container")
		if hint := platform.EngineHint(platform.DetectSandbox()); hint != "" {
			ctx.WithSuggestion(hint)
		}
		ctx.WithIssue(issue.ContainerEngineNotFoundId)

	case errors.Is(err, isolation.ErrUnsupportedMode):
		ctx.WithSuggestion("Run 'bricks mode' to list the available isolation modes").
			WithIssue(issue.InvalidIsolationModeId)

	case errors.Is(err, dispatch.ErrLaunch):
		ctx.WithSuggestion("Run again with --verbose to see the worker diagnostics").
			WithSuggestion("Check worker.executable if the bricks binary was moved").
			WithIssue(issue.WorkerLaunchFailedId)

	case errors.Is(err, dispatch.ErrProtocolViolation):
		ctx.WithSuggestion("Make sure worker.executable and the image's worker are the same bricks version").
			WithIssue(issue.ProtocolViolationId)

	case errors.Is(err, dispatch.ErrTransport):
		ctx.WithSuggestion("The worker exited before reporting a result; run again with --verbose").
			WithIssue(issue.WorkerDisconnectedId)

	case errors.Is(err, dispatch.ErrCancelled):
		ctx.WithIssue(issue.ExecutionCancelledId)

	case errors.Is(err, runnable.ErrInvalidDescriptor):
		ctx.WithResource(desc.ID).
			WithSuggestion("Check the runnable's entry in the configuration").
			WithIssue(issue.RunnableNotFoundId)
	}

	return ctx.BuildError()
}
