// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"errors"
	"fmt"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

var (
	// ErrLaunch is the sentinel error wrapped by LaunchError.
	ErrLaunch = errors.New("worker launch failed")
	// ErrUnsupportedMode is returned by Set.Get for a mode without a strategy.
	ErrUnsupportedMode = errors.New("isolation mode not available")
)

type (
	// Strategy creates and releases workers for one isolation mode.
	Strategy interface {
		// Mode returns the isolation mode this strategy implements.
		Mode() Mode
		// Prepare starts a worker for desc and returns its handle together with
		// the host end of the channel. On failure it returns a *LaunchError and
		// has released everything it acquired.
		Prepare(ctx context.Context, desc runnable.Descriptor) (WorkerHandle, channel.Channel, error)
		// Dispose releases the worker. It kills the worker if it is still
		// running and waits for it to be reaped. It does not close the channel.
		Dispose(ctx context.Context, handle WorkerHandle) error
	}

	// WorkerHandle is a running (or finished) worker owned by the strategy
	// that created it.
	WorkerHandle interface {
		// ID is the process id or container id of the worker.
		ID() string
		// Wait blocks until the worker exits or ctx is done.
		Wait(ctx context.Context) (protocol.ExitCode, error)
		// Exited reports whether the worker has already exited.
		Exited() bool
		// Kill forcibly terminates the worker.
		Kill() error
	}

	// LaunchError is returned when a worker could not be created.
	LaunchError struct {
		Mode     Mode
		Runnable string
		Err      error
	}
)

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q (%s): %v", e.Runnable, e.Mode, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LaunchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrLaunch.
func (e *LaunchError) Is(target error) bool { return target == ErrLaunch }

func newLaunchError(mode Mode, desc runnable.Descriptor, err error) *LaunchError {
	return &LaunchError{Mode: mode, Runnable: desc.ID, Err: err}
}
