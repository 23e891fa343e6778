// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"errors"
	"fmt"

	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/protocol"
)

var (
	// ErrLaunch is matched by LaunchError.
	ErrLaunch = errors.New("launch failed")
	// ErrTransport is matched by TransportError.
	ErrTransport = errors.New("transport failed")
	// ErrProtocolViolation is matched by ProtocolViolationError.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrRemoteFault is matched by RemoteFault.
	ErrRemoteFault = errors.New("runnable failed")
	// ErrCancelled is matched by CancelledError.
	ErrCancelled = errors.New("execution cancelled")
)

type (
	// LaunchError is returned when no worker could be created.
	LaunchError struct {
		Runnable string
		Mode     isolation.Mode
		Err      error
	}

	// TransportError is returned when the channel failed before a terminal
	// message arrived.
	TransportError struct {
		Runnable string
		Mode     isolation.Mode
		Err      error
	}

	// ProtocolViolationError is returned when the worker sent a malformed or
	// unexpected message.
	ProtocolViolationError struct {
		Runnable string
		Mode     isolation.Mode
		Reason   string
		Err      error
	}

	// RemoteFault is returned when the runnable itself failed.
	RemoteFault struct {
		Runnable    string
		Kind        protocol.FaultKind
		Description string
	}

	// CancelledError is returned when the caller cancelled the execution.
	// It wraps the context error.
	CancelledError struct {
		Runnable string
		Err      error
	}
)

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch %q in %s mode: %v", e.Runnable, e.Mode, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LaunchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrLaunch.
func (e *LaunchError) Is(target error) bool { return target == ErrLaunch }

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("lost connection to %q worker (%s): %v", e.Runnable, e.Mode, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Error implements the error interface.
func (e *ProtocolViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%q worker (%s) broke the protocol: %s: %v", e.Runnable, e.Mode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%q worker (%s) broke the protocol: %s", e.Runnable, e.Mode, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ProtocolViolationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrProtocolViolation.
func (e *ProtocolViolationError) Is(target error) bool { return target == ErrProtocolViolation }

// Error implements the error interface.
func (e *RemoteFault) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", e.Runnable, e.Kind, e.Description)
}

// Is reports whether target is ErrRemoteFault.
func (e *RemoteFault) Is(target error) bool { return target == ErrRemoteFault }

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s cancelled: %v", e.Runnable, e.Err)
}

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCancelled.
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// IsInfrastructure reports whether err is a failure of the execution
// context rather than of the runnable. It is false for nil and RemoteFault.
func IsInfrastructure(err error) bool {
	return err != nil && !errors.Is(err, ErrRemoteFault)
}
