// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// ExitCode is a worker or runnable exit status in 0-255. Besides the status
// a runnable completed with, a worker process exits with one of the
// reserved codes below.
type ExitCode int

const (
	// ExitSuccess means the runnable completed successfully.
	ExitSuccess ExitCode = 0
	// ExitFault is the exit code of a worker that sent a Fault.
	ExitFault ExitCode = 70
	// ExitProtocolViolation is the exit code of a worker that received an
	// unexpected message, a malformed frame or malformed launch parameters.
	ExitProtocolViolation ExitCode = 76
	// ExitTerminated is the exit code of a worker stopped before it could
	// send a terminal message, and the code the host records for workers it
	// killed.
	ExitTerminated ExitCode = 137
)

// ErrInvalidExitCode is returned by Validate for codes outside 0-255.
var ErrInvalidExitCode = errors.New("invalid exit code")

// Validate checks that c fits a process exit status.
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return fmt.Errorf("%w %d: must be in range 0-255", ErrInvalidExitCode, int(c))
	}
	return nil
}

// IsSuccess reports whether c is ExitSuccess.
func (c ExitCode) IsSuccess() bool { return c == ExitSuccess }

// IsReserved reports whether c is one of the worker's own exit codes.
func (c ExitCode) IsReserved() bool { return c.Meaning() != "" && c != ExitSuccess }

// Meaning names what a worker exiting with c reports, or "" for codes that
// only carry a runnable's status.
func (c ExitCode) Meaning() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitFault:
		return "fault"
	case ExitProtocolViolation:
		return "protocol violation"
	case ExitTerminated:
		return "terminated"
	default:
		return ""
	}
}

func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
