// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/invowk/bricks/internal/protocol"
)

// ExitError carries the process exit code out of a RunE handler. A runnable
// that completed with a non-zero status yields an ExitError without Err.
type ExitError struct {
	Code protocol.ExitCode
	Err  error
	// Reported is set once the failure has been written to stderr, so the
	// error handler stays silent.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %s", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }
