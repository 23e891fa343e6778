// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"strings"

	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/protocol"
)

type (
	// Chunk is one output write of the runnable.
	Chunk struct {
		Stream protocol.Stream
		Data   []byte
	}

	// Result is the outcome of one execution. On error it holds whatever
	// was observed before the failure.
	Result struct {
		Runnable string
		Mode     isolation.Mode
		// ExitCode is the runnable's exit status from the Completed message.
		ExitCode protocol.ExitCode
		// Output holds every chunk in arrival order.
		Output []Chunk
		// WorkerID is the id of the worker handle, empty if none was created.
		WorkerID string
		// WorkerExitCode is the exit code of the worker, valid when WorkerExited.
		WorkerExitCode protocol.ExitCode
		WorkerExited   bool
	}
)

// Stdout returns the concatenated standard output.
func (r *Result) Stdout() string { return r.stream(protocol.StreamStdout) }

// Stderr returns the concatenated standard error.
func (r *Result) Stderr() string { return r.stream(protocol.StreamStderr) }

func (r *Result) stream(s protocol.Stream) string {
	var b strings.Builder
	for _, c := range r.Output {
		if c.Stream == s {
			b.Write(c.Data)
		}
	}
	return b.String()
}
