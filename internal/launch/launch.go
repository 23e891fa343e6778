// SPDX-License-Identifier: MPL-2.0

// Package launch decides, once at process start, whether the process is the
// host or a worker, and reconstructs the worker side of the channel from the
// parameters passed on the command line.
package launch

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/invowk/bricks/internal/channel"
)

const (
	// WorkerMarker is the first argument of every worker command line.
	// It is not a valid runnable id or subcommand, so a host invocation
	// can never be mistaken for a worker.
	WorkerMarker = "__bricks-worker"

	// RoleHost is the role of a process started by a user.
	RoleHost Role = "host"
	// RoleWorker is the role of a process started by an isolation strategy.
	RoleWorker Role = "worker"

	// TransportPipe passes inherited pipe descriptors: "pipe <read-fd> <write-fd>".
	TransportPipe Transport = "pipe"
	// TransportStdio uses the process's standard input and output.
	TransportStdio Transport = "stdio"

	// ChildReadFD is the descriptor number of the first ExtraFiles entry.
	ChildReadFD uintptr = 3
	// ChildWriteFD is the descriptor number of the second ExtraFiles entry.
	ChildWriteFD uintptr = 4
)

// ErrInvalidParams is the sentinel error wrapped by InvalidParamsError.
var ErrInvalidParams = errors.New("invalid worker parameters")

type (
	// Role is the role of the current process.
	Role string

	// Transport selects how a worker reaches its host.
	Transport string

	// Params are the channel parameters of a worker.
	Params struct {
		Transport Transport
		ReadFD    uintptr
		WriteFD   uintptr
	}

	// Context is the result of classifying the process arguments.
	// It is computed once and never mutated.
	Context struct {
		// Args are the raw process arguments (without the program name).
		Args []string
		Role Role
		// Params are set for RoleWorker when ParamsErr is nil.
		Params Params
		// ParamsErr is set when the worker marker was present but the
		// parameters after it were malformed.
		ParamsErr error
	}

	// InvalidParamsError is returned when worker parameters cannot be parsed.
	InvalidParamsError struct {
		Args   []string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid worker parameters %q: %s", e.Args, e.Reason)
}

// Unwrap returns ErrInvalidParams so callers can use errors.Is for programmatic detection.
func (e *InvalidParamsError) Unwrap() error { return ErrInvalidParams }

// String returns the role name.
func (r Role) String() string { return string(r) }

// String returns the transport name.
func (t Transport) String() string { return string(t) }

// Classify inspects the process arguments. It performs no I/O.
func Classify(args []string) Context {
	lc := Context{Args: args, Role: RoleHost}
	if len(args) == 0 || args[0] != WorkerMarker {
		return lc
	}

	lc.Role = RoleWorker
	lc.Params, lc.ParamsErr = ParseParams(args[1:])
	return lc
}

// IsWorker reports whether the process was started as a worker.
func (c Context) IsWorker() bool { return c.Role == RoleWorker }

// ParseParams parses the arguments that follow the worker marker.
func ParseParams(args []string) (Params, error) {
	if len(args) == 0 {
		return Params{}, &InvalidParamsError{Args: args, Reason: "missing transport"}
	}

	switch Transport(args[0]) {
	case TransportStdio:
		if len(args) != 1 {
			return Params{}, &InvalidParamsError{Args: args, Reason: "stdio takes no arguments"}
		}
		return Params{Transport: TransportStdio}, nil
	case TransportPipe:
		if len(args) != 3 {
			return Params{}, &InvalidParamsError{Args: args, Reason: "pipe needs a read and a write descriptor"}
		}
		readFD, err := parseFD(args[1])
		if err != nil {
			return Params{}, &InvalidParamsError{Args: args, Reason: err.Error()}
		}
		writeFD, err := parseFD(args[2])
		if err != nil {
			return Params{}, &InvalidParamsError{Args: args, Reason: err.Error()}
		}
		if readFD == writeFD {
			return Params{}, &InvalidParamsError{Args: args, Reason: "read and write descriptors must differ"}
		}
		return Params{Transport: TransportPipe, ReadFD: readFD, WriteFD: writeFD}, nil
	default:
		return Params{}, &InvalidParamsError{Args: args, Reason: fmt.Sprintf("unknown transport %q", args[0])}
	}
}

func parseFD(s string) (uintptr, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("descriptor %q is not a number", s)
	}
	// 0-2 are the standard streams and never carry the channel.
	if n < 3 {
		return 0, fmt.Errorf("descriptor %d is reserved", n)
	}
	return uintptr(n), nil
}

// WorkerArgs returns the command line arguments (without the program name)
// that make a process classify as a worker with the given parameters.
func WorkerArgs(p Params) []string {
	switch p.Transport {
	case TransportPipe:
		return []string{
			WorkerMarker, string(TransportPipe),
			strconv.FormatUint(uint64(p.ReadFD), 10),
			strconv.FormatUint(uint64(p.WriteFD), 10),
		}
	default:
		return []string{WorkerMarker, string(TransportStdio)}
	}
}

// PipeParams returns the parameters of a child that receives its channel
// as the first two ExtraFiles.
func PipeParams() Params {
	return Params{Transport: TransportPipe, ReadFD: ChildReadFD, WriteFD: ChildWriteFD}
}

// OpenChannel reconstructs the worker side of the channel.
func OpenChannel(p Params) (channel.Channel, error) {
	switch p.Transport {
	case TransportStdio:
		return channel.NewStream(os.Stdin, os.Stdout), nil
	case TransportPipe:
		r := os.NewFile(p.ReadFD, "bricks-channel-read")
		w := os.NewFile(p.WriteFD, "bricks-channel-write")
		if r == nil || w == nil {
			if r != nil {
				_ = r.Close()
			}
			if w != nil {
				_ = w.Close()
			}
			return nil, fmt.Errorf("descriptors %d/%d are not open", p.ReadFD, p.WriteFD)
		}
		return channel.NewStream(r, w), nil
	default:
		return nil, &InvalidParamsError{Args: []string{string(p.Transport)}, Reason: fmt.Sprintf("unknown transport %q", p.Transport)}
	}
}
