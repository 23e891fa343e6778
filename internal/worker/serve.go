// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

// maxOutputChunk bounds the data of one Output message so the encoded frame
// stays well under protocol.MaxFrameSize.
const maxOutputChunk = 1 << 20

var (
	// errHostGone is the interrupt cause when the channel disconnected
	// before the runnable finished.
	errHostGone = errors.New("host disconnected")
	// errUnexpectedMessage is the interrupt cause when the host sent a
	// message after Invoke.
	errUnexpectedMessage = errors.New("unexpected message after invoke")
)

type (
	// Options configure Serve.
	Options struct {
		// Logger receives diagnostics. Defaults to a discard logger.
		Logger *log.Logger
	}

	// panicError carries a recovered panic value.
	panicError struct {
		value any
		stack []byte
	}

	// outputWriter turns every Write into Output messages of at most
	// maxOutputChunk bytes each.
	outputWriter struct {
		ch     channel.Channel
		stream protocol.Stream
		// failed records the first send error of either stream.
		failed *sendFailure
	}

	sendFailure struct {
		mu  sync.Mutex
		err error
	}
)

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (w *outputWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	written := 0
	for written < len(p) {
		chunk := p[written:min(written+maxOutputChunk, len(p))]
		if err := w.ch.Send(protocol.NewOutput(w.stream, chunk)); err != nil {
			w.failed.set(err)
			return written, err
		}
		written += len(chunk)
	}
	return written, nil
}

func (f *sendFailure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *sendFailure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Serve runs one message exchange on ch and returns the exit code the worker
// process should terminate with. It does not close ch.
func Serve(ctx context.Context, ch channel.Channel, catalog *runnable.Catalog) protocol.ExitCode {
	return ServeWithOptions(ctx, ch, catalog, Options{})
}

// ServeWithOptions is Serve with explicit options.
func ServeWithOptions(ctx context.Context, ch channel.Channel, catalog *runnable.Catalog, opts Options) protocol.ExitCode {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	msg, err := ch.Receive()
	if err != nil {
		if errors.Is(err, protocol.ErrProtocolViolation) {
			logger.Error("malformed first frame", "error", err)
			return protocol.ExitProtocolViolation
		}
		logger.Warn("channel closed before invoke", "error", err)
		return protocol.ExitTerminated
	}
	if msg.Kind != protocol.KindInvoke {
		logger.Error("expected invoke", "got", msg)
		return protocol.ExitProtocolViolation
	}

	desc := msg.Invoke.Runnable
	args := msg.Invoke.Args
	if len(args) == 0 {
		args = desc.Args
	}
	logger.Debug("invoke received", "runnable", desc.ID, "args", args)

	fn, err := catalog.Resolve(desc)
	if err != nil {
		kind := protocol.FaultError
		if errors.Is(err, runnable.ErrNotFound) {
			kind = protocol.FaultNotFound
		}
		return finish(ch, protocol.NewFault(kind, err.Error()), protocol.ExitFault, logger)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The watcher owns Receive from here on. Any message or disconnect
	// interrupts the runnable.
	interrupted := make(chan error, 1)
	go func() {
		m, rerr := ch.Receive()
		var cause error
		switch {
		case rerr == nil:
			cause = fmt.Errorf("%w: %s", errUnexpectedMessage, m)
		case errors.Is(rerr, protocol.ErrProtocolViolation):
			cause = rerr
		case errors.Is(rerr, channel.ErrChannelClosed):
			// Local close after Serve returned.
			return
		default:
			cause = fmt.Errorf("%w: %w", errHostGone, rerr)
		}
		interrupted <- cause
		cancel(cause)
	}()

	failure := &sendFailure{}
	inv := runnable.Invocation{
		Args:   args,
		Stdout: &outputWriter{ch: ch, stream: protocol.StreamStdout, failed: failure},
		Stderr: &outputWriter{ch: ch, stream: protocol.StreamStderr, failed: failure},
	}
	runErr := execute(runCtx, fn, inv)

	select {
	case cause := <-interrupted:
		if errors.Is(cause, errHostGone) {
			logger.Warn("host disconnected during run", "runnable", desc.ID, "error", cause)
			return protocol.ExitTerminated
		}
		logger.Error("protocol violation during run", "runnable", desc.ID, "error", cause)
		return protocol.ExitProtocolViolation
	default:
	}

	if err := failure.get(); err != nil && channel.IsDisconnect(err) {
		logger.Warn("output could not be delivered", "runnable", desc.ID, "error", err)
		return protocol.ExitTerminated
	}

	return report(ctx, ch, runErr, logger)
}

// execute runs fn and converts a panic into a panicError.
func execute(ctx context.Context, fn runnable.Entrypoint, inv runnable.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn(ctx, inv)
}

// report sends the terminal message for runErr.
func report(ctx context.Context, ch channel.Channel, runErr error, logger *log.Logger) protocol.ExitCode {
	var (
		status runnable.ExitStatus
		perr   *panicError
	)
	switch {
	case runErr == nil:
		return finish(ch, protocol.NewCompleted(protocol.ExitSuccess), protocol.ExitSuccess, logger)
	case errors.As(runErr, &status):
		code := protocol.ExitCode(status)
		if err := code.Validate(); err != nil {
			return finish(ch, protocol.NewFault(protocol.FaultError, err.Error()), protocol.ExitFault, logger)
		}
		return finish(ch, protocol.NewCompleted(code), code, logger)
	case errors.As(runErr, &perr):
		logger.Debug("runnable panicked", "value", perr.value, "stack", string(perr.stack))
		return finish(ch, protocol.NewFault(protocol.FaultPanic, perr.Error()), protocol.ExitFault, logger)
	case ctx.Err() != nil:
		// The worker itself is being torn down.
		finish(ch, protocol.NewFault(protocol.FaultCancelled, runErr.Error()), protocol.ExitFault, logger)
		return protocol.ExitTerminated
	default:
		return finish(ch, protocol.NewFault(protocol.FaultError, runErr.Error()), protocol.ExitFault, logger)
	}
}

// finish sends the terminal message and returns code, or ExitTerminated if
// it could not be delivered.
func finish(ch channel.Channel, msg protocol.Message, code protocol.ExitCode, logger *log.Logger) protocol.ExitCode {
	if err := ch.Send(msg); err != nil {
		logger.Warn("terminal message not delivered", "message", msg, "error", err)
		return protocol.ExitTerminated
	}
	logger.Debug("terminal message sent", "message", msg)
	return code
}
