// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

const (
	// DefaultGracePeriod is how long a worker may take to exit after its
	// channel was closed before it is killed.
	DefaultGracePeriod = 5 * time.Second

	disposeTimeout = 30 * time.Second
)

type (
	// Options configure a Dispatcher.
	Options struct {
		// Strategies provides one strategy per mode. Required.
		Strategies *isolation.Set
		// DefaultMode is used by RunDefault. Defaults to in-process.
		DefaultMode isolation.Mode
		// Stdout receives stdout chunks as they arrive. Optional.
		Stdout io.Writer
		// Stderr receives stderr chunks as they arrive. Optional.
		Stderr io.Writer
		// GracePeriod defaults to DefaultGracePeriod.
		GracePeriod time.Duration
		// Logger defaults to a discard logger.
		Logger *log.Logger
	}

	// Dispatcher executes runnables through an isolation strategy set.
	// It is safe for concurrent use; every Run uses its own worker and channel.
	Dispatcher struct {
		strategies  *isolation.Set
		defaultMode isolation.Mode
		stdout      io.Writer
		stderr      io.Writer
		grace       time.Duration
		logger      *log.Logger
	}

	event struct {
		msg protocol.Message
		err error
	}
)

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		strategies:  opts.Strategies,
		defaultMode: opts.DefaultMode,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
		grace:       opts.GracePeriod,
		logger:      opts.Logger,
	}
	if d.strategies == nil {
		d.strategies = isolation.NewSet()
	}
	if d.defaultMode == "" {
		d.defaultMode = isolation.ModeInProcess
	}
	if d.grace <= 0 {
		d.grace = DefaultGracePeriod
	}
	if d.logger == nil {
		d.logger = log.New(io.Discard)
	}
	return d
}

// DefaultMode returns the mode used by RunDefault.
func (d *Dispatcher) DefaultMode() isolation.Mode { return d.defaultMode }

// RunDefault runs desc in the default mode.
func (d *Dispatcher) RunDefault(ctx context.Context, desc runnable.Descriptor) (*Result, error) {
	return d.Run(ctx, desc, d.defaultMode)
}

// Run executes desc in mode. The returned Result is non-nil whenever a worker
// was created, including on error, and holds the output observed so far.
// The worker and its channel are released before Run returns.
func (d *Dispatcher) Run(ctx context.Context, desc runnable.Descriptor, mode isolation.Mode) (*Result, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Runnable: desc.ID, Err: err}
	}

	strategy, err := d.strategies.Get(mode)
	if err != nil {
		return nil, &LaunchError{Runnable: desc.ID, Mode: mode, Err: err}
	}

	logger := d.logger.With("runnable", desc.ID, "mode", mode)
	handle, ch, err := strategy.Prepare(ctx, desc)
	if err != nil {
		logger.Debug("launch failed", "error", err)
		if cerr := ctx.Err(); cerr != nil {
			return nil, &CancelledError{Runnable: desc.ID, Err: cerr}
		}
		return nil, &LaunchError{Runnable: desc.ID, Mode: mode, Err: err}
	}
	logger = logger.With("worker", handle.ID())
	logger.Debug("worker ready")

	result := &Result{Runnable: desc.ID, Mode: mode, WorkerID: handle.ID()}
	stop := make(chan struct{})
	defer func() {
		close(stop)
		d.release(strategy, handle, ch, result, logger)
	}()

	if err := ch.Send(protocol.NewInvoke(desc, desc.Args)); err != nil {
		return result, &TransportError{Runnable: desc.ID, Mode: mode, Err: err}
	}

	events := make(chan event)
	go receive(ch, events, stop)

	for {
		select {
		case ev := <-events:
			if ev.err != nil {
				return result, d.channelFailure(desc, mode, ch, ev.err)
			}
			done, err := d.handle(desc, mode, ch, ev.msg, result)
			if done {
				return result, err
			}

		case <-ctx.Done():
			logger.Debug("cancelled, closing channel", "grace", d.grace)
			_ = ch.Close()
			return result, &CancelledError{Runnable: desc.ID, Err: ctx.Err()}
		}
	}
}

// handle processes one message. It reports whether the exchange is over.
func (d *Dispatcher) handle(desc runnable.Descriptor, mode isolation.Mode, ch channel.Channel, msg protocol.Message, result *Result) (bool, error) {
	switch msg.Kind {
	case protocol.KindOutput:
		result.Output = append(result.Output, Chunk{Stream: msg.Output.Stream, Data: msg.Output.Data})
		d.forward(msg.Output)
		return false, nil
	case protocol.KindCompleted:
		result.ExitCode = msg.Completed.ExitCode
		return true, nil
	case protocol.KindFault:
		return true, &RemoteFault{Runnable: desc.ID, Kind: msg.Fault.Kind, Description: msg.Fault.Description}
	default:
		_ = ch.Close()
		return true, &ProtocolViolationError{
			Runnable: desc.ID,
			Mode:     mode,
			Reason:   fmt.Sprintf("worker sent %s", msg.Kind),
		}
	}
}

func (d *Dispatcher) channelFailure(desc runnable.Descriptor, mode isolation.Mode, ch channel.Channel, err error) error {
	if errors.Is(err, protocol.ErrProtocolViolation) {
		_ = ch.Close()
		return &ProtocolViolationError{Runnable: desc.ID, Mode: mode, Reason: "malformed frame", Err: err}
	}
	return &TransportError{Runnable: desc.ID, Mode: mode, Err: err}
}

func (d *Dispatcher) forward(out *protocol.Output) {
	w := d.stdout
	if out.Stream == protocol.StreamStderr {
		w = d.stderr
	}
	if w == nil {
		return
	}
	if _, err := w.Write(out.Data); err != nil {
		d.logger.Warn("output sink failed", "stream", out.Stream, "error", err)
	}
}

// release closes the channel, gives the worker the grace period to exit on
// its own, kills it otherwise and disposes of it.
func (d *Dispatcher) release(strategy isolation.Strategy, handle isolation.WorkerHandle, ch channel.Channel, result *Result, logger *log.Logger) {
	_ = ch.Close()

	graceCtx, cancelGrace := context.WithTimeout(context.Background(), d.grace)
	code, err := handle.Wait(graceCtx)
	cancelGrace()
	if err != nil {
		logger.Debug("worker did not exit within grace period, killing")
		if kerr := handle.Kill(); kerr != nil {
			logger.Warn("failed to kill worker", "error", kerr)
		}
	}

	disposeCtx, cancelDispose := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancelDispose()
	if derr := strategy.Dispose(disposeCtx, handle); derr != nil {
		logger.Warn("failed to dispose worker", "error", derr)
	}

	if err != nil {
		code, err = handle.Wait(disposeCtx)
	}
	if err == nil {
		result.WorkerExitCode = code
		result.WorkerExited = true
	}
	logger.Debug("worker released", "exit_code", result.WorkerExitCode, "exited", result.WorkerExited)
}

// receive forwards channel events until a terminal message, an error, or stop.
func receive(ch channel.Channel, events chan<- event, stop <-chan struct{}) {
	for {
		msg, err := ch.Receive()
		select {
		case events <- event{msg: msg, err: err}:
		case <-stop:
			return
		}
		if err != nil || msg.IsTerminal() {
			return
		}
	}
}
