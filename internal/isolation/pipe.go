// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/launch"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

type (
	// PipeOptions configure the anonymous-pipes strategy.
	PipeOptions struct {
		// Executable is the worker binary. Defaults to the current executable.
		Executable string
		// Env is appended to the host environment of the child.
		Env []string
		// Stderr receives the child's stderr. Defaults to os.Stderr.
		Stderr io.Writer
		// Logger defaults to a discard logger.
		Logger *log.Logger
	}

	// AnonymousPipes runs each worker as a child process that inherits one
	// pipe per direction.
	AnonymousPipes struct {
		opts PipeOptions
	}

	processHandle struct {
		cmd  *exec.Cmd
		done chan struct{}

		mu      sync.Mutex
		waitErr error
		killed  bool
	}
)

// Compile-time check that AnonymousPipes implements Strategy.
var _ Strategy = (*AnonymousPipes)(nil)

// NewAnonymousPipes creates the anonymous-pipes strategy.
func NewAnonymousPipes(opts PipeOptions) *AnonymousPipes {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &AnonymousPipes{opts: opts}
}

// Mode returns ModeAnonymousPipes.
func (s *AnonymousPipes) Mode() Mode { return ModeAnonymousPipes }

// Prepare spawns the worker process.
func (s *AnonymousPipes) Prepare(ctx context.Context, desc runnable.Descriptor) (WorkerHandle, channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, newLaunchError(ModeAnonymousPipes, desc, err)
	}

	exe := s.opts.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, nil, newLaunchError(ModeAnonymousPipes, desc, fmt.Errorf("cannot locate worker executable: %w", err))
		}
		exe = self
	}

	// hostR <- childW carries worker messages, childR <- hostW carries host messages.
	hostR, childW, err := os.Pipe()
	if err != nil {
		return nil, nil, newLaunchError(ModeAnonymousPipes, desc, fmt.Errorf("failed to create pipe: %w", err))
	}
	childR, hostW, err := os.Pipe()
	if err != nil {
		closeAll(hostR, childW)
		return nil, nil, newLaunchError(ModeAnonymousPipes, desc, fmt.Errorf("failed to create pipe: %w", err))
	}

	cmd := exec.Command(exe)
	params := attachChildPipes(cmd, childR, childW)
	cmd.Args = append([]string{exe}, launch.WorkerArgs(params)...)
	cmd.Stderr = s.opts.Stderr
	cmd.Env = append(os.Environ(), s.opts.Env...)

	if err := cmd.Start(); err != nil {
		closeAll(hostR, childW, childR, hostW)
		return nil, nil, newLaunchError(ModeAnonymousPipes, desc, fmt.Errorf("failed to start %s: %w", exe, err))
	}
	// The child owns its ends now.
	closeAll(childR, childW)

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)
	}()

	s.opts.Logger.Debug("worker process started", "runnable", desc.ID, "worker", h.ID(), "executable", exe)
	return h, channel.NewStream(hostR, hostW), nil
}

// Dispose kills the process if it is still running and reaps it.
func (s *AnonymousPipes) Dispose(ctx context.Context, handle WorkerHandle) error {
	h, ok := handle.(*processHandle)
	if !ok {
		return errors.New("handle was not created by the anonymous-pipes strategy")
	}
	if !h.Exited() {
		s.opts.Logger.Debug("killing worker process", "worker", h.ID())
		_ = h.Kill()
	}
	code, err := h.Wait(ctx)
	if err != nil {
		return fmt.Errorf("worker process %s was not reaped: %w", h.ID(), err)
	}
	s.opts.Logger.Debug("worker process reaped", "worker", h.ID(), "code", code)
	return nil
}

func (h *processHandle) ID() string { return strconv.Itoa(h.cmd.Process.Pid) }

func (h *processHandle) Wait(ctx context.Context) (protocol.ExitCode, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.killed {
		return protocol.ExitTerminated, nil
	}
	state := h.cmd.ProcessState
	if state == nil {
		return protocol.ExitTerminated, h.waitErr
	}
	// ExitCode is -1 when the process was ended by a signal.
	if code := state.ExitCode(); code >= 0 {
		return protocol.ExitCode(code), nil
	}
	return protocol.ExitTerminated, nil
}

func (h *processHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *processHandle) Kill() error {
	if h.Exited() {
		return nil
	}
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill worker process %s: %w", h.ID(), err)
	}
	return nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
