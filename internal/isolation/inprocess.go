// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
	"github.com/invowk/bricks/internal/worker"
)

type (
	// InProcess runs the worker loop in a goroutine of the host process.
	InProcess struct {
		catalog *runnable.Catalog
		logger  *log.Logger
	}

	inProcessHandle struct {
		id     string
		cancel context.CancelFunc
		done   chan struct{}

		mu     sync.Mutex
		code   protocol.ExitCode
		killed bool
	}
)

// Compile-time check that InProcess implements Strategy.
var _ Strategy = (*InProcess)(nil)

// NewInProcess creates the in-process strategy. The catalog resolves
// runnables on the worker side.
func NewInProcess(catalog *runnable.Catalog, logger *log.Logger) *InProcess {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &InProcess{catalog: catalog, logger: logger}
}

// Mode returns ModeInProcess.
func (s *InProcess) Mode() Mode { return ModeInProcess }

// Prepare starts the worker loop on one end of a local channel pair.
func (s *InProcess) Prepare(ctx context.Context, desc runnable.Descriptor) (WorkerHandle, channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, newLaunchError(ModeInProcess, desc, err)
	}
	if s.catalog == nil {
		return nil, nil, newLaunchError(ModeInProcess, desc, errors.New("no runnable catalog configured"))
	}

	hostEnd, workerEnd := channel.NewLocalPair()
	workerCtx, cancel := context.WithCancel(context.Background())
	h := &inProcessHandle{
		id:     "inproc-" + uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	logger := s.logger.With("worker", h.id)
	go func() {
		defer close(h.done)
		defer func() { _ = workerEnd.Close() }()

		code := worker.ServeWithOptions(workerCtx, workerEnd, s.catalog, worker.Options{Logger: logger})
		h.mu.Lock()
		h.code = code
		h.mu.Unlock()
	}()

	s.logger.Debug("in-process worker started", "runnable", desc.ID, "worker", h.id)
	return h, hostEnd, nil
}

// Dispose cancels the worker if it is still running and waits for it.
func (s *InProcess) Dispose(ctx context.Context, handle WorkerHandle) error {
	h, ok := handle.(*inProcessHandle)
	if !ok {
		return errors.New("handle was not created by the in-process strategy")
	}
	if !h.Exited() {
		_ = h.Kill()
	}
	_, err := h.Wait(ctx)
	h.cancel()
	return err
}

func (h *inProcessHandle) ID() string { return h.id }

func (h *inProcessHandle) Wait(ctx context.Context) (protocol.ExitCode, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.killed {
			return protocol.ExitTerminated, nil
		}
		return h.code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *inProcessHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *inProcessHandle) Kill() error {
	if h.Exited() {
		return nil
	}
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	h.cancel()
	return nil
}
