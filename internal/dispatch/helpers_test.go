// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/container"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
	"github.com/invowk/bricks/internal/testutil"
)

type (
	// scriptedStrategy plays a hand-written worker over a framed stream.
	scriptedStrategy struct {
		mode   isolation.Mode
		script func(ch channel.Channel, raw io.Writer)
	}

	// cancellingStrategy cancels the run while preparing and then fails the
	// way a strategy does when its context ends mid-launch.
	cancellingStrategy struct {
		mode   isolation.Mode
		cancel context.CancelFunc
	}

	scriptedHandle struct {
		done     chan struct{}
		killOnce sync.Once
		closers  []io.Closer
	}
)

func (s *scriptedStrategy) Mode() isolation.Mode { return s.mode }

func (s *scriptedStrategy) Prepare(_ context.Context, _ runnable.Descriptor) (isolation.WorkerHandle, channel.Channel, error) {
	hostR, workerW := io.Pipe()
	workerR, hostW := io.Pipe()
	workerEnd := channel.NewStream(workerR, workerW)

	h := &scriptedHandle{done: make(chan struct{}), closers: []io.Closer{workerEnd}}
	go func() {
		defer close(h.done)
		s.script(workerEnd, workerW)
		_ = workerEnd.Close()
	}()
	return h, channel.NewStream(hostR, hostW), nil
}

func (s *scriptedStrategy) Dispose(ctx context.Context, handle isolation.WorkerHandle) error {
	if !handle.Exited() {
		_ = handle.Kill()
	}
	_, err := handle.Wait(ctx)
	return err
}

func (s *cancellingStrategy) Mode() isolation.Mode { return s.mode }

func (s *cancellingStrategy) Prepare(ctx context.Context, desc runnable.Descriptor) (isolation.WorkerHandle, channel.Channel, error) {
	s.cancel()
	<-ctx.Done()
	return nil, nil, &isolation.LaunchError{Mode: s.mode, Runnable: desc.ID, Err: ctx.Err()}
}

func (s *cancellingStrategy) Dispose(context.Context, isolation.WorkerHandle) error { return nil }

func (h *scriptedHandle) ID() string { return "scripted" }

func (h *scriptedHandle) Wait(ctx context.Context) (protocol.ExitCode, error) {
	select {
	case <-h.done:
		return protocol.ExitSuccess, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *scriptedHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *scriptedHandle) Kill() error {
	h.killOnce.Do(func() {
		for _, c := range h.closers {
			_ = c.Close()
		}
	})
	return nil
}

// newTestSet builds a strategy set where the container modes run on engine.
func newTestSet(engine *testutil.FakeEngine) *isolation.Set {
	factory := func() (container.Engine, error) { return engine, nil }
	return isolation.NewSet(
		isolation.NewInProcess(testCatalog(), nil),
		isolation.NewAnonymousPipes(isolation.PipeOptions{}),
		isolation.NewDocker(isolation.ContainerOptions{Engine: factory, Executable: "/host/bricks"}),
		isolation.NewWindowsContainer(isolation.ContainerOptions{Engine: factory, Executable: `C:\host\bricks.exe`}),
	)
}

func newFakeEngine() *testutil.FakeEngine {
	return testutil.NewFakeEngine(testCatalog(), isolation.DefaultDockerImage, isolation.DefaultWindowsImage)
}

func lookup(t *testing.T, id string) runnable.Descriptor {
	t.Helper()

	desc, err := testCatalog().Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%q) failed: %v", id, err)
	}
	return desc
}

func withArgs(desc runnable.Descriptor, args ...string) runnable.Descriptor {
	desc.Args = args
	return desc
}
