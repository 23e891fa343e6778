// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/container"
	"github.com/invowk/bricks/internal/runnable"
	"github.com/invowk/bricks/internal/worker"
)

type (
	// FakeEngine is an in-memory container.Engine. Its containers run the
	// worker loop in a goroutine over io.Pipe streams, so the container
	// strategies can be exercised without a daemon.
	FakeEngine struct {
		catalog *runnable.Catalog
		images  map[string]bool

		// CreateErr, when set, is returned by Create.
		CreateErr error
		// StartErr, when set, is returned by Start.
		StartErr error
		// RemoveErrs are returned by successive Remove calls; a nil entry
		// lets that call succeed.
		RemoveErrs []error

		mu          sync.Mutex
		created     []container.Spec
		removed     []string
		removeCalls int
		closed      int
		workers     map[string]*fakeContainer
	}

	fakeContainer struct {
		ch   *channel.Stream
		done chan struct{}
		code int
		// hostEnds are closed by Kill so the worker observes a disconnect.
		hostEnds []io.Closer
	}
)

// Compile-time check that FakeEngine implements container.Engine.
var _ container.Engine = (*FakeEngine)(nil)

// NewFakeEngine creates a FakeEngine whose local image store holds images.
// Workers resolve runnables through catalog.
func NewFakeEngine(catalog *runnable.Catalog, images ...string) *FakeEngine {
	e := &FakeEngine{
		catalog: catalog,
		images:  make(map[string]bool),
		workers: make(map[string]*fakeContainer),
	}
	for _, img := range images {
		e.images[img] = true
	}
	return e
}

// Name returns "fake".
func (e *FakeEngine) Name() string { return "fake" }

// ImageExists reports whether image was passed to NewFakeEngine.
func (e *FakeEngine) ImageExists(_ context.Context, image string) (bool, error) {
	return e.images[image], nil
}

// Create records spec and returns a sequential id ("c01", "c02", ...).
func (e *FakeEngine) Create(_ context.Context, spec container.Spec) (string, error) {
	if e.CreateErr != nil {
		return "", e.CreateErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, spec)
	return fmt.Sprintf("c%02d", len(e.created)), nil
}

// Attach wires the container's stdio to a pair of pipes.
func (e *FakeEngine) Attach(_ context.Context, id string, _ io.Writer) (*container.Attachment, error) {
	hostR, workerW := io.Pipe()
	workerR, hostW := io.Pipe()

	e.mu.Lock()
	e.workers[id] = &fakeContainer{
		ch:       channel.NewStream(workerR, workerW),
		done:     make(chan struct{}),
		hostEnds: []io.Closer{hostW, hostR},
	}
	e.mu.Unlock()
	return &container.Attachment{Stdin: hostW, Stdout: hostR}, nil
}

// Start runs the worker loop of the container.
func (e *FakeEngine) Start(_ context.Context, id string) error {
	if e.StartErr != nil {
		return e.StartErr
	}
	w := e.container(id)
	go func() {
		code := worker.Serve(context.Background(), w.ch, e.catalog)
		_ = w.ch.Close()
		w.code = int(code)
		close(w.done)
	}()
	return nil
}

// Wait blocks until the worker loop returned.
func (e *FakeEngine) Wait(ctx context.Context, id string) (int, error) {
	w := e.container(id)
	select {
	case <-w.done:
		return w.code, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Kill disconnects the worker from its host ends.
func (e *FakeEngine) Kill(_ context.Context, id string) error {
	for _, c := range e.container(id).hostEnds {
		_ = c.Close()
	}
	return nil
}

// Remove records the removal, or fails with the next RemoveErrs entry.
func (e *FakeEngine) Remove(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeCalls++
	if len(e.RemoveErrs) > 0 {
		err := e.RemoveErrs[0]
		e.RemoveErrs = e.RemoveErrs[1:]
		if err != nil {
			return err
		}
	}
	e.removed = append(e.removed, id)
	return nil
}

// Close counts the calls.
func (e *FakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

// Created returns the specs of all created containers.
func (e *FakeEngine) Created() []container.Spec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]container.Spec(nil), e.created...)
}

// Removed returns the ids of all removed containers.
func (e *FakeEngine) Removed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.removed...)
}

// RemoveCalls returns the number of Remove calls, including failed ones.
func (e *FakeEngine) RemoveCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeCalls
}

// Closed returns how often Close was called.
func (e *FakeEngine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *FakeEngine) container(id string) *fakeContainer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workers[id]
}
