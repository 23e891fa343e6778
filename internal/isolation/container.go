// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/container"
	"github.com/invowk/bricks/internal/launch"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

const (
	// DefaultDockerImage is the image used by the docker strategy.
	DefaultDockerImage = "debian:stable-slim"
	// DefaultDockerWorkerPath is where the worker binary is mounted in Linux containers.
	DefaultDockerWorkerPath = "/usr/local/bin/bricks"
	// DefaultWindowsImage is the image used by the windows-container strategy.
	DefaultWindowsImage = "mcr.microsoft.com/windows/nanoserver:ltsc2022"
	// DefaultWindowsWorkerPath is where the worker binary is mounted in Windows containers.
	DefaultWindowsWorkerPath = `C:\bricks\bricks.exe`

	// ContainerNamePrefix prefixes the name of every worker container.
	ContainerNamePrefix = "bricks-worker-"

	cleanupTimeout = 30 * time.Second
)

// removeRetry covers the engine briefly refusing to remove a container that
// has only just exited.
var removeRetry = container.Backoff{Attempts: 3, Base: 200 * time.Millisecond, Max: 2 * time.Second}

type (
	// EngineFactory opens a connection to a container engine.
	EngineFactory func() (container.Engine, error)

	// ContainerOptions configure a container-backed strategy. Zero values
	// select the mode's defaults.
	ContainerOptions struct {
		// Image is the image the worker runs in. It must exist locally.
		Image string
		// WorkerPath is the worker binary path inside the container.
		WorkerPath string
		// MountExecutable bind-mounts Executable at WorkerPath (read-only).
		// When false the image must already contain the worker binary.
		MountExecutable *bool
		// Executable is the host binary to mount. Defaults to the current executable.
		Executable string
		// Isolation selects process or hyperv isolation on Windows hosts.
		Isolation container.Isolation
		// Host overrides DOCKER_HOST for the default engine factory.
		Host string
		// Env is passed to the worker.
		Env map[string]string
		// Engine overrides the engine factory.
		Engine EngineFactory
		// Stderr receives the worker's stderr. Defaults to os.Stderr.
		Stderr io.Writer
		// Logger defaults to a discard logger.
		Logger *log.Logger
	}

	// Container runs each worker in a fresh container.
	Container struct {
		mode Mode
		opts ContainerOptions
	}

	containerHandle struct {
		id     string
		engine container.Engine
		done   chan struct{}

		mu      sync.Mutex
		code    int
		waitErr error
		killed  bool
	}
)

// Compile-time check that Container implements Strategy.
var _ Strategy = (*Container)(nil)

// NewDocker creates the docker strategy.
func NewDocker(opts ContainerOptions) *Container {
	if opts.Image == "" {
		opts.Image = DefaultDockerImage
	}
	if opts.WorkerPath == "" {
		opts.WorkerPath = DefaultDockerWorkerPath
	}
	return newContainer(ModeDocker, opts)
}

// NewWindowsContainer creates the windows-container strategy.
func NewWindowsContainer(opts ContainerOptions) *Container {
	if opts.Image == "" {
		opts.Image = DefaultWindowsImage
	}
	if opts.WorkerPath == "" {
		opts.WorkerPath = DefaultWindowsWorkerPath
	}
	if opts.Isolation == container.IsolationDefault {
		opts.Isolation = container.IsolationProcess
	}
	return newContainer(ModeWindowsContainer, opts)
}

func newContainer(mode Mode, opts ContainerOptions) *Container {
	if opts.MountExecutable == nil {
		mount := true
		opts.MountExecutable = &mount
	}
	if opts.Engine == nil {
		host := opts.Host
		opts.Engine = func() (container.Engine, error) {
			return container.NewDockerEngine(host)
		}
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Container{mode: mode, opts: opts}
}

// Mode returns the strategy's isolation mode.
func (s *Container) Mode() Mode { return s.mode }

// Image returns the configured image.
func (s *Container) Image() string { return s.opts.Image }

// Prepare creates, attaches to and starts a worker container.
func (s *Container) Prepare(ctx context.Context, desc runnable.Descriptor) (WorkerHandle, channel.Channel, error) {
	fail := func(err error) (WorkerHandle, channel.Channel, error) {
		return nil, nil, newLaunchError(s.mode, desc, err)
	}

	if err := s.opts.Isolation.Validate(); err != nil {
		return fail(err)
	}

	engine, err := s.opts.Engine()
	if err != nil {
		return fail(err)
	}

	exists, err := engine.ImageExists(ctx, s.opts.Image)
	if err != nil {
		_ = engine.Close()
		return fail(err)
	}
	if !exists {
		_ = engine.Close()
		return fail(&container.ImageNotFoundError{Image: s.opts.Image})
	}

	spec, err := s.spec()
	if err != nil {
		_ = engine.Close()
		return fail(err)
	}

	id, err := engine.Create(ctx, spec)
	if err != nil {
		_ = engine.Close()
		return fail(err)
	}
	logger := s.opts.Logger.With("worker", id, "mode", s.mode)
	logger.Debug("worker container created", "name", spec.Name, "image", spec.Image)

	// Attach before start so no early output is lost.
	att, err := engine.Attach(ctx, id, s.opts.Stderr)
	if err != nil {
		s.abandon(engine, id, logger)
		return fail(err)
	}
	if err := engine.Start(ctx, id); err != nil {
		_ = att.Stdin.Close()
		_ = att.Stdout.Close()
		s.abandon(engine, id, logger)
		return fail(err)
	}

	h := &containerHandle{id: id, engine: engine, done: make(chan struct{})}
	go func() {
		code, err := engine.Wait(context.Background(), id)
		h.mu.Lock()
		h.code, h.waitErr = code, err
		h.mu.Unlock()
		close(h.done)
	}()

	logger.Debug("worker container started", "runnable", desc.ID)
	return h, channel.NewStream(att.Stdout, att.Stdin), nil
}

func (s *Container) spec() (container.Spec, error) {
	spec := container.Spec{
		Name:      ContainerNamePrefix + uuid.NewString(),
		Image:     s.opts.Image,
		Command:   append([]string{s.opts.WorkerPath}, launch.WorkerArgs(launch.Params{Transport: launch.TransportStdio})...),
		Env:       s.opts.Env,
		Labels:    container.WorkerLabels(),
		Isolation: s.opts.Isolation,
	}

	if *s.opts.MountExecutable {
		exe := s.opts.Executable
		if exe == "" {
			self, err := os.Executable()
			if err != nil {
				return container.Spec{}, fmt.Errorf("cannot locate worker executable: %w", err)
			}
			exe = self
		}
		spec.Mounts = []container.Mount{{Source: exe, Target: s.opts.WorkerPath, ReadOnly: true}}
	}
	return spec, nil
}

// abandon removes a container that never became a worker.
func (s *Container) abandon(engine container.Engine, id string, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := remove(ctx, engine, id); err != nil {
		logger.Warn("failed to remove container", "error", err)
	}
	_ = engine.Close()
}

// Dispose kills the container if it is still running and removes it.
func (s *Container) Dispose(ctx context.Context, handle WorkerHandle) error {
	h, ok := handle.(*containerHandle)
	if !ok {
		return fmt.Errorf("handle was not created by the %s strategy", s.mode)
	}
	defer func() { _ = h.engine.Close() }()

	if !h.Exited() {
		s.opts.Logger.Debug("killing worker container", "worker", h.id)
		_ = h.Kill()
	}
	if _, err := h.Wait(ctx); err != nil {
		s.opts.Logger.Warn("worker container did not stop", "worker", h.id, "error", err)
	}
	if err := remove(ctx, h.engine, h.id); err != nil {
		return err
	}
	s.opts.Logger.Debug("worker container removed", "worker", h.id)
	return nil
}

func remove(ctx context.Context, engine container.Engine, id string) error {
	return removeRetry.Do(ctx, func(ctx context.Context) error {
		return engine.Remove(ctx, id)
	})
}

func (h *containerHandle) ID() string { return h.id }

func (h *containerHandle) Wait(ctx context.Context) (protocol.ExitCode, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.killed:
		return protocol.ExitTerminated, nil
	case h.waitErr != nil && h.code < 0:
		return protocol.ExitTerminated, h.waitErr
	default:
		return protocol.ExitCode(h.code), nil
	}
}

func (h *containerHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *containerHandle) Kill() error {
	if h.Exited() {
		return nil
	}
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	return h.engine.Kill(ctx, h.id)
}
