// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

// DockerEngine implements Engine with the Docker Engine SDK.
type DockerEngine struct {
	cli *client.Client
}

// Compile-time check that DockerEngine implements Engine.
var _ Engine = (*DockerEngine)(nil)

// NewDockerEngine connects to the daemon described by the DOCKER_* environment
// variables. A non-empty host overrides DOCKER_HOST.
func NewDockerEngine(host string) (*DockerEngine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

// Name returns "docker".
func (e *DockerEngine) Name() string { return "docker" }

// Ping checks that the daemon answers.
func (e *DockerEngine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon is not reachable: %w", err)
	}
	return nil
}

// ImageExists reports whether image is present in the local image store.
func (e *DockerEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	if _, err := e.cli.ImageInspect(ctx, image); err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %q: %w", image, err)
	}
	return true, nil
}

// Create creates the container described by spec.
func (e *DockerEngine) Create(ctx context.Context, spec Spec) (string, error) {
	if err := spec.Isolation.Validate(); err != nil {
		return "", err
	}

	cfg, hostCfg := createConfig(spec)
	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %q: %w", spec.Name, err)
	}
	return resp.ID, nil
}

// Attach connects to the container's stdin, stdout and stderr.
func (e *DockerEngine) Attach(ctx context.Context, id string, stderr io.Writer) (*Attachment, error) {
	resp, err := e.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container %s: %w", shortID(id), err)
	}
	return newAttachment(hijackedConn{resp: resp}, stderr), nil
}

// Start starts a created container.
func (e *DockerEngine) Start(ctx context.Context, id string) error {
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", shortID(id), err)
	}
	return nil
}

// Wait blocks until the container is no longer running.
func (e *DockerEngine) Wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return int(status.StatusCode), fmt.Errorf("container %s: %s", shortID(id), status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		return -1, fmt.Errorf("failed to wait for container %s: %w", shortID(id), err)
	}
}

// Kill sends SIGKILL to the container.
func (e *DockerEngine) Kill(ctx context.Context, id string) error {
	if err := e.cli.ContainerKill(ctx, id, "KILL"); err != nil {
		return fmt.Errorf("failed to kill container %s: %w", shortID(id), err)
	}
	return nil
}

// Remove force-removes the container.
func (e *DockerEngine) Remove(ctx context.Context, id string) error {
	if err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", shortID(id), err)
	}
	return nil
}

// ListWorkers returns the ids of all containers, running or not, that
// carry the worker label.
func (e *DockerEngine) ListWorkers(ctx context.Context) ([]string, error) {
	list, err := e.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", WorkerLabel+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list worker containers: %w", err)
	}

	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Close closes the client connection.
func (e *DockerEngine) Close() error {
	return e.cli.Close()
}

// createConfig maps a Spec onto the SDK's container and host configuration.
func createConfig(spec Spec) (*container.Config, *container.HostConfig) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          env,
		Labels:       spec.Labels,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    true,
		StdinOnce:    true,
		Tty:          false,
	}

	hostCfg := &container.HostConfig{
		Isolation: container.Isolation(spec.Isolation),
	}
	for _, m := range spec.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return cfg, hostCfg
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
