// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// WorkerLabel marks every container created for a worker.
	WorkerLabel = "io.bricks.worker"

	// IsolationDefault lets the daemon pick the isolation technology.
	IsolationDefault Isolation = ""
	// IsolationProcess shares the host kernel (Windows process isolation).
	IsolationProcess Isolation = "process"
	// IsolationHyperV runs the container in a utility VM.
	IsolationHyperV Isolation = "hyperv"
)

var (
	// ErrImageNotFound is returned when the requested image is not present locally.
	ErrImageNotFound = errors.New("image not found")
	// ErrInvalidIsolation is the sentinel error wrapped by InvalidIsolationError.
	ErrInvalidIsolation = errors.New("invalid container isolation")
)

type (
	// Engine is the set of container operations a worker needs.
	Engine interface {
		// Name returns the engine name.
		Name() string
		// ImageExists reports whether image is available locally.
		ImageExists(ctx context.Context, image string) (bool, error)
		// Create creates (but does not start) a container and returns its id.
		Create(ctx context.Context, spec Spec) (string, error)
		// Attach connects to the container's standard streams. It must be
		// called before Start so no output is lost.
		Attach(ctx context.Context, id string, stderr io.Writer) (*Attachment, error)
		// Start starts a created container.
		Start(ctx context.Context, id string) error
		// Wait blocks until the container stops and returns its exit code.
		Wait(ctx context.Context, id string) (int, error)
		// Kill sends SIGKILL to a running container.
		Kill(ctx context.Context, id string) error
		// Remove force-removes a container.
		Remove(ctx context.Context, id string) error
		// Close releases the engine's connection to the daemon.
		Close() error
	}

	// Isolation is the container isolation technology (Windows hosts).
	Isolation string

	// Mount is a read-only or read-write bind mount.
	Mount struct {
		Source   string
		Target   string
		ReadOnly bool
	}

	// Spec describes a worker container.
	Spec struct {
		// Name is the container name.
		Name string
		// Image is the image to run.
		Image string
		// Command is the entrypoint command line inside the container.
		Command []string
		// Env contains environment variables.
		Env map[string]string
		// Labels are attached to the container.
		Labels map[string]string
		// Mounts are bind mounts.
		Mounts []Mount
		// Isolation selects the isolation technology.
		Isolation Isolation
	}

	// Attachment is a live connection to a container's standard streams.
	Attachment struct {
		// Stdin writes to the container; Close half-closes the connection.
		Stdin io.WriteCloser
		// Stdout yields the demultiplexed standard output.
		Stdout io.ReadCloser
	}

	// InvalidIsolationError is returned when an Isolation value is not recognized.
	InvalidIsolationError struct {
		Value Isolation
	}

	// ImageNotFoundError is returned when the configured image is missing.
	ImageNotFoundError struct {
		Image string
	}
)

// Error implements the error interface.
func (e *InvalidIsolationError) Error() string {
	return fmt.Sprintf("invalid container isolation %q (valid: process, hyperv)", e.Value)
}

// Unwrap returns ErrInvalidIsolation so callers can use errors.Is for programmatic detection.
func (e *InvalidIsolationError) Unwrap() error { return ErrInvalidIsolation }

// Error implements the error interface.
func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("image %q is not available locally", e.Image)
}

// Unwrap returns ErrImageNotFound.
func (e *ImageNotFoundError) Unwrap() error { return ErrImageNotFound }

// String returns the isolation name.
func (i Isolation) String() string { return string(i) }

// Validate returns nil if the Isolation is empty or one of the known technologies.
func (i Isolation) Validate() error {
	switch i {
	case IsolationDefault, IsolationProcess, IsolationHyperV:
		return nil
	default:
		return &InvalidIsolationError{Value: i}
	}
}

// WorkerLabels returns the labels applied to worker containers.
func WorkerLabels() map[string]string {
	return map[string]string{WorkerLabel: "true"}
}
