// SPDX-License-Identifier: MPL-2.0

package runnable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KindBuiltin identifies runnables implemented as registered Go functions.
	KindBuiltin Kind = "builtin"
	// KindScript identifies runnables implemented as shell scripts.
	KindScript Kind = "script"
)

var (
	// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
	ErrInvalidKind = errors.New("invalid runnable kind")
	// ErrInvalidDescriptor is the sentinel error wrapped by InvalidDescriptorError.
	ErrInvalidDescriptor = errors.New("invalid runnable descriptor")
)

type (
	// Kind identifies how a runnable's Location is interpreted.
	Kind string

	// InvalidKindError is returned when a Kind value is not recognized.
	InvalidKindError struct {
		Value Kind
	}

	// InvalidDescriptorError is returned when a Descriptor has invalid fields.
	// It collects field-level validation errors.
	InvalidDescriptorError struct {
		ID          string
		FieldErrors []error
	}

	// Descriptor identifies an installed runnable. It is an immutable value
	// resolved by the package layer and owned by the caller of the dispatcher.
	Descriptor struct {
		// ID is the stable identifier (e.g., "formatter.uppercase").
		ID string `json:"id"`
		// Name is the display name.
		Name string `json:"name"`
		// Description is a short human-readable summary (markdown allowed).
		Description string `json:"description,omitempty"`
		// Kind selects how Location is interpreted.
		Kind Kind `json:"kind"`
		// Location is the registered entry point name for builtins,
		// or the script source for scripts.
		Location string `json:"location"`
		// Args are default arguments used when the caller supplies none.
		Args []string `json:"args,omitempty"`
	}

	// Invocation is what an Entrypoint receives for one execution.
	Invocation struct {
		// Args are the arguments of the Invoke message.
		Args []string
		// Stdout receives the runnable's regular output.
		Stdout io.Writer
		// Stderr receives the runnable's diagnostic output.
		Stderr io.Writer
	}

	// Entrypoint executes a runnable. Returning nil means success; returning an
	// ExitStatus reports a non-zero status that is not a fault; any other
	// error is reported to the host as a fault.
	Entrypoint func(ctx context.Context, inv Invocation) error

	// ExitStatus is returned by an Entrypoint to report a non-zero exit status.
	ExitStatus int
)

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid runnable kind %q (valid: builtin, script)", e.Value)
}

// Unwrap returns ErrInvalidKind so callers can use errors.Is for programmatic detection.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// Error implements the error interface.
func (e *InvalidDescriptorError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	if e.ID == "" {
		return fmt.Sprintf("invalid runnable descriptor: %s", strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("invalid runnable descriptor %q: %s", e.ID, strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidDescriptor so callers can use errors.Is for programmatic detection.
func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }

// String returns the kind name.
func (k Kind) String() string { return string(k) }

// Validate returns nil if the Kind is one of the defined kinds.
func (k Kind) Validate() error {
	switch k {
	case KindBuiltin, KindScript:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// Validate checks the descriptor fields.
func (d Descriptor) Validate() error {
	var errs []error
	if strings.TrimSpace(d.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if err := d.Kind.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(d.Location) == "" {
		errs = append(errs, errors.New("location must not be empty"))
	}
	if len(errs) > 0 {
		return &InvalidDescriptorError{ID: d.ID, FieldErrors: errs}
	}
	return nil
}

// DisplayName returns Name, falling back to ID.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Error implements the error interface.
func (s ExitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(s))
}
