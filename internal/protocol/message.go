// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/invowk/bricks/internal/runnable"
)

const (
	// KindInvoke asks the worker to execute a runnable. Sent by the host only.
	KindInvoke Kind = 1
	// KindOutput carries a chunk of output produced by the runnable.
	KindOutput Kind = 2
	// KindFault is the terminal message reporting a failure of the runnable.
	KindFault Kind = 3
	// KindCompleted is the terminal message reporting that the runnable returned.
	KindCompleted Kind = 4

	// StreamStdout marks output written to the runnable's standard output.
	StreamStdout Stream = "stdout"
	// StreamStderr marks output written to the runnable's standard error.
	StreamStderr Stream = "stderr"

	// FaultError is reported when the runnable returned an error.
	FaultError FaultKind = "error"
	// FaultPanic is reported when the runnable panicked.
	FaultPanic FaultKind = "panic"
	// FaultNotFound is reported when the worker cannot resolve the runnable.
	FaultNotFound FaultKind = "not_found"
	// FaultCancelled is reported when the runnable stopped because it was cancelled.
	FaultCancelled FaultKind = "cancelled"
)

var (
	// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
	ErrInvalidKind = errors.New("invalid message kind")
	// ErrInvalidMessage is the sentinel error wrapped by InvalidMessageError.
	ErrInvalidMessage = errors.New("invalid message")
)

type (
	// Kind is the tag identifying a message variant on the wire.
	Kind uint8

	// InvalidKindError is returned when a Kind value is not one of the defined kinds.
	InvalidKindError struct {
		Value Kind
	}

	// InvalidMessageError is returned when a Message payload does not match its Kind.
	InvalidMessageError struct {
		Kind   Kind
		Reason string
	}

	// Stream identifies which output stream an Output chunk belongs to.
	Stream string

	// FaultKind classifies a Fault reported by the worker.
	FaultKind string

	// Message is the tagged union exchanged over a channel.
	// Exactly one payload field is set and it matches Kind.
	Message struct {
		Kind      Kind
		Invoke    *Invoke
		Output    *Output
		Fault     *Fault
		Completed *Completed
	}

	// Invoke asks the worker to run a runnable with the given arguments.
	Invoke struct {
		Runnable runnable.Descriptor `json:"runnable"`
		Args     []string            `json:"args,omitempty"`
	}

	// Output is one chunk of runnable output, in the order it was written.
	Output struct {
		Stream Stream `json:"stream"`
		Data   []byte `json:"data"`
	}

	// Fault reports that the runnable failed.
	Fault struct {
		Kind        FaultKind `json:"kind"`
		Description string    `json:"description"`
	}

	// Completed reports that the runnable returned. ExitCode is the status the
	// runnable reported; zero means success.
	Completed struct {
		ExitCode ExitCode `json:"exit_code"`
	}
)

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid message kind %d (valid: 1-4)", uint8(e.Value))
}

// Unwrap returns ErrInvalidKind so callers can use errors.Is for programmatic detection.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// Error implements the error interface.
func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("invalid %s message: %s", e.Kind, e.Reason)
}

// Unwrap returns ErrInvalidMessage so callers can use errors.Is for programmatic detection.
func (e *InvalidMessageError) Unwrap() error { return ErrInvalidMessage }

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvoke:
		return "invoke"
	case KindOutput:
		return "output"
	case KindFault:
		return "fault"
	case KindCompleted:
		return "completed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Validate returns nil if the Kind is one of the defined kinds.
func (k Kind) Validate() error {
	switch k {
	case KindInvoke, KindOutput, KindFault, KindCompleted:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// IsTerminal reports whether the kind ends a message exchange.
func (k Kind) IsTerminal() bool {
	return k == KindFault || k == KindCompleted
}

// String returns the stream name.
func (s Stream) String() string { return string(s) }

// String returns the fault kind name.
func (k FaultKind) String() string { return string(k) }

// NewInvoke builds an Invoke message.
func NewInvoke(desc runnable.Descriptor, args []string) Message {
	return Message{Kind: KindInvoke, Invoke: &Invoke{Runnable: desc, Args: args}}
}

// NewOutput builds an Output message. The data slice is copied so callers
// may reuse their buffer.
func NewOutput(stream Stream, data []byte) Message {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Message{Kind: KindOutput, Output: &Output{Stream: stream, Data: buf}}
}

// NewFault builds a Fault message.
func NewFault(kind FaultKind, description string) Message {
	return Message{Kind: KindFault, Fault: &Fault{Kind: kind, Description: description}}
}

// NewCompleted builds a Completed message.
func NewCompleted(code ExitCode) Message {
	return Message{Kind: KindCompleted, Completed: &Completed{ExitCode: code}}
}

// IsTerminal reports whether the message ends a message exchange.
func (m Message) IsTerminal() bool {
	return m.Kind.IsTerminal()
}

// Validate checks that the kind is known and that exactly the matching payload is set.
func (m Message) Validate() error {
	if err := m.Kind.Validate(); err != nil {
		return err
	}

	set := 0
	for _, present := range []bool{m.Invoke != nil, m.Output != nil, m.Fault != nil, m.Completed != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return &InvalidMessageError{Kind: m.Kind, Reason: fmt.Sprintf("expected exactly one payload, got %d", set)}
	}

	var ok bool
	switch m.Kind {
	case KindInvoke:
		ok = m.Invoke != nil
	case KindOutput:
		ok = m.Output != nil
	case KindFault:
		ok = m.Fault != nil
	case KindCompleted:
		ok = m.Completed != nil
	}
	if !ok {
		return &InvalidMessageError{Kind: m.Kind, Reason: "payload does not match kind"}
	}
	return nil
}

// String returns a short human-readable description used in logs.
func (m Message) String() string {
	switch {
	case m.Invoke != nil:
		return fmt.Sprintf("invoke(%s)", m.Invoke.Runnable.ID)
	case m.Output != nil:
		return fmt.Sprintf("output(%s, %d bytes)", m.Output.Stream, len(m.Output.Data))
	case m.Fault != nil:
		return fmt.Sprintf("fault(%s: %s)", m.Fault.Kind, m.Fault.Description)
	case m.Completed != nil:
		return fmt.Sprintf("completed(%d)", m.Completed.ExitCode)
	default:
		return m.Kind.String()
	}
}
