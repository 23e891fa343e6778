// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"errors"
	"fmt"
	"io"

	"github.com/invowk/bricks/internal/protocol"
)

// ErrChannelClosed is returned by Send and Receive after the local side
// called Close.
var ErrChannelClosed = errors.New("channel closed")

type (
	// Channel is a bidirectional, ordered message channel.
	//
	// Send may be called concurrently; every message is delivered whole.
	// Receive must be called from a single goroutine. Close is idempotent and
	// unblocks a pending Receive.
	Channel interface {
		Send(msg protocol.Message) error
		Receive() (protocol.Message, error)
		Close() error
	}

	// TransportError reports an I/O failure of the underlying transport,
	// including the peer closing its end (Err is then io.EOF).
	TransportError struct {
		Op  string
		Err error
	}
)

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *TransportError) Unwrap() error { return e.Err }

// IsDisconnect reports whether err means the peer went away, as opposed to
// the local side closing the channel or a malformed frame.
func IsDisconnect(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && (errors.Is(te.Err, io.EOF) || errors.Is(te.Err, io.ErrClosedPipe) || errors.Is(te.Err, io.ErrUnexpectedEOF))
}

func disconnected(op string) *TransportError {
	return &TransportError{Op: op, Err: io.EOF}
}
