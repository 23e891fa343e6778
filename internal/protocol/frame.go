// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the length prefix of a frame.
	HeaderSize = 4
	// MaxFrameSize is the largest accepted value of the length prefix.
	MaxFrameSize = 16 << 20
)

var (
	// ErrProtocolViolation is matched (via errors.Is) by every ViolationError.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrFrameTooLarge is wrapped by the ViolationError returned for oversized frames.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrEmptyFrame is wrapped by the ViolationError returned for zero-length frames.
	ErrEmptyFrame = errors.New("empty frame")
)

type (
	// ViolationError reports a malformed frame or a message that breaks the
	// exchange rules. It matches ErrProtocolViolation with errors.Is and
	// unwraps to the underlying cause.
	ViolationError struct {
		Reason string
		Err    error
	}

	// Decoder reassembles frames from arbitrary partial chunks.
	// The zero value is ready to use. A Decoder is not safe for concurrent use.
	Decoder struct {
		buf []byte
	}
)

// Error implements the error interface.
func (e *ViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation: %s: %v", e.Reason, e.Err)
	}
	return "protocol violation: " + e.Reason
}

// Unwrap returns the underlying cause.
func (e *ViolationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrProtocolViolation.
func (e *ViolationError) Is(target error) bool { return target == ErrProtocolViolation }

// NewViolation creates a ViolationError with the given reason and cause.
func NewViolation(reason string, cause error) *ViolationError {
	return &ViolationError{Reason: reason, Err: cause}
}

// Encode serializes a message into a single frame.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var payload any
	switch m.Kind {
	case KindInvoke:
		payload = m.Invoke
	case KindOutput:
		payload = m.Output
	case KindFault:
		payload = m.Fault
	case KindCompleted:
		payload = m.Completed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", m.Kind, err)
	}

	size := 1 + len(body)
	if size > MaxFrameSize {
		return nil, NewViolation(fmt.Sprintf("%s frame of %d bytes", m.Kind, size), ErrFrameTooLarge)
	}

	frame := make([]byte, HeaderSize+size)
	binary.BigEndian.PutUint32(frame, uint32(size))
	frame[HeaderSize] = byte(m.Kind)
	copy(frame[HeaderSize+1:], body)
	return frame, nil
}

// WriteMessage encodes m and writes the whole frame to w.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// decodeBody decodes the kind tag and payload of one frame.
func decodeBody(body []byte) (Message, error) {
	kind := Kind(body[0])
	if err := kind.Validate(); err != nil {
		return Message{}, NewViolation("unknown message kind", err)
	}

	m := Message{Kind: kind}
	var target any
	switch kind {
	case KindInvoke:
		m.Invoke = &Invoke{}
		target = m.Invoke
	case KindOutput:
		m.Output = &Output{}
		target = m.Output
	case KindFault:
		m.Fault = &Fault{}
		target = m.Fault
	case KindCompleted:
		m.Completed = &Completed{}
		target = m.Completed
	}

	if err := json.Unmarshal(body[1:], target); err != nil {
		return Message{}, NewViolation(fmt.Sprintf("malformed %s payload", kind), err)
	}
	return m, nil
}

// Write appends a chunk of transport data to the decoder buffer.
// It never fails; the signature lets a Decoder be used as an io.Writer.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next complete message. The boolean is false when more
// data is needed. A malformed frame returns a ViolationError; the decoder
// must not be used after that.
func (d *Decoder) Next() (Message, bool, error) {
	if len(d.buf) < HeaderSize {
		return Message{}, false, nil
	}

	size := binary.BigEndian.Uint32(d.buf)
	if size == 0 {
		return Message{}, false, NewViolation("zero-length frame", ErrEmptyFrame)
	}
	if size > MaxFrameSize {
		return Message{}, false, NewViolation(fmt.Sprintf("declared frame length %d", size), ErrFrameTooLarge)
	}

	end := HeaderSize + int(size)
	if len(d.buf) < end {
		return Message{}, false, nil
	}

	m, err := decodeBody(d.buf[HeaderSize:end])

	// Shift the remainder down so the buffer does not grow without bound.
	rest := copy(d.buf, d.buf[end:])
	d.buf = d.buf[:rest]

	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

// ReadMessage reads exactly one frame from r. It returns io.EOF when r is
// exhausted on a frame boundary and io.ErrUnexpectedEOF inside a frame.
func ReadMessage(r io.Reader) (Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return Message{}, NewViolation("zero-length frame", ErrEmptyFrame)
	}
	if size > MaxFrameSize {
		return Message{}, NewViolation(fmt.Sprintf("declared frame length %d", size), ErrFrameTooLarge)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return decodeBody(body)
}
