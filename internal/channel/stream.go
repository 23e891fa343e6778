// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/invowk/bricks/internal/protocol"
)

const readChunkSize = 32 << 10

// Stream is a Channel over a pair of byte streams. Messages are
// length-prefixed frames; partial reads are reassembled by a decoder.
type Stream struct {
	r io.ReadCloser
	w io.WriteCloser

	sendMu sync.Mutex
	recvMu sync.Mutex
	dec    protocol.Decoder
	chunk  []byte
	readErr error
	// failed holds a sticky receive error once the stream is unusable.
	failed error

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewStream creates a Stream that reads frames from r and writes frames to w.
// Close closes both.
func NewStream(r io.ReadCloser, w io.WriteCloser) *Stream {
	return &Stream{
		r:      r,
		w:      w,
		chunk:  make([]byte, readChunkSize),
		closed: make(chan struct{}),
	}
}

// Send writes msg as one frame. Concurrent sends never interleave.
func (s *Stream) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.isClosed() {
		return ErrChannelClosed
	}
	if _, err := s.w.Write(frame); err != nil {
		if s.isClosed() {
			return ErrChannelClosed
		}
		return &TransportError{Op: "send", Err: normalizeIOError(err)}
	}
	return nil
}

// Receive blocks until one whole message is available. Frames that were
// fully read before the peer disconnected are still delivered.
func (s *Stream) Receive() (protocol.Message, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	for {
		if s.isClosed() {
			return protocol.Message{}, ErrChannelClosed
		}
		if s.failed != nil {
			return protocol.Message{}, s.failed
		}

		msg, ok, err := s.dec.Next()
		if err != nil {
			s.failed = err
			return protocol.Message{}, err
		}
		if ok {
			return msg, nil
		}
		if s.readErr != nil {
			s.failed = s.readFailure(s.readErr)
			return protocol.Message{}, s.failed
		}

		n, rerr := s.r.Read(s.chunk)
		if n > 0 {
			_, _ = s.dec.Write(s.chunk[:n])
		}
		if rerr != nil {
			if s.isClosed() {
				return protocol.Message{}, ErrChannelClosed
			}
			s.readErr = rerr
		}
	}
}

func (s *Stream) readFailure(err error) error {
	err = normalizeIOError(err)
	if errors.Is(err, io.EOF) && s.dec.Buffered() > 0 {
		err = io.ErrUnexpectedEOF
	}
	return &TransportError{Op: "receive", Err: err}
}

// Close closes both streams and wakes a pending Receive. It is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		werr := s.w.Close()
		rerr := s.r.Close()
		s.closeErr = errors.Join(ignoreClosed(werr), ignoreClosed(rerr))
	})
	return s.closeErr
}

func (s *Stream) isClosed() bool { return isDone(s.closed) }

// normalizeIOError maps the errors a broken pipe surfaces as onto io.EOF.
func normalizeIOError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, os.ErrClosed):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return err
	}
	var perr *os.PathError
	if errors.As(err, &perr) && isBrokenPipe(perr.Err) {
		return io.EOF
	}
	if isBrokenPipe(err) {
		return io.EOF
	}
	return err
}

func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
