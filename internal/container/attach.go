// SPDX-License-Identifier: MPL-2.0

package container

import (
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/sync/errgroup"
)

type (
	// rawConn is the subset of a hijacked attach connection an Attachment needs.
	rawConn interface {
		Reader() io.Reader
		Write(p []byte) (int, error)
		CloseWrite() error
		Close() error
	}

	hijackedConn struct {
		resp types.HijackedResponse
	}

	// attachStdin half-closes the connection on Close so the worker sees EOF
	// on stdin while stdout keeps flowing.
	attachStdin struct {
		conn rawConn
	}

	// attachStdout reads the demultiplexed stdout stream and tears down the
	// whole connection on Close.
	attachStdout struct {
		pr    *io.PipeReader
		conn  rawConn
		group *errgroup.Group
	}
)

func (h hijackedConn) Reader() io.Reader { return h.resp.Reader }

func (h hijackedConn) Write(p []byte) (int, error) { return h.resp.Conn.Write(p) }

func (h hijackedConn) CloseWrite() error { return h.resp.CloseWrite() }

func (h hijackedConn) Close() error {
	h.resp.Close()
	return nil
}

// newAttachment splits the multiplexed stream of conn into a stdout pipe and
// the stderr writer. A nil stderr discards diagnostics.
func newAttachment(conn rawConn, stderr io.Writer) *Attachment {
	if stderr == nil {
		stderr = io.Discard
	}

	pr, pw := io.Pipe()
	group := &errgroup.Group{}
	group.Go(func() error {
		_, err := stdcopy.StdCopy(pw, stderr, conn.Reader())
		if err == nil {
			err = io.EOF
		}
		pw.CloseWithError(err)
		return nil
	})

	return &Attachment{
		Stdin:  &attachStdin{conn: conn},
		Stdout: &attachStdout{pr: pr, conn: conn, group: group},
	}
}

func (s *attachStdin) Write(p []byte) (int, error) { return s.conn.Write(p) }

func (s *attachStdin) Close() error { return s.conn.CloseWrite() }

func (s *attachStdout) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *attachStdout) Close() error {
	err := s.pr.Close()
	_ = s.conn.Close()
	_ = s.group.Wait()
	return err
}
