// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"sync"

	"github.com/invowk/bricks/internal/protocol"
)

const localBufferSize = 64

// localEnd is one side of an in-memory channel pair. Messages are passed by
// value without serialization.
type localEnd struct {
	inbox     chan protocol.Message
	closed    chan struct{}
	closeOnce sync.Once
	peer      *localEnd
}

// NewLocalPair returns two connected in-memory channels. Messages sent on
// one are received on the other. Closing one end makes the other observe a
// disconnect once it has drained the messages already sent to it.
func NewLocalPair() (Channel, Channel) {
	a := &localEnd{inbox: make(chan protocol.Message, localBufferSize), closed: make(chan struct{})}
	b := &localEnd{inbox: make(chan protocol.Message, localBufferSize), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (e *localEnd) Send(msg protocol.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if isDone(e.closed) {
		return ErrChannelClosed
	}
	if isDone(e.peer.closed) {
		return disconnected("send")
	}

	select {
	case e.peer.inbox <- msg:
		return nil
	case <-e.closed:
		return ErrChannelClosed
	case <-e.peer.closed:
		return disconnected("send")
	}
}

func (e *localEnd) Receive() (protocol.Message, error) {
	if isDone(e.closed) {
		return protocol.Message{}, ErrChannelClosed
	}

	select {
	case msg := <-e.inbox:
		return msg, nil
	case <-e.closed:
		return protocol.Message{}, ErrChannelClosed
	case <-e.peer.closed:
		select {
		case msg := <-e.inbox:
			return msg, nil
		default:
			return protocol.Message{}, disconnected("receive")
		}
	}
}

func (e *localEnd) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
