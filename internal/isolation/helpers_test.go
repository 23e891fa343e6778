// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

const testTimeout = 30 * time.Second

type exchange struct {
	stdout   string
	stderr   string
	terminal protocol.Message
}

func lookup(t *testing.T, id string) runnable.Descriptor {
	t.Helper()

	desc, err := testCatalog().Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%q) failed: %v", id, err)
	}
	return desc
}

// runExchange sends Invoke on ch and collects messages up to the terminal one.
func runExchange(t *testing.T, ch channel.Channel, desc runnable.Descriptor, args ...string) exchange {
	t.Helper()

	if err := ch.Send(protocol.NewInvoke(desc, args)); err != nil {
		t.Fatalf("Send(invoke) failed: %v", err)
	}

	var out, errOut strings.Builder
	for {
		msg, err := ch.Receive()
		if err != nil {
			t.Fatalf("Receive failed after stdout %q: %v", out.String(), err)
		}
		switch msg.Kind {
		case protocol.KindOutput:
			if msg.Output.Stream == protocol.StreamStderr {
				errOut.Write(msg.Output.Data)
			} else {
				out.Write(msg.Output.Data)
			}
		case protocol.KindFault, protocol.KindCompleted:
			return exchange{stdout: out.String(), stderr: errOut.String(), terminal: msg}
		default:
			t.Fatalf("unexpected message %s", msg)
		}
	}
}

func waitExit(t *testing.T, h WorkerHandle) protocol.ExitCode {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	code, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	return code
}

func dispose(t *testing.T, s Strategy, h WorkerHandle, ch channel.Channel) {
	t.Helper()

	_ = ch.Close()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := s.Dispose(ctx, h); err != nil {
		t.Errorf("Dispose() failed: %v", err)
	}
	if !h.Exited() {
		t.Error("worker still running after Dispose()")
	}
}
