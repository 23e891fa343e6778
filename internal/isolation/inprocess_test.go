// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

func TestInProcess_Hello(t *testing.T) {
	t.Parallel()

	s := NewInProcess(testCatalog(), nil)
	h, ch, err := s.Prepare(context.Background(), lookup(t, runnable.IDHello))
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	defer dispose(t, s, h, ch)

	if !strings.HasPrefix(h.ID(), "inproc-") {
		t.Errorf("ID() = %q, want inproc- prefix", h.ID())
	}

	ex := runExchange(t, ch, lookup(t, runnable.IDHello))
	if ex.stdout != "hello" {
		t.Errorf("stdout = %q, want %q", ex.stdout, "hello")
	}
	if ex.terminal.Completed == nil || ex.terminal.Completed.ExitCode != protocol.ExitSuccess {
		t.Errorf("terminal = %s, want completed(0)", ex.terminal)
	}
	if code := waitExit(t, h); code != protocol.ExitSuccess {
		t.Errorf("Wait() = %d, want 0", code)
	}
}

func TestInProcess_SharesHostProcess(t *testing.T) {
	t.Parallel()

	s := NewInProcess(testCatalog(), nil)
	h, ch, err := s.Prepare(context.Background(), lookup(t, "test.pid"))
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	defer dispose(t, s, h, ch)

	ex := runExchange(t, ch, lookup(t, "test.pid"))
	if ex.stdout != fmt.Sprint(os.Getpid()) {
		t.Errorf("in-process worker ran in pid %s, host is %d", ex.stdout, os.Getpid())
	}
}

func TestInProcess_KillCancelsRunnable(t *testing.T) {
	t.Parallel()

	s := NewInProcess(testCatalog(), nil)
	desc := lookup(t, runnable.IDSleep)
	h, ch, err := s.Prepare(context.Background(), desc)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	defer dispose(t, s, h, ch)

	if err := ch.Send(protocol.NewInvoke(desc, []string{"1h"})); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill() failed: %v", err)
	}
	if code := waitExit(t, h); code != protocol.ExitTerminated {
		t.Errorf("Wait() = %d, want %d", code, protocol.ExitTerminated)
	}
}

func TestInProcess_NoCatalog(t *testing.T) {
	t.Parallel()

	_, _, err := NewInProcess(nil, nil).Prepare(context.Background(), lookup(t, runnable.IDHello))
	var le *LaunchError
	if !errors.As(err, &le) || le.Mode != ModeInProcess {
		t.Errorf("Prepare() error = %v, want *LaunchError", err)
	}
}
