// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/invowk/bricks/internal/channel"
	"github.com/invowk/bricks/internal/container"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
	"github.com/invowk/bricks/internal/testutil"
)

const testTimeout = 30 * time.Second

func TestRun_HelloOverPipes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	stdout := &testutil.Buffer{}
	d := New(Options{Strategies: newTestSet(newFakeEngine()), Stdout: stdout})

	result, err := d.Run(ctx, lookup(t, runnable.IDHello), isolation.ModeAnonymousPipes)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != protocol.ExitSuccess {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if got := result.Stdout(); got != "hello" {
		t.Errorf("Stdout() = %q, want %q", got, "hello")
	}
	if got := stdout.String(); got != "hello" {
		t.Errorf("stdout sink = %q, want %q", got, "hello")
	}
	if result.WorkerID == "" {
		t.Error("WorkerID is empty")
	}
	if !result.WorkerExited || result.WorkerExitCode != protocol.ExitSuccess {
		t.Errorf("worker exited = %v with %d, want exited with 0", result.WorkerExited, result.WorkerExitCode)
	}
}

func TestRun_FaultIsReportedInEveryMode(t *testing.T) {
	t.Parallel()

	modes := []isolation.Mode{
		isolation.ModeInProcess,
		isolation.ModeAnonymousPipes,
		isolation.ModeDocker,
		isolation.ModeWindowsContainer,
	}

	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()

			d := New(Options{Strategies: newTestSet(newFakeEngine())})
			result, err := d.Run(ctx, lookup(t, runnable.IDFail), mode)

			var fault *RemoteFault
			if !errors.As(err, &fault) {
				t.Fatalf("Run() error = %v, want *RemoteFault", err)
			}
			if !errors.Is(err, ErrRemoteFault) {
				t.Error("errors.Is(err, ErrRemoteFault) = false")
			}
			if IsInfrastructure(err) {
				t.Error("IsInfrastructure(fault) = true")
			}
			if fault.Kind != protocol.FaultError {
				t.Errorf("Kind = %q, want %q", fault.Kind, protocol.FaultError)
			}
			if !strings.Contains(fault.Description, runnable.ErrDemoFailure.Error()) {
				t.Errorf("Description = %q, want it to mention %q", fault.Description, runnable.ErrDemoFailure)
			}
			if result == nil {
				t.Fatal("result is nil")
			}
			if !result.WorkerExited || result.WorkerExitCode != protocol.ExitFault {
				t.Errorf("worker exited = %v with %d, want exited with %d",
					result.WorkerExited, result.WorkerExitCode, protocol.ExitFault)
			}
		})
	}
}

func TestRun_MissingImage(t *testing.T) {
	t.Parallel()

	for _, mode := range []isolation.Mode{isolation.ModeDocker, isolation.ModeWindowsContainer} {
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			engine := testutil.NewFakeEngine(testCatalog())
			d := New(Options{Strategies: newTestSet(engine)})

			result, err := d.Run(context.Background(), lookup(t, runnable.IDHello), mode)
			if !errors.Is(err, ErrLaunch) {
				t.Fatalf("Run() error = %v, want ErrLaunch", err)
			}
			if !errors.Is(err, container.ErrImageNotFound) {
				t.Errorf("errors.Is(err, container.ErrImageNotFound) = false for %v", err)
			}
			var launchErr *LaunchError
			if !errors.As(err, &launchErr) || launchErr.Mode != mode {
				t.Errorf("LaunchError mode mismatch: %v", err)
			}
			if result != nil {
				t.Errorf("result = %+v, want nil", result)
			}
			if n := len(engine.Created()); n != 0 {
				t.Errorf("created %d containers, want 0", n)
			}
			if !IsInfrastructure(err) {
				t.Error("IsInfrastructure(launch error) = false")
			}
		})
	}
}

func TestRun_IsolationTransparency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		desc func(t *testing.T) runnable.Descriptor
	}{
		{"uppercase", func(t *testing.T) runnable.Descriptor {
			return withArgs(lookup(t, runnable.IDUppercase), "alpha", "beta", "gamma")
		}},
		{"uppercase without input", func(t *testing.T) runnable.Descriptor {
			return lookup(t, runnable.IDUppercase)
		}},
		{"chatty", func(t *testing.T) runnable.Descriptor {
			return lookup(t, "test.chatty")
		}},
		{"exit status", func(t *testing.T) runnable.Descriptor {
			return lookup(t, "test.status")
		}},
		{"output larger than a frame", func(t *testing.T) runnable.Descriptor {
			return lookup(t, "test.bulk")
		}},
	}

	modes := []isolation.Mode{
		isolation.ModeAnonymousPipes,
		isolation.ModeDocker,
		isolation.ModeWindowsContainer,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()

			d := New(Options{Strategies: newTestSet(newFakeEngine())})
			desc := tt.desc(t)

			want, wantErr := d.Run(ctx, desc, isolation.ModeInProcess)
			if wantErr != nil {
				t.Fatalf("in-process Run() error = %v", wantErr)
			}

			for _, mode := range modes {
				got, err := d.Run(ctx, desc, mode)
				if err != nil {
					t.Fatalf("%s Run() error = %v", mode, err)
				}
				if got.ExitCode != want.ExitCode {
					t.Errorf("%s ExitCode = %d, want %d", mode, got.ExitCode, want.ExitCode)
				}
				if !reflect.DeepEqual(got.Output, want.Output) {
					t.Errorf("%s output differs from in-process:\ngot:  %q\nwant: %q", mode, got.Output, want.Output)
				}
			}
		})
	}
}

func TestRun_ExitStatus(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	d := New(Options{Strategies: newTestSet(newFakeEngine())})
	result, err := d.Run(ctx, lookup(t, "test.status"), isolation.ModeAnonymousPipes)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 4 {
		t.Errorf("ExitCode = %d, want 4", result.ExitCode)
	}
	if got := result.Stderr(); got != "almost" {
		t.Errorf("Stderr() = %q, want %q", got, "almost")
	}
	if !result.WorkerExited || result.WorkerExitCode != 4 {
		t.Errorf("worker exited = %v with %d, want exited with 4", result.WorkerExited, result.WorkerExitCode)
	}
}

func TestRun_SinksReceiveEveryChunk(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	stdout, stderr := &testutil.Buffer{}, &testutil.Buffer{}
	d := New(Options{Strategies: newTestSet(newFakeEngine()), Stdout: stdout, Stderr: stderr})

	result, err := d.Run(ctx, lookup(t, "test.chatty"), isolation.ModeAnonymousPipes)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, want := stdout.String(), result.Stdout(); got != want {
		t.Errorf("stdout sink = %q, want %q", got, want)
	}
	if got, want := stderr.String(), result.Stderr(); got != want {
		t.Errorf("stderr sink = %q, want %q", got, want)
	}
	if !strings.HasSuffix(result.Stdout(), "line 99\n") {
		t.Errorf("Stdout() is incomplete: %q", result.Stdout())
	}
}

func TestRun_CancelStopsWorkerWithinGrace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		id       string
		args     []string
		grace    time.Duration
		maxTotal time.Duration
	}{
		// The worker notices the closed channel and stops the runnable.
		{name: "cooperative", id: runnable.IDSleep, args: []string{"1h"}, grace: 5 * time.Second, maxTotal: 5 * time.Second},
		// The runnable ignores cancellation, so the worker is killed after the grace period.
		{name: "stubborn", id: "test.stubborn", grace: 300 * time.Millisecond, maxTotal: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(200*time.Millisecond, cancel)

			d := New(Options{Strategies: newTestSet(newFakeEngine()), GracePeriod: tt.grace})
			start := time.Now()
			result, err := d.Run(ctx, withArgs(lookup(t, tt.id), tt.args...), isolation.ModeAnonymousPipes)
			elapsed := time.Since(start)

			var cancelled *CancelledError
			if !errors.As(err, &cancelled) {
				t.Fatalf("Run() error = %v, want *CancelledError", err)
			}
			if !errors.Is(err, context.Canceled) {
				t.Error("errors.Is(err, context.Canceled) = false")
			}
			if !IsInfrastructure(err) {
				t.Error("IsInfrastructure(cancelled) = false")
			}
			if elapsed > tt.maxTotal {
				t.Errorf("Run() took %s, want at most %s", elapsed, tt.maxTotal)
			}
			if !result.WorkerExited {
				t.Fatal("worker was not reaped")
			}
			if result.WorkerExitCode != protocol.ExitTerminated {
				t.Errorf("WorkerExitCode = %d, want %d", result.WorkerExitCode, protocol.ExitTerminated)
			}
		})
	}
}

func TestRun_CancelInProcess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	d := New(Options{Strategies: newTestSet(newFakeEngine())})
	result, err := d.Run(ctx, withArgs(lookup(t, runnable.IDSleep), "1h"), isolation.ModeInProcess)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if !result.WorkerExited {
		t.Error("in-process worker was not reaped")
	}
}

func TestRun_CancelledDuringPrepare(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strategy := &cancellingStrategy{mode: isolation.ModeAnonymousPipes, cancel: cancel}
	d := New(Options{Strategies: isolation.NewSet(strategy)})
	result, err := d.Run(ctx, lookup(t, runnable.IDHello), isolation.ModeAnonymousPipes)

	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("Run() error = %v, want *CancelledError", err)
	}
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Run() error = %v, want ErrCancelled", err)
	}
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		t.Errorf("Run() error = %v, should not be a launch error", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newFakeEngine()
	d := New(Options{Strategies: newTestSet(engine)})
	result, err := d.Run(ctx, lookup(t, runnable.IDHello), isolation.ModeDocker)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if n := len(engine.Created()); n != 0 {
		t.Errorf("created %d containers, want 0", n)
	}
}

func TestRun_WorkerCrash(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	d := New(Options{Strategies: newTestSet(newFakeEngine())})
	result, err := d.Run(ctx, lookup(t, "test.crash"), isolation.ModeAnonymousPipes)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Run() error = %v, want ErrTransport", err)
	}
	if !channel.IsDisconnect(err) {
		t.Errorf("channel.IsDisconnect(%v) = false", err)
	}
	if got := result.Stdout(); got != "partial" {
		t.Errorf("Stdout() = %q, want the output sent before the crash", got)
	}
	if !result.WorkerExited || result.WorkerExitCode != 3 {
		t.Errorf("worker exited = %v with %d, want exited with 3", result.WorkerExited, result.WorkerExitCode)
	}
}

func TestRun_ScriptedWorkerFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		script     func(ch channel.Channel, raw io.Writer)
		wantErr    error
		wantStdout string
	}{
		{
			name: "worker sends invoke",
			script: func(ch channel.Channel, _ io.Writer) {
				msg, _ := ch.Receive()
				_ = ch.Send(msg)
				_, _ = ch.Receive()
			},
			wantErr: ErrProtocolViolation,
		},
		{
			name: "malformed frame",
			script: func(ch channel.Channel, raw io.Writer) {
				_, _ = ch.Receive()
				_ = ch.Send(protocol.NewOutput(protocol.StreamStdout, []byte("before")))
				_, _ = raw.Write([]byte{0, 0, 0, 1, 0x7f})
				_, _ = ch.Receive()
			},
			wantErr:    protocol.ErrProtocolViolation,
			wantStdout: "before",
		},
		{
			name: "disconnect after output",
			script: func(ch channel.Channel, _ io.Writer) {
				_, _ = ch.Receive()
				_ = ch.Send(protocol.NewOutput(protocol.StreamStdout, []byte("part")))
			},
			wantErr:    ErrTransport,
			wantStdout: "part",
		},
		{
			name: "disconnect before any message",
			script: func(ch channel.Channel, _ io.Writer) {
				_, _ = ch.Receive()
			},
			wantErr: ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()

			set := isolation.NewSet(&scriptedStrategy{mode: isolation.ModeInProcess, script: tt.script})
			d := New(Options{Strategies: set, GracePeriod: time.Second})

			result, err := d.Run(ctx, lookup(t, runnable.IDHello), isolation.ModeInProcess)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if !IsInfrastructure(err) {
				t.Errorf("IsInfrastructure(%v) = false", err)
			}
			if got := result.Stdout(); got != tt.wantStdout {
				t.Errorf("Stdout() = %q, want %q", got, tt.wantStdout)
			}
			if !result.WorkerExited {
				t.Error("scripted worker was not released")
			}
		})
	}
}

func TestRun_InvalidRequests(t *testing.T) {
	t.Parallel()

	hello := runnable.Descriptor{ID: runnable.IDHello, Name: "Hello", Kind: runnable.KindBuiltin, Location: runnable.IDHello}

	tests := []struct {
		name    string
		set     *isolation.Set
		desc    runnable.Descriptor
		mode    isolation.Mode
		wantErr error
	}{
		{"invalid mode", newTestSet(newFakeEngine()), hello, isolation.Mode("teleport"), isolation.ErrInvalidMode},
		{"empty mode", newTestSet(newFakeEngine()), hello, isolation.Mode(""), isolation.ErrInvalidMode},
		{"invalid descriptor", newTestSet(newFakeEngine()), runnable.Descriptor{}, isolation.ModeInProcess, runnable.ErrInvalidDescriptor},
		{"mode without strategy", isolation.NewSet(), hello, isolation.ModeDocker, isolation.ErrUnsupportedMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := New(Options{Strategies: tt.set})
			result, err := d.Run(context.Background(), tt.desc, tt.mode)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if result != nil {
				t.Errorf("result = %+v, want nil", result)
			}
		})
	}
}

func TestRunDefault(t *testing.T) {
	t.Parallel()

	d := New(Options{Strategies: newTestSet(newFakeEngine()), DefaultMode: isolation.ModeAnonymousPipes})
	if d.DefaultMode() != isolation.ModeAnonymousPipes {
		t.Fatalf("DefaultMode() = %q", d.DefaultMode())
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	result, err := d.RunDefault(ctx, lookup(t, runnable.IDHello))
	if err != nil {
		t.Fatalf("RunDefault() error = %v", err)
	}
	if result.Mode != isolation.ModeAnonymousPipes {
		t.Errorf("Mode = %q, want %q", result.Mode, isolation.ModeAnonymousPipes)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	d := New(Options{})
	if d.DefaultMode() != isolation.ModeInProcess {
		t.Errorf("DefaultMode() = %q, want %q", d.DefaultMode(), isolation.ModeInProcess)
	}
	if d.grace != DefaultGracePeriod {
		t.Errorf("grace = %s, want %s", d.grace, DefaultGracePeriod)
	}
}

func TestRun_ConcurrentExecutions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	engine := newFakeEngine()
	d := New(Options{Strategies: newTestSet(engine)})
	modes := []isolation.Mode{isolation.ModeInProcess, isolation.ModeAnonymousPipes, isolation.ModeDocker}
	uppercase := lookup(t, runnable.IDUppercase)

	var wg sync.WaitGroup
	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mode := modes[i%len(modes)]
			word := fmt.Sprintf("word%d", i)
			result, err := d.Run(ctx, withArgs(uppercase, word), mode)
			if err != nil {
				t.Errorf("run %d (%s) error = %v", i, mode, err)
				return
			}
			if want := strings.ToUpper(word) + "\n"; result.Stdout() != want {
				t.Errorf("run %d (%s) Stdout() = %q, want %q", i, mode, result.Stdout(), want)
			}
		}()
	}
	wg.Wait()

	if created, removed := len(engine.Created()), len(engine.Removed()); created != removed {
		t.Errorf("created %d containers but removed %d", created, removed)
	}
}

func TestIsInfrastructure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"remote fault", &RemoteFault{Runnable: "x", Kind: protocol.FaultError}, false},
		{"wrapped remote fault", fmt.Errorf("run: %w", &RemoteFault{Runnable: "x"}), false},
		{"launch", &LaunchError{Runnable: "x", Err: errors.New("boom")}, true},
		{"transport", &TransportError{Runnable: "x", Err: io.EOF}, true},
		{"violation", &ProtocolViolationError{Runnable: "x", Reason: "bad"}, true},
		{"cancelled", &CancelledError{Runnable: "x", Err: context.Canceled}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsInfrastructure(tt.err); got != tt.want {
				t.Errorf("IsInfrastructure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
