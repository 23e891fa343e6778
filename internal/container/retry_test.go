// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errFlaky     = errors.New("flaky")
	errPermanent = errors.New("permanent")
)

func flakyOnly(err error) bool { return errors.Is(err, errFlaky) }

func TestBackoff_Do(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		attempts  int
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{name: "first call succeeds", attempts: 3, wantCalls: 1},
		{name: "recovers after transient failures", attempts: 5, failures: []error{errFlaky, errFlaky}, wantCalls: 3},
		{name: "gives up after the last attempt", attempts: 3, failures: []error{errFlaky, errFlaky, errFlaky, errFlaky}, wantCalls: 3, wantErr: errFlaky},
		{name: "permanent failure stops at once", attempts: 5, failures: []error{errPermanent}, wantCalls: 1, wantErr: errPermanent},
		{name: "zero attempts still calls once", attempts: 0, failures: []error{errFlaky}, wantCalls: 1, wantErr: errFlaky},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := Backoff{Attempts: tt.attempts, Base: time.Millisecond, Retryable: flakyOnly}
			calls := 0
			err := b.Do(context.Background(), func(context.Context) error {
				defer func() { calls++ }()
				if calls < len(tt.failures) {
					return tt.failures[calls]
				}
				return nil
			})

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Do() error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestBackoff_CancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	b := Backoff{Attempts: 5, Base: time.Hour, Retryable: flakyOnly}

	calls := 0
	err := b.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if !errors.Is(err, errFlaky) {
		t.Errorf("Do() error = %v, want it to keep the last failure", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoff_DefaultClassifier(t *testing.T) {
	t.Parallel()

	b := Backoff{Attempts: 3, Base: time.Millisecond}
	calls := 0
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return errPermanent
	})
	if !errors.Is(err, errPermanent) || calls != 1 {
		t.Errorf("Do() = %v after %d calls, want one call with the permanent error", err, calls)
	}
}

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: 100 * time.Millisecond, Max: 350 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 0},
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 350 * time.Millisecond},
		{attempt: 70, want: 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
