// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"
)

// Backoff retries engine calls that fail transiently. The wait doubles
// after every attempt, up to Max when it is set.
type Backoff struct {
	// Attempts is the total number of calls, at least one.
	Attempts int
	// Base is the wait before the second attempt.
	Base time.Duration
	// Max caps the wait between attempts. Zero means no cap.
	Max time.Duration
	// Retryable reports whether a failed call may be repeated. Defaults to
	// IsTransientError.
	Retryable func(error) bool
}

// Do calls op until it succeeds, fails permanently, or the attempts run out.
// The last error is returned. Waiting ends early when ctx is cancelled.
func (b Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retryable := b.Retryable
	if retryable == nil {
		retryable = IsTransientError
	}

	var err error
	for attempt := range max(b.Attempts, 1) {
		if attempt > 0 {
			if werr := b.wait(ctx, attempt); werr != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w (last error: %w)", attempt, werr, err)
			}
		}
		if err = op(ctx); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// Delay returns the wait before the given attempt (1 is the first retry).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := b.Base
	for range attempt - 1 {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

func (b Backoff) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
