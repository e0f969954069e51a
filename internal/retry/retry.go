// Package retry runs an operation a bounded number of times with a delay schedule.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type permanentError struct {
	err error
}

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, ctx ends, or
// maxAttempts calls have been made. Before attempt n+1 it waits delays[n-1];
// the last delay repeats when there are fewer delays than attempts, and no
// delays means no waiting.
func Do(ctx context.Context, fn func(context.Context) error, maxAttempts int, delays ...time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == maxAttempts {
			break
		}

		wait := delay(delays, attempt-1)
		if wait <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, err)
}

func delay(delays []time.Duration, i int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if i >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[i]
}
