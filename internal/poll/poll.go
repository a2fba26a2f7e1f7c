// Package poll repeats a check on a fixed interval until it reports done,
// the caller cancels, or the attempt ceiling is reached.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 40
)

// ErrTimeout is returned when MaxAttempts checks ran without success.
var ErrTimeout = errors.New("poll: gave up waiting")

type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Ceiling is the longest Until can run with these options.
func (o Options) Ceiling() time.Duration {
	o = o.withDefaults()
	return time.Duration(o.MaxAttempts) * o.Interval
}

// Stop marks err as final: Until returns it at once instead of retrying.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Check reports whether the awaited condition holds.
type Check func(ctx context.Context) (bool, error)

// Until waits one interval before each call to check. A failing check counts
// as an attempt and polling carries on; the last failure is attached to
// ErrTimeout if the ceiling is hit. An error wrapped with Stop ends polling
// and is returned unwrapped.
func Until(ctx context.Context, opts Options, check Check) error {
	opts = opts.withDefaults()
	timer := time.NewTimer(opts.Interval)
	defer timer.Stop()

	var lastErr error
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		done, err := check(ctx)
		if err == nil && done {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var stop *stopError
			if errors.As(err, &stop) {
				return stop.err
			}
			lastErr = err
		}
		if attempt >= opts.MaxAttempts {
			if lastErr != nil {
				return fmt.Errorf("%w after %d attempts: %w", ErrTimeout, attempt, lastErr)
			}
			return fmt.Errorf("%w after %d attempts", ErrTimeout, attempt)
		}
		timer.Reset(opts.Interval)
	}
}
