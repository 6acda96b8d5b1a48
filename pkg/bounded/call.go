// Package bounded runs collaborator calls under a hard deadline.
package bounded

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the call did not finish before the deadline.
var ErrTimeout = errors.New("collaborator call timed out")

// Call runs fn with a context limited to timeout and returns as soon as either
// fn finishes or the deadline passes, even if fn ignores its context.
// A non-positive timeout runs fn without a deadline.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(callCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}
