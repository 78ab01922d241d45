package taskscope

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrNoSuccess is returned by [Race] when tasks is empty or every task was
// cancelled without an error of its own.
var ErrNoSuccess = errors.New("taskscope: no task succeeded")

// Race runs all tasks under [ShutdownOnSuccess] and returns the value of
// the first task whose success is recorded. The remaining tasks are
// cancelled and Race waits for them to settle before returning.
//
// If every task fails, Race returns the zero value and the failures
// joined in task order. If ctx is cancelled or its deadline passes before
// any task succeeds, Race returns the context error.
//
// Race panics if any element of tasks is nil.
func Race[T any](ctx context.Context, tasks []Op[T], opts ...Option) (T, error) {
	var zero T
	for i, fn := range tasks {
		if fn == nil {
			panic(fmt.Sprintf("taskscope: Race task[%d] must not be nil", i))
		}
	}
	if len(tasks) == 0 {
		return zero, ErrNoSuccess
	}

	opts = append(slices.Clip(opts), WithPolicy(ShutdownOnSuccess))
	res, out, err := Run(ctx, func(g *Group[T]) error {
		for _, fn := range tasks {
			if stop, err := forked(g.Fork(fn)); stop {
				return err
			}
		}
		return nil
	}, opts...)
	if err != nil {
		return zero, err
	}

	switch res.Status {
	case SuccessTriggeredShutdown:
		return out[res.Trigger].Value, nil
	case TimedOut, JoinCancelled:
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, joinError(ctx, res, out)
	}

	if errs := out.Errors(); len(errs) > 0 {
		return zero, errors.Join(errs...)
	}
	return zero, ErrNoSuccess
}
