package taskscope

import (
	"context"
	"errors"
)

// Run creates a [Group], lets fn fork tasks into it, joins it with ctx and
// returns the join result together with a snapshot of every outcome.
//
// If fn returns an error the group is cancelled before joining and the
// error is returned alongside the (Cancelled) join result. The group is
// always released, even if fn panics.
//
//	res, out, err := taskscope.Run(ctx, func(g *taskscope.Group[int]) error {
//	    for i := range 5 {
//	        g.Fork(func(ctx context.Context) (int, error) { return i * i, nil })
//	    }
//	    return nil
//	})
func Run[T any](ctx context.Context, fn func(g *Group[T]) error, opts ...Option) (JoinResult, Results[T], error) {
	g := NewGroup[T](ctx, opts...)
	defer g.Close()

	if err := fn(g); err != nil {
		g.Cancel()
		res, _ := g.Join(ctx)
		return res, g.Results(), err
	}

	res, err := g.Join(ctx)
	return res, g.Results(), err
}

// ForEach runs fn for every item concurrently under [ShutdownOnFailure]
// and returns the triggering failure, if any. Other options, such as
// [WithLimit] or [WithBoundedPool], are applied after the policy.
//
//	err := taskscope.ForEach(ctx, urls, func(ctx context.Context, u string) error {
//	    return fetch(ctx, u)
//	}, taskscope.WithLimit(10))
func ForEach[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) error, opts ...Option) error {
	opts = append([]Option{WithPolicy(ShutdownOnFailure)}, opts...)
	res, out, err := Run(ctx, func(g *Group[struct{}]) error {
		for _, item := range items {
			if stop, err := forked(g.Fork(func(ctx context.Context) (struct{}, error) {
				return struct{}{}, fn(ctx, item)
			})); stop {
				return err
			}
		}
		return nil
	}, opts...)
	if err != nil {
		return err
	}
	return joinError(ctx, res, out)
}

// Map runs fn for every item concurrently under [ShutdownOnFailure] and
// returns the results in input order. On failure Map returns nil and the
// triggering *TaskError; the task id equals the item's index. Pass
// WithPolicy(WaitAll) to let every item run; the failures are then
// returned joined.
//
//	prices, err := taskscope.Map(ctx, products, func(ctx context.Context, p Product) (float64, error) {
//	    return fetchPrice(ctx, p)
//	}, taskscope.WithLimit(5))
func Map[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), opts ...Option) ([]R, error) {
	opts = append([]Option{WithPolicy(ShutdownOnFailure)}, opts...)
	res, out, err := Run(ctx, func(g *Group[R]) error {
		for _, item := range items {
			if stop, err := forked(g.Fork(func(ctx context.Context) (R, error) {
				return fn(ctx, item)
			})); stop {
				return err
			}
		}
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if err := joinError(ctx, res, out); err != nil {
		return nil, err
	}

	results := make([]R, len(items))
	for i := range items {
		results[i] = out[TaskID(i)].Value
	}
	return results, nil
}

// forked reports whether a fan-out loop should stop after a Fork call.
// ErrGroupClosed means the group was stopped by its policy or its context;
// Join reports that, so the error itself is dropped.
func forked(_ TaskID, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrGroupClosed) {
		return true, nil
	}
	return true, err
}

// joinError turns a non-successful join into an error. Under WaitAll the
// failures are joined in task order.
func joinError[T any](ctx context.Context, res JoinResult, out Results[T]) error {
	switch res.Status {
	case FailureTriggeredShutdown:
		return res.Failure
	case TimedOut:
		return context.DeadlineExceeded
	case JoinCancelled:
		if err := context.Cause(ctx); err != nil {
			return err
		}
		return ErrGroupCancelled
	default:
		return errors.Join(out.Errors()...)
	}
}
