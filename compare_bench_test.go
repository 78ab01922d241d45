package taskscope_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sourcegraph/conc"
	conciter "github.com/sourcegraph/conc/iter"
	concpool "github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/taskscope"
)

// Each scenario pairs a taskscope benchmark with the closest equivalent
// built on errgroup or conc. The baselines do only what taskscope does for
// the same scenario: per-task outcomes, retained results, bounded workers.

var errBench = errors.New("bench failure")

func benchSizes(b *testing.B, sizes []int, fn func(b *testing.B, n int)) {
	for _, n := range sizes {
		b.Run(fmt.Sprintf("tasks=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			fn(b, n)
		})
	}
}

// Outcomes: every task yields a value or an error and the caller gets one
// outcome per task, failures included.

type outcome struct {
	v   int
	err error
}

func BenchmarkOutcomes_Errgroup(b *testing.B) {
	benchSizes(b, []int{10, 100, 1000}, func(b *testing.B, n int) {
		for range b.N {
			out := make([]outcome, n)
			var g errgroup.Group
			for i := range n {
				g.Go(func() error {
					if i%10 == 0 {
						out[i] = outcome{err: errBench}
					} else {
						out[i] = outcome{v: i}
					}
					return nil // errgroup would drop every error but the first
				})
			}
			_ = g.Wait()
		}
	})
}

func BenchmarkOutcomes_ConcWaitGroup(b *testing.B) {
	benchSizes(b, []int{10, 100, 1000}, func(b *testing.B, n int) {
		for range b.N {
			out := make([]outcome, n)
			var wg conc.WaitGroup
			for i := range n {
				wg.Go(func() {
					if i%10 == 0 {
						out[i] = outcome{err: errBench}
						return
					}
					out[i] = outcome{v: i}
				})
			}
			wg.Wait()
		}
	})
}

func BenchmarkOutcomes_Taskscope(b *testing.B) {
	benchSizes(b, []int{10, 100, 1000}, func(b *testing.B, n int) {
		for range b.N {
			g := taskscope.NewGroup[int](context.Background())
			for i := range n {
				_, _ = g.Fork(func(context.Context) (int, error) {
					if i%10 == 0 {
						return 0, errBench
					}
					return i, nil
				})
			}
			_, _ = g.Join(context.Background())
			_ = g.Results()
		}
	})
}

// Shutdown: one task fails, the others block until cancelled, and the
// results gathered before the failure are kept.

func BenchmarkShutdown_Errgroup(b *testing.B) {
	benchSizes(b, []int{50}, func(b *testing.B, n int) {
		for range b.N {
			vals := make([]int, n)
			g, ctx := errgroup.WithContext(context.Background())
			for i := range n {
				g.Go(func() error {
					switch {
					case i == n/2:
						return errBench
					case i%2 == 0:
						vals[i] = i
						return nil
					}
					<-ctx.Done()
					return ctx.Err()
				})
			}
			_ = g.Wait()
		}
	})
}

func BenchmarkShutdown_ConcResultPool(b *testing.B) {
	benchSizes(b, []int{50}, func(b *testing.B, n int) {
		for range b.N {
			p := concpool.NewWithResults[int]().
				WithContext(context.Background()).
				WithCancelOnError()
			for i := range n {
				p.Go(func(ctx context.Context) (int, error) {
					switch {
					case i == n/2:
						return 0, errBench
					case i%2 == 0:
						return i, nil
					}
					<-ctx.Done()
					return 0, ctx.Err()
				})
			}
			_, _ = p.Wait()
		}
	})
}

func BenchmarkShutdown_Taskscope(b *testing.B) {
	benchSizes(b, []int{50}, func(b *testing.B, n int) {
		for range b.N {
			g := taskscope.NewGroup[int](context.Background(),
				taskscope.WithPolicy(taskscope.ShutdownOnFailure))
			for i := range n {
				_, _ = g.Fork(func(ctx context.Context) (int, error) {
					switch {
					case i == n/2:
						return 0, errBench
					case i%2 == 0:
						return i, nil
					}
					<-ctx.Done()
					return 0, context.Cause(ctx)
				})
			}
			_, _ = g.Join(context.Background())
		}
	})
}

// Bounded: a fixed number of workers drains a queue longer than the
// worker count.

func BenchmarkBounded_ErrgroupLimit(b *testing.B) {
	benchSizes(b, []int{100, 1000}, func(b *testing.B, n int) {
		for range b.N {
			var g errgroup.Group
			g.SetLimit(8)
			for range n {
				g.Go(func() error { return nil })
			}
			_ = g.Wait()
		}
	})
}

func BenchmarkBounded_ConcPool(b *testing.B) {
	benchSizes(b, []int{100, 1000}, func(b *testing.B, n int) {
		for range b.N {
			p := concpool.New().WithMaxGoroutines(8)
			for range n {
				p.Go(func() {})
			}
			p.Wait()
		}
	})
}

func BenchmarkBounded_TaskscopePool(b *testing.B) {
	benchSizes(b, []int{100, 1000}, func(b *testing.B, n int) {
		pool := taskscope.NewBoundedPool(context.Background(), 8)
		defer pool.Close(context.Background())

		b.ResetTimer()
		for range b.N {
			g := taskscope.NewGroup[struct{}](context.Background(), taskscope.WithPool(pool))
			for range n {
				_, _ = g.Fork(func(context.Context) (struct{}, error) { return struct{}{}, nil })
			}
			_, _ = g.Join(context.Background())
		}
	})
}

func BenchmarkBounded_TaskscopeLimit(b *testing.B) {
	benchSizes(b, []int{100, 1000}, func(b *testing.B, n int) {
		for range b.N {
			g := taskscope.NewGroup[struct{}](context.Background(), taskscope.WithLimit(8))
			for range n {
				_, _ = g.Fork(func(context.Context) (struct{}, error) { return struct{}{}, nil })
			}
			_, _ = g.Join(context.Background())
		}
	})
}

// Ordered map: results come back in input order.

func BenchmarkOrderedMap_ConcIter(b *testing.B) {
	benchSizes(b, []int{1000}, func(b *testing.B, n int) {
		in := make([]int, n)
		for i := range in {
			in[i] = i
		}
		mapper := conciter.Mapper[int, int]{MaxGoroutines: 8}

		b.ResetTimer()
		for range b.N {
			_ = mapper.Map(in, func(v *int) int { return *v + 1 })
		}
	})
}

func BenchmarkOrderedMap_Taskscope(b *testing.B) {
	benchSizes(b, []int{1000}, func(b *testing.B, n int) {
		in := make([]int, n)
		for i := range in {
			in[i] = i
		}

		b.ResetTimer()
		for range b.N {
			_, _ = taskscope.Map(context.Background(), in, func(_ context.Context, v int) (int, error) {
				return v + 1, nil
			}, taskscope.WithBoundedPool(8))
		}
	})
}
