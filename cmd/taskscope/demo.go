package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/baxromumarov/taskscope"
)

type order struct {
	Number  int
	Product string
	Amount  int
}

type demo struct {
	cfg Config
	log *slog.Logger
	out io.Writer
	rng *rand.Rand
}

func newDemo(cfg Config, log *slog.Logger, out io.Writer) *demo {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &demo{
		cfg: cfg,
		log: log,
		out: out,
		rng: rand.New(rand.NewPCG(seed, seed)),
	}
}

func (d *demo) options(name string, extra ...taskscope.Option) []taskscope.Option {
	return append([]taskscope.Option{
		taskscope.WithName(name),
		taskscope.WithLogger(d.log),
		taskscope.WithGracePeriod(d.cfg.Grace),
	}, extra...)
}

// userOrders looks up a user and their orders concurrently and fails fast
// if either lookup fails.
func (d *demo) userOrders(ctx context.Context) error {
	g := taskscope.NewGroup[any](ctx, d.options("user-orders",
		taskscope.WithPolicy(taskscope.ShutdownOnFailure))...)
	defer g.Close()

	user, _ := taskscope.ForkTask(g, func(ctx context.Context) (any, error) {
		return findUser(ctx, "user123")
	})
	orders, _ := taskscope.ForkTask(g, func(ctx context.Context) (any, error) {
		return fetchOrders(ctx, "user123")
	})

	res, err := g.Join(ctx)
	if err != nil {
		return err
	}
	switch {
	case res.Failure != nil:
		return res.Failure
	case res.Status != taskscope.AllCompleted:
		return fmt.Errorf("lookup stopped: %s", res.Status)
	}

	u, err := user.Get()
	if err != nil {
		return err
	}
	o, err := orders.Get()
	if err != nil {
		return err
	}
	list := o.([]order)
	fmt.Fprintf(d.out, "- %s\n- %d orders:\n", u, len(list))
	for _, it := range list {
		fmt.Fprintf(d.out, "  * %d: %s (%d)\n", it.Number, it.Product, it.Amount)
	}
	return nil
}

func findUser(ctx context.Context, id string) (string, error) {
	if err := sleep(ctx, 50*time.Millisecond); err != nil {
		return "", err
	}
	return "User: " + id, nil
}

func fetchOrders(ctx context.Context, id string) ([]order, error) {
	if err := sleep(ctx, 70*time.Millisecond); err != nil {
		return nil, err
	}
	return []order{
		{Number: 1, Product: "product-a", Amount: 10000},
		{Number: 2, Product: "product-b", Amount: 20000},
	}, nil
}

type taskResult struct {
	Task   int
	Status string
}

// flakyBatch runs five tasks on the bounded pool where task 3 fails with
// probability FailRate. Every outcome is reported; a failure does not stop
// the others.
func (d *demo) flakyBatch(ctx context.Context) error {
	const n = 5

	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = time.Duration(d.rng.IntN(100)) * time.Millisecond
	}
	fail := d.rng.Float64() < d.cfg.FailRate

	g := taskscope.NewGroup[taskResult](ctx, d.options("flaky-batch",
		taskscope.WithBoundedPool(d.cfg.Workers))...)
	defer g.Close()

	for i := range n {
		if _, err := g.Fork(func(ctx context.Context) (taskResult, error) {
			if err := sleep(ctx, delays[i]); err != nil {
				return taskResult{}, err
			}
			if i == 3 && fail {
				return taskResult{}, fmt.Errorf("task %d: processing error", i)
			}
			return taskResult{Task: i, Status: "done"}, nil
		}); err != nil {
			return err
		}
	}

	if _, err := g.Join(ctx); err != nil {
		return err
	}

	out := g.Results()
	for _, err := range out.Errors() {
		fmt.Fprintln(d.out, "task failed:", err)
	}
	done := out.Values()
	fmt.Fprintln(d.out, "processed tasks:", len(done))
	for _, r := range done {
		fmt.Fprintf(d.out, "task %d: %s\n", r.Task, r.Status)
	}
	return nil
}

type itemResult struct {
	Item        string
	ProcessedAt time.Time
}

// deadlineBatch processes ten items and joins with a deadline. Items still
// running when it passes are cancelled.
func (d *demo) deadlineBatch(ctx context.Context) error {
	items := make([]string, 10)
	delays := make([]time.Duration, len(items))
	for i := range items {
		items[i] = fmt.Sprintf("item%d", i+1)
		delays[i] = time.Duration(d.rng.IntN(500)) * time.Millisecond
	}

	g := taskscope.NewGroup[itemResult](ctx, d.options("deadline-batch")...)
	defer g.Close()

	for i, item := range items {
		if _, err := g.Fork(func(ctx context.Context) (itemResult, error) {
			if err := sleep(ctx, delays[i]); err != nil {
				return itemResult{}, err
			}
			return itemResult{Item: item, ProcessedAt: time.Now()}, nil
		}); err != nil {
			return err
		}
	}

	res, err := g.JoinUntil(time.Now().Add(d.cfg.Deadline))
	if err != nil {
		return err
	}

	out := g.Results()
	done := out.Values()
	fmt.Fprintf(d.out, "%s: processed %d, cancelled %d\n",
		res.Status, len(done), out.Count(taskscope.Cancelled))
	for i := 0; i < 3 && i < len(done); i++ {
		fmt.Fprintf(d.out, "item %d: %s at %s\n", i+1, done[i].Item, done[i].ProcessedAt.Format(time.StampMilli))
	}
	if len(done) > 3 {
		fmt.Fprintf(d.out, "... %d more\n", len(done)-3)
	}
	return nil
}

// fanOut forks Tasks short sleeps onto the per-task pool.
func (d *demo) fanOut(ctx context.Context) error {
	pool := taskscope.NewPool(ctx, taskscope.WithPoolMetrics(100*time.Millisecond, func(s taskscope.PoolStats) {
		d.log.Debug("pool stats",
			slog.Int64("submitted", s.Submitted),
			slog.Int64("completed", s.Completed),
			slog.Int64("in_flight", s.InFlight),
		)
	}))
	defer pool.Close(context.Background())

	var counter atomic.Int64
	start := time.Now()
	_, out, err := taskscope.Run(ctx, func(g *taskscope.Group[int]) error {
		for i := range d.cfg.Tasks {
			if _, err := g.Fork(func(ctx context.Context) (int, error) {
				if err := sleep(ctx, 10*time.Millisecond); err != nil {
					return 0, err
				}
				counter.Add(1)
				return i, nil
			}); err != nil {
				if errors.Is(err, taskscope.ErrGroupClosed) {
					return nil
				}
				return err
			}
		}
		return nil
	}, d.options("fan-out", taskscope.WithPool(pool))...)
	if err != nil {
		return err
	}

	fmt.Fprintf(d.out, "completed tasks: %d (%d recorded) in %s\n",
		counter.Load(), out.Count(taskscope.Succeeded), time.Since(start).Round(time.Millisecond))
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
