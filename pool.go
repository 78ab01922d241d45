package taskscope

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
)

var (
	// ErrPoolClosed is returned by [Pool.Submit] when the pool has been closed.
	ErrPoolClosed = errors.New("taskscope: pool is closed")

	// ErrQueueFull is returned by [Pool.Submit] when a bounded pool's queue
	// is at the limit set by [WithQueueLimit].
	ErrQueueFull = errors.New("taskscope: pool queue is full")

	// ErrDetached is returned by [Pool.Close] when jobs did not return
	// before the close context expired. The jobs keep running in the
	// background but the pool no longer waits for them.
	ErrDetached = errors.New("taskscope: jobs detached before completion")
)

// Pool executes submitted jobs concurrently. A pool is created with one of
// two strategies:
//
//   - [NewPool]: one goroutine per job, no limit. Suited to numerous
//     I/O-bound jobs.
//   - [NewBoundedPool]: a fixed number of worker goroutines pulling jobs
//     from a FIFO queue.
//
// Submit never blocks the caller. Job failures and panics are reported only
// through the returned [Handle].
type Pool struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	workers    int // 0 for the per-job strategy
	queueLimit int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*job
	closed bool

	wg        conc.WaitGroup
	closeOnce sync.Once
	drained   chan struct{}

	// Observability counters.
	submitted atomic.Int64
	completed atomic.Int64
	errored   atomic.Int64
	cancelled atomic.Int64
	inFlight  atomic.Int64
}

// PoolStats provides a point-in-time snapshot of pool activity.
type PoolStats struct {
	Submitted  int64 // total jobs submitted
	Completed  int64 // jobs that ran to completion (success + error)
	Errored    int64 // jobs that returned a non-nil error or panicked
	Cancelled  int64 // jobs dropped before they started
	InFlight   int64 // jobs currently executing
	QueueDepth int   // jobs waiting in the queue (bounded pools only)
	Workers    int   // worker count, 0 for the per-job strategy
}

// PoolOption configures a [Pool].
type PoolOption func(*poolConfig)

type poolConfig struct {
	queueLimit      int
	onMetrics       func(PoolStats)
	metricsInterval time.Duration
}

// WithQueueLimit caps the number of queued jobs of a bounded pool. Once the
// cap is reached Submit fails with [ErrQueueFull] instead of blocking.
// Zero (the default) means the queue is unbounded. It has no effect on
// pools created with [NewPool].
func WithQueueLimit(n int) PoolOption {
	return func(c *poolConfig) {
		if n < 0 {
			panic("taskscope: WithQueueLimit requires non-negative size")
		}
		c.queueLimit = n
	}
}

// WithPoolMetrics registers a periodic pool metrics callback that fires
// every interval. The callback receives a snapshot of current pool counters.
//
// Panics if interval <= 0 or fn is nil.
func WithPoolMetrics(interval time.Duration, fn func(PoolStats)) PoolOption {
	if interval <= 0 {
		panic("taskscope: WithPoolMetrics requires interval > 0")
	}
	if fn == nil {
		panic("taskscope: WithPoolMetrics requires non-nil callback")
	}
	return func(c *poolConfig) {
		c.onMetrics = fn
		c.metricsInterval = interval
	}
}

// NewPool creates a pool that runs every job on its own goroutine.
// Cancelling ctx cancels every job; it does not close the pool.
func NewPool(ctx context.Context, opts ...PoolOption) *Pool {
	return newPool(ctx, 0, opts)
}

// NewBoundedPool creates a pool with n worker goroutines. Jobs submitted
// while every worker is busy wait in FIFO order.
// Panics if n <= 0.
func NewBoundedPool(ctx context.Context, n int, opts ...PoolOption) *Pool {
	if n <= 0 {
		panic("taskscope: NewBoundedPool requires n > 0")
	}
	return newPool(ctx, n, opts)
}

func newPool(ctx context.Context, n int, opts []PoolOption) *Pool {
	var cfg poolConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	p := &Pool{
		ctx:        ctx,
		cancel:     cancel,
		workers:    n,
		queueLimit: cfg.queueLimit,
		drained:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	for range n {
		p.wg.Go(p.worker)
	}

	if cfg.onMetrics != nil {
		go func() {
			ticker := time.NewTicker(cfg.metricsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					cfg.onMetrics(p.Stats())
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	return p
}

// job is a submitted unit of work and its completion handle.
type job struct {
	ctx     context.Context
	fn      func(ctx context.Context) error
	h       *Handle
	dropped func(cause error)
	release func()
}

func (p *Pool) worker() {
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		p.run(j)
	}
}

// next pops the oldest queued job. It returns false once the pool is
// closed and the queue is empty.
func (p *Pool) next() (*job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	j := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return j, true
}

func (p *Pool) run(j *job) {
	defer j.release()

	// Jobs cancelled while queued never start. The pool context is checked
	// directly because its propagation to j.ctx runs asynchronously.
	err := Checkpoint(j.ctx)
	if err == nil {
		err = Checkpoint(p.ctx)
	}
	if err != nil {
		p.cancelled.Add(1)
		if j.dropped != nil {
			j.dropped(err)
		}
		j.h.finish(err, false)
		return
	}

	p.inFlight.Add(1)
	err = catch(func() error { return j.fn(j.ctx) })
	p.inFlight.Add(-1)
	p.completed.Add(1)
	if err != nil {
		p.errored.Add(1)
	}
	j.h.finish(err, true)
}

// Submit schedules fn for execution and returns a handle to await or cancel
// it. fn receives a context that is cancelled when ctx, the pool or the
// handle is cancelled.
//
// Submit returns [ErrPoolClosed] after [Pool.Close], and [ErrQueueFull]
// when a bounded pool's queue limit is reached.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) (*Handle, error) {
	if fn == nil {
		panic("taskscope: Submit requires non-nil job")
	}
	return p.submit(ctx, fn, nil)
}

// submit is Submit with a callback for jobs dropped before they start.
func (p *Pool) submit(ctx context.Context, fn func(ctx context.Context) error, dropped func(error)) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.workers > 0 && p.queueLimit > 0 && len(p.queue) >= p.queueLimit {
		return nil, ErrQueueFull
	}

	jctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(p.ctx, func() {
		cancel(context.Cause(p.ctx))
	})
	h := &Handle{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	j := &job{
		ctx:     jctx,
		fn:      fn,
		h:       h,
		dropped: dropped,
		release: func() {
			stop()
			cancel(nil)
		},
	}

	p.submitted.Add(1)
	if p.workers == 0 {
		// Registered under mu so Close never races Wait against Go.
		p.wg.Go(func() { p.run(j) })
		return h, nil
	}

	p.queue = append(p.queue, j)
	p.cond.Signal()
	return h, nil
}

// Stats returns a point-in-time snapshot of pool activity.
// Safe to call concurrently.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	depth := len(p.queue)
	p.mu.Unlock()

	return PoolStats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Errored:    p.errored.Load(),
		Cancelled:  p.cancelled.Load(),
		InFlight:   p.inFlight.Load(),
		QueueDepth: depth,
		Workers:    p.workers,
	}
}

// Close stops accepting jobs, cancels the context of every queued and
// running job, and waits for them to return until ctx is done. Queued jobs
// are dropped without running.
//
// If ctx expires first, Close returns an error wrapping [ErrDetached] and
// ctx.Err(); the remaining goroutines are left to finish on their own.
// Close is safe to call multiple times.
func (p *Pool) Close(ctx context.Context) error {
	p.cancel(ErrPoolClosed)

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		go func() {
			p.wg.Wait()
			close(p.drained)
		}()
	})

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDetached, ctx.Err())
	}
}

// Handle tracks one submitted job.
type Handle struct {
	done    chan struct{}
	err     error
	started bool
	cancel  context.CancelCauseFunc
}

func (h *Handle) finish(err error, started bool) {
	h.err = err
	h.started = started
	close(h.done)
}

// Done returns a channel that is closed when the job has returned or was
// dropped without running.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job completes or ctx is done. It returns the job's
// error, or ctx.Err() if ctx expired first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the job's error once [Handle.Done] is closed, and nil before.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Started reports whether the job ran. It is only meaningful once
// [Handle.Done] is closed.
func (h *Handle) Started() bool {
	select {
	case <-h.done:
		return h.started
	default:
		return false
	}
}

// Cancel cancels the job's context. A queued job will not start; a running
// job observes the cancellation at its next checkpoint.
func (h *Handle) Cancel() {
	h.cancel(context.Canceled)
}
