package taskscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// JoinStatus tells why [Group.Join] returned.
type JoinStatus int

const (
	// AllCompleted means every task reached a terminal state without the
	// policy, a deadline or a cancellation stopping the group.
	AllCompleted JoinStatus = iota
	// FailureTriggeredShutdown means a failure stopped a ShutdownOnFailure group.
	FailureTriggeredShutdown
	// SuccessTriggeredShutdown means a success stopped a ShutdownOnSuccess group.
	SuccessTriggeredShutdown
	// TimedOut means the join deadline elapsed first.
	TimedOut
	// JoinCancelled means the group, its parent context or the join context
	// was cancelled first.
	JoinCancelled
)

func (s JoinStatus) String() string {
	switch s {
	case AllCompleted:
		return "all-completed"
	case FailureTriggeredShutdown:
		return "failure-triggered-shutdown"
	case SuccessTriggeredShutdown:
		return "success-triggered-shutdown"
	case TimedOut:
		return "timed-out"
	case JoinCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// JoinResult reports how a group finished. Trigger is set for the two
// shutdown statuses; Failure holds the triggering *TaskError for
// FailureTriggeredShutdown.
type JoinResult struct {
	Status  JoinStatus
	Trigger TaskID
	Failure error
}

// Group forks tasks onto a [Pool], records one [Outcome] per task and joins
// them under a [Policy]. The group owns its tasks: none of them outlives
// the Join or Close call that releases the group.
//
// A Group must be created via [NewGroup] and released with [Group.Join] or
// [Group.Close]; deferring Close is always safe.
//
//	g := taskscope.NewGroup[string](ctx, taskscope.WithPolicy(taskscope.ShutdownOnFailure))
//	defer g.Close()
//	g.Fork(findUser)
//	g.Fork(fetchOrders)
//	res, err := g.Join(ctx)
type Group[T any] struct {
	id     uuid.UUID
	cfg    config
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelCauseFunc

	pool     *Pool
	ownsPool bool
	sem      *semaphore.Weighted

	collector *Collector[T]

	mu     sync.Mutex
	tasks  []*task[T]
	joined bool
	closed bool
	stop   *JoinResult // first stop event wins
	panic  *PanicError

	outstanding atomic.Int64
	changed     chan struct{}

	closeOnce sync.Once
	closeErr  error
	released  chan struct{}
}

// NewGroup creates an open group. Cancelling ctx cancels the group.
func NewGroup[T any](ctx context.Context, opts ...Option) *Group[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.New()
	ctx, cancel := context.WithCancelCause(ctx)
	g := &Group[T]{
		id:        id,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		collector: NewCollector[T](),
		changed:   make(chan struct{}, 1),
		released:  make(chan struct{}),
	}
	context.AfterFunc(ctx, g.markExternalStop)

	attrs := []any{"group", id.String(), "policy", cfg.policy.String()}
	if cfg.name != "" {
		attrs = append(attrs, "name", cfg.name)
	}
	g.log = cfg.logger.With(attrs...)

	switch {
	case cfg.pool != nil:
		g.pool = cfg.pool
	case cfg.workers > 0:
		g.pool = NewBoundedPool(ctx, cfg.workers)
		g.ownsPool = true
	default:
		g.pool = NewPool(ctx)
		g.ownsPool = true
	}

	if cfg.limit > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.limit))
	}
	if cfg.onStall != nil {
		go g.watchStalls()
	}

	return g
}

// ID returns the group's unique id, also attached to its log records.
func (g *Group[T]) ID() uuid.UUID { return g.id }

// Policy returns the group's join policy.
func (g *Group[T]) Policy() Policy { return g.cfg.policy }

// Context returns the group's context. It is cancelled when the group's
// cancellation signal is set.
func (g *Group[T]) Context() context.Context { return g.ctx }

// Fork registers op as a new task and submits it to the pool.
//
// Fork returns [ErrGroupClosed] without registering anything once Join or
// Close has been called. If the group's cancellation signal is already set,
// the task is registered and recorded as Cancelled without running, and
// Fork returns its id together with ErrGroupClosed.
//
// Fork is safe for concurrent use.
func (g *Group[T]) Fork(op Op[T]) (TaskID, error) {
	if op == nil {
		panic("taskscope: Fork requires non-nil op")
	}

	g.mu.Lock()
	if g.joined || g.closed {
		g.mu.Unlock()
		return -1, ErrGroupClosed
	}
	t := newTask(TaskID(len(g.tasks)), op)
	g.tasks = append(g.tasks, t)
	g.outstanding.Add(1)
	g.mu.Unlock()

	if err := Checkpoint(g.ctx); err != nil {
		var zero T
		g.complete(t, Cancelled, zero, err, 0)
		return t.id, ErrGroupClosed
	}

	_, err := g.pool.submit(g.ctx, func(ctx context.Context) error {
		return g.execute(ctx, t)
	}, func(cause error) {
		var zero T
		g.complete(t, Cancelled, zero, cause, 0)
	})
	if err != nil {
		var zero T
		g.complete(t, Cancelled, zero, err, 0)
		return t.id, fmt.Errorf("taskscope: submit %s: %w", t.id, err)
	}

	g.log.Debug("task forked", "task", int(t.id))
	return t.id, nil
}

// execute runs t on a pool goroutine.
func (g *Group[T]) execute(ctx context.Context, t *task[T]) error {
	var zero T

	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			g.complete(t, Cancelled, zero, context.Cause(ctx), 0)
			return nil
		}
		defer g.sem.Release(1)
	}

	if err := Checkpoint(ctx); err != nil {
		g.complete(t, Cancelled, zero, err, 0)
		return nil
	}
	if !t.start() {
		// Detached while Pending.
		return nil
	}
	t.startedAt.Store(time.Now().UnixNano())
	g.emit(TaskEvent{Task: t.id, Kind: EventStarted})

	start := time.Now()
	var v T
	err := catch(func() error {
		var err error
		v, err = t.op(ctx)
		return err
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		g.complete(t, Succeeded, v, nil, elapsed)
	case isCancellation(ctx, err):
		g.complete(t, Cancelled, zero, err, elapsed)
	default:
		g.complete(t, Failed, zero, err, elapsed)
	}
	return err
}

// isCancellation reports whether err is the task giving up because ctx
// was cancelled.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	if _, ok := err.(*PanicError); ok {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Cause(ctx))
}

// complete moves t to a terminal state and records its outcome. Only the
// first call for a task has any effect.
func (g *Group[T]) complete(t *task[T], state TaskState, v T, err error, elapsed time.Duration) {
	if !t.finish(state) {
		return
	}

	first := g.collector.Record(Outcome[T]{
		ID:    t.id,
		State: state,
		Value: v,
		Err:   err,
	})

	kind := eventKind(state, err)
	if kind == EventPanicked {
		g.mu.Lock()
		if g.panic == nil {
			g.panic = err.(*PanicError)
		}
		g.mu.Unlock()
	}
	g.emit(TaskEvent{Task: t.id, Kind: kind, Err: err, Duration: elapsed})
	g.log.Debug("task finished", "task", int(t.id), "state", state.String(), "duration", elapsed)

	if first && g.cfg.policy.triggers(state) {
		res := JoinResult{Trigger: t.id}
		if state == Failed {
			res.Status = FailureTriggeredShutdown
			res.Failure = &TaskError{Task: t.id, Err: err}
		} else {
			res.Status = SuccessTriggeredShutdown
		}
		g.halt(res, ErrShutdown)
	}

	// Decrement after halt so Join never sees quiescence without the trigger.
	g.outstanding.Add(-1)
	select {
	case g.changed <- struct{}{}:
	default:
	}
}

// halt records the first stop event and sets the cancellation signal.
func (g *Group[T]) halt(res JoinResult, cause error) {
	g.mu.Lock()
	g.markExternalStopLocked()
	won := g.stop == nil
	if won {
		g.stop = &res
	}
	g.mu.Unlock()

	g.cancel(cause)
	if won {
		g.log.Debug("group stopping", "status", res.Status.String(), "cause", cause)
	}
}

// markExternalStop records Cancelled as the stop event when the parent
// context was cancelled before any other stop event.
func (g *Group[T]) markExternalStop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.markExternalStopLocked()
}

// markExternalStopLocked requires g.mu. halt stores its event before
// cancelling g.ctx, so a done context with no stop event can only come
// from the parent.
func (g *Group[T]) markExternalStopLocked() {
	if g.stop == nil && g.ctx.Err() != nil {
		g.stop = &JoinResult{Status: JoinCancelled}
	}
}

func (g *Group[T]) emit(e TaskEvent) {
	if g.cfg.onEvent != nil {
		e.Group = g.id
		g.cfg.onEvent(e)
	}
}

// Cancel sets the group's cancellation signal. Pending tasks are recorded
// as Cancelled without running; running tasks observe the signal through
// their context. Completed tasks are unaffected. Cancel is idempotent and
// closes the group to further forks.
func (g *Group[T]) Cancel() {
	g.halt(JoinResult{Status: JoinCancelled}, ErrGroupCancelled)
}

// Join blocks until the group's policy is satisfied, ctx's deadline
// elapses (TimedOut), or ctx, the parent context or the group is cancelled
// (Cancelled). In every case Join waits for the tasks to settle; after a
// timeout or a cancellation that wait is bounded by the grace period and
// tasks still running afterwards are detached and recorded as Cancelled.
//
// Join releases the group before returning, as [Group.Close] does. Task
// failures are reported through the result and [Group.Results], never as
// Join's error. Every call after the first returns [ErrAlreadyJoined].
func (g *Group[T]) Join(ctx context.Context) (JoinResult, error) {
	g.mu.Lock()
	if g.joined {
		g.mu.Unlock()
		return JoinResult{}, ErrAlreadyJoined
	}
	g.joined = true
	g.mu.Unlock()

	res := g.await(ctx)
	g.log.Info("group joined",
		"status", res.Status.String(),
		"tasks", g.collector.Len(),
	)

	if err := g.Close(); err != nil {
		g.log.Warn("group released with detached tasks", "error", err)
	}

	if g.cfg.repanic {
		g.mu.Lock()
		pe := g.panic
		g.mu.Unlock()
		if pe != nil {
			panic(pe)
		}
	}
	return res, nil
}

// JoinUntil is Join with a deadline. Tasks may still be forked before
// JoinUntil is called even if the deadline has already passed.
func (g *Group[T]) JoinUntil(deadline time.Time) (JoinResult, error) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	return g.Join(ctx)
}

func (g *Group[T]) await(ctx context.Context) JoinResult {
	groupDone := g.ctx.Done()
	for g.outstanding.Load() > 0 {
		select {
		case <-g.changed:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				g.halt(JoinResult{Status: TimedOut}, context.DeadlineExceeded)
			} else {
				g.halt(JoinResult{Status: JoinCancelled}, ErrGroupCancelled)
			}
			g.settle()
			return g.result()
		case <-groupDone:
			g.markExternalStop()
			if g.stoppedByPolicy() {
				// Shutdown waits for every task to settle.
				groupDone = nil
				continue
			}
			g.settle()
			return g.result()
		}
	}
	return g.result()
}

func (g *Group[T]) stoppedByPolicy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stop == nil {
		return false
	}
	s := g.stop.Status
	return s == FailureTriggeredShutdown || s == SuccessTriggeredShutdown
}

func (g *Group[T]) result() JoinResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stop != nil {
		return *g.stop
	}
	if g.ctx.Err() != nil {
		// Parent context cancelled before any stop event was recorded.
		return JoinResult{Status: JoinCancelled}
	}
	return JoinResult{Status: AllCompleted}
}

// settle waits up to the grace period for outstanding tasks, then detaches
// the rest by recording them as Cancelled.
func (g *Group[T]) settle() {
	if g.outstanding.Load() == 0 {
		return
	}

	timer := time.NewTimer(g.cfg.grace)
	defer timer.Stop()
	for g.outstanding.Load() > 0 {
		select {
		case <-g.changed:
		case <-timer.C:
			g.detach()
			return
		}
	}
}

func (g *Group[T]) detach() {
	g.mu.Lock()
	tasks := g.tasks
	g.mu.Unlock()

	cause := fmt.Errorf("%w: %w", ErrDetached, context.Cause(g.ctx))
	var zero T
	n := 0
	for _, t := range tasks {
		if !t.load().Terminal() {
			g.complete(t, Cancelled, zero, cause, 0)
			n++
		}
	}
	if n > 0 {
		g.log.Warn("tasks detached after grace period", "count", n, "grace", g.cfg.grace)
	}
}

// Close releases the group: it closes the group to forks, sets the
// cancellation signal, waits up to the grace period for running tasks and
// detaches the rest, then closes the group's own pool. Close never blocks
// indefinitely. It returns an error wrapping [ErrDetached] if the owned
// pool still had running goroutines when it was closed.
//
// Close is idempotent and may be called after Join.
func (g *Group[T]) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()

		g.halt(JoinResult{Status: JoinCancelled}, ErrGroupCancelled)
		g.settle()

		if g.ownsPool {
			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.grace)
			defer cancel()
			g.closeErr = g.pool.Close(ctx)
		}
		close(g.released)
	})
	return g.closeErr
}

// watchStalls reports tasks that stay Running longer than the stall
// threshold, once per task, until the group is released.
func (g *Group[T]) watchStalls() {
	threshold := g.cfg.stallThreshold
	ticker := time.NewTicker(max(threshold/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-g.released:
			return
		}

		g.mu.Lock()
		tasks := g.tasks
		g.mu.Unlock()

		now := time.Now()
		for _, t := range tasks {
			if t.load() != Running {
				continue
			}
			started := t.startedAt.Load()
			if started == 0 {
				continue
			}
			elapsed := now.Sub(time.Unix(0, started))
			if elapsed < threshold || !t.stallReported.CompareAndSwap(false, true) {
				continue
			}
			g.log.Warn("task stalled", "task", int(t.id), "elapsed", elapsed)
			g.cfg.onStall(StalledTask{Group: g.id, Task: t.id, Elapsed: elapsed})
		}
	}
}

// Results returns a snapshot of every outcome recorded so far.
func (g *Group[T]) Results() Results[T] {
	return g.collector.Snapshot()
}

// Outcome returns the outcome recorded for id, if the task has finished.
func (g *Group[T]) Outcome(id TaskID) (Outcome[T], bool) {
	return g.collector.Get(id)
}

// State returns the current lifecycle state of task id.
func (g *Group[T]) State(id TaskID) (TaskState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id < 0 || int(id) >= len(g.tasks) {
		return 0, false
	}
	return g.tasks[id].load(), true
}

// Len returns the number of tasks forked into the group.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.tasks)
}
