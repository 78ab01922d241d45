// Package taskscope provides a structured task scheduler for Go.
//
// A [Group] forks independent tasks, records exactly one [Outcome] per task
// and joins them under a [Policy]. Tasks never outlive the group: when
// [Group.Join] or [Group.Close] returns, every task has either finished or
// been detached and recorded as Cancelled.
//
// # Forking and Joining
//
//	g := taskscope.NewGroup[string](ctx, taskscope.WithPolicy(taskscope.ShutdownOnFailure))
//	defer g.Close()
//
//	g.Fork(func(ctx context.Context) (string, error) { return findUser(ctx, "user123") })
//	g.Fork(func(ctx context.Context) (string, error) { return fetchOrders(ctx, "user123") })
//
//	res, err := g.Join(ctx)
//	if res.Status == taskscope.FailureTriggeredShutdown {
//	    log.Println("failed:", res.Failure)
//	}
//	for id, o := range g.Results() { ... }
//
// Task ids are assigned in fork order starting at zero. [Run] wraps the
// create, fork, join and close steps; [ForEach], [Map] and [Race] cover
// the common fan-out shapes.
//
// # Join Policies
//
//   - [WaitAll] (default): wait for every task; failures do not cancel
//     siblings.
//   - [ShutdownOnFailure]: the first recorded failure cancels the rest.
//   - [ShutdownOnSuccess]: the first recorded success cancels the rest.
//
// Under both shutdown policies Join still waits for every task to settle,
// and outcomes recorded before the shutdown are kept. When several tasks
// finish at once, the one recorded first by the [Collector] is reported
// as the trigger.
//
// [Group.Join] returns a [JoinResult] whose Status is one of
// [AllCompleted], [FailureTriggeredShutdown], [SuccessTriggeredShutdown],
// [TimedOut] or [JoinCancelled]. Task failures never surface as Join's error;
// only API misuse does ([ErrAlreadyJoined], [ErrGroupClosed]).
//
// # Cancellation
//
// Cancellation is cooperative. The group's cancellation signal is its
// context: every task receives a context derived from it and should check
// it at its own checkpoints (see [Checkpoint]). Tasks that have not
// started when the signal is set never run. After a timeout or an explicit
// cancel, Join waits at most the grace period ([WithGracePeriod]) before
// detaching tasks that ignore the signal.
//
// # Worker Pools
//
// [NewPool] runs every job on its own goroutine; [NewBoundedPool] runs jobs
// on a fixed set of workers fed by a FIFO queue. A group owns an unbounded
// pool unless [WithPool] or [WithBoundedPool] is given. [WithLimit] caps
// how many of one group's tasks run at once, whatever the pool.
//
// # Panics
//
// A panicking task is recorded as Failed with a [*PanicError] carrying the
// stack. [WithRepanic] re-raises the first one from Join.
//
// # Observability
//
// [WithLogger] attaches a [log/slog] logger; every record carries the
// group's id. [WithOnEvent] receives a [TaskEvent] for each state change
// and [WithStallDetector] flags tasks that run longer than expected.
// [Pool.Stats] and [WithPoolMetrics] expose pool counters.
package taskscope
