package taskscope

import (
	"io"
	"log/slog"
	"time"
)

// Policy determines when [Group.Join] stops waiting and whether the group
// cancels outstanding tasks early.
type Policy int

const (
	// WaitAll waits for every task to reach a terminal state. Failures do
	// not cancel siblings.
	WaitAll Policy = iota

	// ShutdownOnFailure cancels outstanding tasks when the first task
	// fails. Join reports that failure once every task has settled.
	ShutdownOnFailure

	// ShutdownOnSuccess cancels outstanding tasks when the first task
	// succeeds. Join reports that task once every task has settled.
	ShutdownOnSuccess
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case WaitAll:
		return "wait-all"
	case ShutdownOnFailure:
		return "shutdown-on-failure"
	case ShutdownOnSuccess:
		return "shutdown-on-success"
	default:
		return "unknown"
	}
}

// triggers reports whether an outcome in state s stops the group.
func (p Policy) triggers(s TaskState) bool {
	switch p {
	case ShutdownOnFailure:
		return s == Failed
	case ShutdownOnSuccess:
		return s == Succeeded
	default:
		return false
	}
}

// DefaultGracePeriod bounds how long Join and Close wait for tasks to
// observe cancellation after a timeout or an explicit cancel.
const DefaultGracePeriod = time.Second

type config struct {
	policy  Policy
	name    string
	pool    *Pool
	workers int
	limit   int
	grace   time.Duration
	repanic bool
	logger  *slog.Logger
	onEvent func(TaskEvent)

	stallThreshold time.Duration
	onStall        func(StalledTask)
}

// Option configures a [Group].
type Option func(*config)

func defaultConfig() config {
	return config{
		policy: WaitAll,
		grace:  DefaultGracePeriod,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithPolicy sets the join policy for the group.
// It panics if p is not a known Policy value.
func WithPolicy(p Policy) Option {
	return func(c *config) {
		switch p {
		case WaitAll, ShutdownOnFailure, ShutdownOnSuccess:
			c.policy = p
		default:
			panic("taskscope: invalid policy")
		}
	}
}

// WithName labels the group in log records and events.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithPool runs the group's tasks on a shared pool. The group never closes
// a pool passed this way; the caller owns its lifetime.
func WithPool(p *Pool) Option {
	return func(c *config) {
		if p == nil {
			panic("taskscope: WithPool requires non-nil pool")
		}
		c.pool = p
		c.workers = 0
	}
}

// WithBoundedPool makes the group own a bounded pool of n workers, closed
// together with the group. Without WithPool or WithBoundedPool the group
// owns a pool that gives every task its own goroutine.
func WithBoundedPool(n int) Option {
	return func(c *config) {
		if n <= 0 {
			panic("taskscope: WithBoundedPool requires n > 0")
		}
		c.workers = n
		c.pool = nil
	}
}

// WithLimit caps how many of the group's tasks may be Running at once,
// independently of the pool. Tasks beyond the limit stay Pending until a
// slot frees up or the group is cancelled.
//
// A limit of zero (the default) means no cap.
// WithLimit panics if n is negative.
func WithLimit(n int) Option {
	return func(c *config) {
		if n < 0 {
			panic("taskscope: limit must be non-negative")
		}
		c.limit = n
	}
}

// WithGracePeriod sets how long Join and Close wait for tasks to return
// after the group has timed out or been cancelled. Tasks still running
// afterwards are detached and recorded as Cancelled.
// Panics if d is negative.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) {
		if d < 0 {
			panic("taskscope: grace period must be non-negative")
		}
		c.grace = d
	}
}

// WithRepanic makes [Group.Join] re-raise the first task panic, as a
// [*PanicError], once the group has settled. By default a panic is
// recorded as the task's failure.
func WithRepanic() Option {
	return func(c *config) {
		c.repanic = true
	}
}

// WithLogger sets the structured logger used for group lifecycle records.
// The default logger discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnEvent registers a hook invoked on every task state change.
// The hook runs on the task's goroutine (or the forking goroutine for
// tasks cancelled at fork time) and must not block.
func WithOnEvent(fn func(TaskEvent)) Option {
	return func(c *config) {
		c.onEvent = fn
	}
}

// WithStallDetector calls fn once for every task that stays Running for
// longer than threshold. Tasks are checked every threshold/2 until the
// group is released, including during the grace period, so tasks that
// ignore cancellation are reported before they are detached.
//
// Panics if threshold <= 0 or fn is nil.
func WithStallDetector(threshold time.Duration, fn func(StalledTask)) Option {
	if threshold <= 0 {
		panic("taskscope: WithStallDetector requires threshold > 0")
	}
	if fn == nil {
		panic("taskscope: WithStallDetector requires non-nil callback")
	}
	return func(c *config) {
		c.stallThreshold = threshold
		c.onStall = fn
	}
}
